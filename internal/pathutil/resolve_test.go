package pathutil

import "testing"

func TestNormPath(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"a/b/c", "a/b/c"},
		{"a\\b\\c", "a/b/c"},
		{"a//b", "a/b"},
		{"a/./b", "a/b"},
		{"a/b/../c", "a/c"},
		{"", "."},
		{"/a/b", "/a/b"},
	}
	for _, tc := range testCases {
		if got := NormPath(tc.in); got != tc.want {
			t.Errorf("NormPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAddPrefix(t *testing.T) {
	testCases := []struct {
		prefix, obj, want string
	}{
		{"", "file.txt", "file.txt"},
		{"runs/1", "out.dat", "runs/1/out.dat"},
		{"runs/1", "../out.dat", "runs/out.dat"},
	}
	for _, tc := range testCases {
		if got := AddPrefix(tc.prefix, tc.obj); got != tc.want {
			t.Errorf("AddPrefix(%q, %q) = %q, want %q", tc.prefix, tc.obj, got, tc.want)
		}
	}
}

func TestSplitContainerPrefix(t *testing.T) {
	container, remainder := SplitContainerPrefix("mycontainer/sub/dir")
	if container != "mycontainer" || remainder != "sub/dir" {
		t.Errorf("got (%q, %q), want (%q, %q)", container, remainder, "mycontainer", "sub/dir")
	}

	container, remainder = SplitContainerPrefix("mycontainer")
	if container != "mycontainer" || remainder != "" {
		t.Errorf("got (%q, %q), want (%q, %q)", container, remainder, "mycontainer", "")
	}
}
