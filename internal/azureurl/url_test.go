package azureurl

import (
	"net/url"
	"testing"
)

func TestBlob_PreservesSlashesInName(t *testing.T) {
	got := Blob("acct", "ct", "p/k1")
	want := "https://acct.blob.core.windows.net/ct/p/k1"
	if got != want {
		t.Errorf("Blob() = %q, want %q", got, want)
	}
}

func TestWithQuery(t *testing.T) {
	base := Blob("acct", "ct", "k1")
	got := WithQuery(base, url.Values{"comp": {"block"}, "blockid": {"abc"}})
	want := base + "?blockid=abc&comp=block"
	if got != want {
		t.Errorf("WithQuery() = %q, want %q", got, want)
	}
}
