package abfs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBlobHandle_Delegation(t *testing.T) {
	f := newFakeFacadeServer()
	srv := httptest.NewServer(http.HandlerFunc(f.handle))
	defer srv.Close()

	c := newTestContainer(t, srv, "ct-blob", Config{Prefix: "p"})
	ctx := context.Background()

	b := c.Blob("k1")
	if got, want := b.Name(), "k1"; got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
	if got, want := b.FullName(), "p/k1"; got != want {
		t.Errorf("FullName() = %q, want %q", got, want)
	}
	if b.Container() != c {
		t.Error("Container() should return the handle that created this blob handle")
	}

	if err := b.WriteString(ctx, "hello"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	got, err := b.ReadString(ctx)
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if got != "hello" {
		t.Errorf("ReadString() = %q, want %q", got, "hello")
	}

	ok, err := b.Exists(ctx)
	if err != nil || !ok {
		t.Errorf("Exists() = (%v, %v), want (true, nil)", ok, err)
	}

	size, err := b.Stat(ctx)
	if err != nil || size != 5 {
		t.Errorf("Stat() = (%d, %v), want (5, nil)", size, err)
	}

	if err := b.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, err := b.Exists(ctx); err != nil || ok {
		t.Errorf("Exists() after Delete = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestBlobHandle_CopyTo(t *testing.T) {
	f := newFakeFacadeServer()
	srv := httptest.NewServer(http.HandlerFunc(f.handle))
	defer srv.Close()

	src := newTestContainer(t, srv, "ct-bsrc", Config{})
	dst := newTestContainer(t, srv, "ct-bdst", Config{})
	ctx := context.Background()

	b := src.Blob("k1")
	if err := b.WriteString(ctx, "payload"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if err := b.CopyTo(ctx, dst); err != nil {
		t.Fatalf("CopyTo: %v", err)
	}
	got, err := dst.ReadString(ctx, "k1")
	if err != nil {
		t.Fatalf("ReadString on dst: %v", err)
	}
	if got != "payload" {
		t.Errorf("dst blob = %q, want %q", got, "payload")
	}
}
