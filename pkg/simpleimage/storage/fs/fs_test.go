package fs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

func TestFSBackend_BasicOps(t *testing.T) {
	tmp := t.TempDir()
	backend, err := New(Config{BaseDir: tmp})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}

	ctx := context.Background()
	key := simpleimage.MustParseBlobKey("compressed_cat.jpg")

	// Put
	data := []byte("hello fs")
	if err := backend.Put(ctx, key, bytes.NewReader(data)); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Exists
	exists, err := backend.Exists(ctx, key)
	if err != nil || !exists {
		t.Fatalf("expected blob to exist, exists=%v err=%v", exists, err)
	}

	// Get
	rc, err := backend.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(got) != string(data) {
		t.Fatalf("get mismatch: %q", string(got))
	}

	// Stored flat under the base directory
	if _, err := os.Stat(filepath.Join(tmp, "compressed_cat.jpg")); err != nil {
		t.Fatalf("expected file at base dir: %v", err)
	}

	// Delete
	if err := backend.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmp, key.String())); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err=%v", err)
	}
}

func TestFSBackend_Overwrite(t *testing.T) {
	backend, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	ctx := context.Background()
	key := simpleimage.MustParseBlobKey("compressed_x.png")

	if err := backend.Put(ctx, key, bytes.NewReader([]byte("first"))); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := backend.Put(ctx, key, bytes.NewReader([]byte("second"))); err != nil {
		t.Fatalf("put: %v", err)
	}

	rc, err := backend.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "second" {
		t.Fatalf("expected last write to win, got %q", got)
	}

	entries, err := os.ReadDir(backend.BaseDir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file and no temp leftovers, got %d", len(entries))
	}
}

func TestFSBackend_Missing(t *testing.T) {
	backend, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	ctx := context.Background()
	key := simpleimage.MustParseBlobKey("compressed_none.jpg")

	if _, err := backend.Get(ctx, key); err != simpleimage.ErrBlobNotFound {
		t.Fatalf("expected ErrBlobNotFound from get, got %v", err)
	}
	if err := backend.Delete(ctx, key); err != simpleimage.ErrBlobNotFound {
		t.Fatalf("expected ErrBlobNotFound from delete, got %v", err)
	}
	exists, err := backend.Exists(ctx, key)
	if err != nil || exists {
		t.Fatalf("expected missing blob, exists=%v err=%v", exists, err)
	}
}

func TestFSBackend_RejectsTraversal(t *testing.T) {
	tmp := t.TempDir()
	backend, err := New(Config{BaseDir: filepath.Join(tmp, "blobs")})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	ctx := context.Background()

	for _, raw := range []string{"../outside.jpg", "a/b.jpg", "..", ""} {
		key := simpleimage.BlobKey(raw)
		if err := backend.Put(ctx, key, bytes.NewReader([]byte("x"))); err != simpleimage.ErrInvalidBlobKey {
			t.Fatalf("expected ErrInvalidBlobKey for %q, got %v", raw, err)
		}
	}
	if _, err := os.Stat(filepath.Join(tmp, "outside.jpg")); !os.IsNotExist(err) {
		t.Fatalf("file escaped base dir")
	}
}

func TestFSBackend_NewIsIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "uploads")
	if _, err := New(Config{BaseDir: dir}); err != nil {
		t.Fatalf("first new: %v", err)
	}
	if _, err := New(Config{BaseDir: dir}); err != nil {
		t.Fatalf("second new: %v", err)
	}
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without base dir")
	}
}
