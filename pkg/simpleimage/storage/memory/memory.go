package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// Backend is an in-memory implementation of the simpleimage.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[simpleimage.BlobKey][]byte
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[simpleimage.BlobKey][]byte),
	}
}

// Name identifies the backend in errors and logs
func (b *Backend) Name() string {
	return "memory"
}

// Put stores a copy of the content
func (b *Backend) Put(ctx context.Context, key simpleimage.BlobKey, reader io.Reader) error {
	if !key.Valid() {
		return simpleimage.ErrInvalidBlobKey
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = data
	return nil
}

// Get returns a reader over the stored content
func (b *Backend) Get(ctx context.Context, key simpleimage.BlobKey) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[key]
	if !exists {
		return nil, simpleimage.ErrBlobNotFound
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the content
func (b *Backend) Delete(ctx context.Context, key simpleimage.BlobKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[key]; !exists {
		return simpleimage.ErrBlobNotFound
	}

	delete(b.objects, key)
	return nil
}

// Exists reports whether content is stored under key
func (b *Backend) Exists(ctx context.Context, key simpleimage.BlobKey) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.objects[key]
	return exists, nil
}

// Len returns the number of stored blobs
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
