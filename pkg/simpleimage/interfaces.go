package simpleimage

import (
	"context"
	"io"

	"github.com/tendant/simple-image/pkg/simpleimage/transcode"
)

// BlobStore defines the interface for byte storage backends
type BlobStore interface {
	// Put writes the content under key, replacing any existing blob
	Put(ctx context.Context, key BlobKey, reader io.Reader) error

	// Get opens the blob; ErrBlobNotFound if absent
	Get(ctx context.Context, key BlobKey) (io.ReadCloser, error)

	// Delete removes the blob; ErrBlobNotFound if absent
	Delete(ctx context.Context, key BlobKey) error

	// Exists reports whether a blob is stored under key
	Exists(ctx context.Context, key BlobKey) (bool, error)
}

// Repository defines the interface for asset record persistence
type Repository interface {
	// CreateAsset stores a new record and assigns ID, CreatedAt and UpdatedAt
	CreateAsset(ctx context.Context, asset *Asset) error

	// GetAsset returns the record; ErrAssetNotFound if absent
	GetAsset(ctx context.Context, id int64) (*Asset, error)

	// ListAssets returns every record in creation order
	ListAssets(ctx context.Context) ([]*Asset, error)

	// DeleteAsset removes the record; ErrAssetNotFound if absent
	DeleteAsset(ctx context.Context, id int64) error
}

// Transcoder normalizes raw upload bytes
type Transcoder interface {
	Transcode(ctx context.Context, data []byte, ext string) (*transcode.Output, error)
}

// EventSink defines the interface for event handling
type EventSink interface {
	// AssetIngested is fired after both stores accepted a new asset
	AssetIngested(ctx context.Context, asset *Asset) error

	// AssetRemoved is fired after the record has been deleted
	AssetRemoved(ctx context.Context, asset *Asset) error
}

// Namer is optionally implemented by stores to label errors and logs
type Namer interface {
	Name() string
}
