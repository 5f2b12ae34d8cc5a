package simpleimage

import "context"

// Service defines the main interface for the simple-image library
type Service interface {
	// Ingest transcodes the upload, stores the bytes and creates the record
	Ingest(ctx context.Context, req IngestRequest) (*Asset, error)

	// List returns every asset
	List(ctx context.Context) ([]*Asset, error)

	// Fetch returns the stored bytes of an asset and their content type
	Fetch(ctx context.Context, id int64) (*Image, error)

	// Remove deletes the blob, if present, and then the record
	Remove(ctx context.Context, id int64) error
}

// IngestRequest contains parameters for ingesting an upload
type IngestRequest struct {
	// Name is the original file name supplied by the client
	Name string
	// Data is the raw upload
	Data []byte
	// Extension selects the output encoding; defaults to the extension of Name
	Extension string
}
