package simpleimage

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrAssetNotFound indicates the metadata record does not exist
	ErrAssetNotFound = errors.New("image not found")

	// ErrBlobNotFound indicates the record exists but its bytes do not
	ErrBlobNotFound = errors.New("image file not found")

	// ErrInvalidBlobKey indicates a key that is empty, too long or not a single path segment
	ErrInvalidBlobKey = errors.New("invalid blob key")

	// ErrInvalidRequest indicates the caller supplied an unusable name or payload
	ErrInvalidRequest = errors.New("invalid request")
)

// IsNotFound reports whether err is either a missing record or a missing blob.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAssetNotFound) || errors.Is(err, ErrBlobNotFound)
}

// TranscodeError is returned when the uploaded bytes could not be transcoded
type TranscodeError struct {
	Name      string
	Extension string
	Err       error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode failed for %q (extension %q): %v", e.Name, e.Extension, e.Err)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// StorageError represents a failed blob or metadata store operation
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// CorruptRecordError indicates a persisted record whose blob key is unusable
type CorruptRecordError struct {
	AssetID int64
	Key     string
	Err     error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("asset %d has corrupt blob key %q: %v", e.AssetID, e.Key, e.Err)
}

func (e *CorruptRecordError) Unwrap() error {
	return e.Err
}

// KeyFromRecord parses a key loaded from persistent storage, reporting a
// CorruptRecordError when it is unusable. Repository implementations call it
// on every row they return.
func KeyFromRecord(id int64, raw string) (BlobKey, error) {
	key, err := ParseBlobKey(raw)
	if err != nil {
		return "", &CorruptRecordError{AssetID: id, Key: raw, Err: err}
	}
	return key, nil
}
