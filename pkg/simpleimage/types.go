package simpleimage

import (
	"path/filepath"
	"strings"
	"time"
)

// maxKeyLength bounds a blob key in bytes
const maxKeyLength = 1024

// BlobKey is the validated name under which an asset's bytes are stored.
// The zero value is not a valid key.
type BlobKey string

// ParseBlobKey validates s as a flat, single-segment blob key.
func ParseBlobKey(s string) (BlobKey, error) {
	switch {
	case s == "":
		return "", ErrInvalidBlobKey
	case len(s) > maxKeyLength:
		return "", ErrInvalidBlobKey
	case s == "." || s == "..":
		return "", ErrInvalidBlobKey
	case strings.ContainsAny(s, "/\\\x00"):
		return "", ErrInvalidBlobKey
	}
	return BlobKey(s), nil
}

// MustParseBlobKey is like ParseBlobKey but panics on an invalid key.
func MustParseBlobKey(s string) BlobKey {
	k, err := ParseBlobKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// Valid reports whether k would be accepted by ParseBlobKey.
func (k BlobKey) Valid() bool {
	_, err := ParseBlobKey(string(k))
	return err == nil
}

func (k BlobKey) String() string {
	return string(k)
}

// Ext returns the lowercased file extension of the key.
func (k BlobKey) Ext() string {
	return strings.ToLower(filepath.Ext(string(k)))
}

// Asset is the metadata record describing one stored image.
type Asset struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Key       BlobKey   `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Image is a fetched asset together with its bytes.
type Image struct {
	Asset       *Asset
	Data        []byte
	ContentType string
}

// Content types served for stored blobs.
const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
	ContentTypeWebP = "image/webp"
	ContentTypeAVIF = "image/avif"
)

// ContentTypeForKey infers the served content type from the key's
// extension. Anything unrecognized is served as JPEG.
func ContentTypeForKey(key BlobKey) string {
	switch key.Ext() {
	case ".png":
		return ContentTypePNG
	case ".webp":
		return ContentTypeWebP
	case ".avif":
		return ContentTypeAVIF
	default:
		return ContentTypeJPEG
	}
}
