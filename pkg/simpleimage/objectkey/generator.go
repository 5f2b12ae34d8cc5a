package objectkey

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// DefaultPrefix is prepended to the display name by the Prefix generator
const DefaultPrefix = "compressed_"

// Generator defines the interface for blob key generation strategies
type Generator interface {
	// GenerateKey creates a blob key from the display name, the extension
	// the bytes were encoded for and the transcoded bytes
	GenerateKey(name, ext string, data []byte) string
}

// PrefixGenerator derives the key as Prefix + name.
// Keys are not content-addressed: two assets with the same name share a key
// and the last write wins.
type PrefixGenerator struct {
	Prefix string
}

func NewPrefixGenerator() *PrefixGenerator {
	return &PrefixGenerator{Prefix: DefaultPrefix}
}

func (g *PrefixGenerator) GenerateKey(name, ext string, data []byte) string {
	return g.Prefix + name
}

// ContentHashGenerator derives the key from the SHA-256 of the stored bytes
// plus the lowercased output extension, so the served content type follows
// the encoding rather than the display name.
// Identical bytes map to the same key, different bytes never collide.
type ContentHashGenerator struct {
	// HashLength is the number of hex characters kept (default: 32)
	HashLength int
}

func NewContentHashGenerator() *ContentHashGenerator {
	return &ContentHashGenerator{HashLength: 32}
}

func (g *ContentHashGenerator) GenerateKey(name, ext string, data []byte) string {
	sum := sha256.Sum256(data)
	hashStr := fmt.Sprintf("%x", sum)

	n := g.HashLength
	if n <= 0 || n > len(hashStr) {
		n = len(hashStr)
	}

	return hashStr[:n] + sanitizeExtension(ext)
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(name, ext string, data []byte) string
}

func NewCustomFuncGenerator(fn func(name, ext string, data []byte) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{GenerateFunc: fn}
}

func (g *CustomFuncGenerator) GenerateKey(name, ext string, data []byte) string {
	return g.GenerateFunc(name, ext, data)
}

// FromName returns the generator registered under name ("prefix" or "hash").
func FromName(name string) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "prefix", "legacy":
		return NewPrefixGenerator(), nil
	case "hash", "content-hash", "sha256":
		return NewContentHashGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown key strategy: %s", name)
	}
}

func sanitizeExtension(ext string) string {
	replacer := strings.NewReplacer(
		"/", "",
		"\\", "",
		"\x00", "",
		" ", "",
	)
	return strings.ToLower(replacer.Replace(ext))
}
