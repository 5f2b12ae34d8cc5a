package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

const tempPattern = ".upload-*"

// Backend is a filesystem implementation of the simpleimage.BlobStore interface.
// Each key is one file directly under the base directory.
type Backend struct {
	baseDir  string
	fileMode os.FileMode
}

// Config options for the filesystem backend
type Config struct {
	BaseDir  string      // Base directory for storing files
	DirMode  os.FileMode // Mode for the base directory (default: 0755)
	FileMode os.FileMode // Mode for stored files (default: 0644)
}

// New creates a new filesystem storage backend. The base directory is
// created if it does not exist; calling New again on the same directory is
// harmless.
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if config.DirMode == 0 {
		config.DirMode = 0755
	}
	if config.FileMode == 0 {
		config.FileMode = 0644
	}

	baseDir := filepath.Clean(config.BaseDir)
	if err := os.MkdirAll(baseDir, config.DirMode); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir:  baseDir,
		fileMode: config.FileMode,
	}, nil
}

// Name identifies the backend in errors and logs
func (b *Backend) Name() string {
	return "fs"
}

// BaseDir returns the directory blobs are stored in
func (b *Backend) BaseDir() string {
	return b.baseDir
}

func (b *Backend) path(key simpleimage.BlobKey) (string, error) {
	if !key.Valid() {
		return "", simpleimage.ErrInvalidBlobKey
	}
	return filepath.Join(b.baseDir, key.String()), nil
}

// Put writes the content to a temporary file and renames it into place, so
// readers see either the previous blob or the complete new one.
func (b *Backend) Put(ctx context.Context, key simpleimage.BlobKey, reader io.Reader) error {
	filePath, err := b.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.baseDir, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Chmod(tmpName, b.fileMode); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		return fmt.Errorf("failed to commit file: %w", err)
	}

	committed = true
	return nil
}

// Get opens the stored file
func (b *Backend) Get(ctx context.Context, key simpleimage.BlobKey) (io.ReadCloser, error) {
	filePath, err := b.path(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, simpleimage.ErrBlobNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete removes the stored file
func (b *Backend) Delete(ctx context.Context, key simpleimage.BlobKey) error {
	filePath, err := b.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return simpleimage.ErrBlobNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// Exists reports whether a regular file is stored under key
func (b *Backend) Exists(ctx context.Context, key simpleimage.BlobKey) (bool, error) {
	filePath, err := b.path(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to get file info: %w", err)
	}

	return info.Mode().IsRegular(), nil
}
