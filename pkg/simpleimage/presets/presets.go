// Package presets builds ready-to-use image services for common setups.
package presets

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/tendant/simple-image/pkg/simpleimage"
	"github.com/tendant/simple-image/pkg/simpleimage/objectkey"
	memoryrepo "github.com/tendant/simple-image/pkg/simpleimage/repo/memory"
	fsstorage "github.com/tendant/simple-image/pkg/simpleimage/storage/fs"
	memorystorage "github.com/tendant/simple-image/pkg/simpleimage/storage/memory"
)

// NewDevelopment creates a service for local development: an in-memory
// repository with compressed images written to ./dev-data. The returned
// cleanup removes the storage directory.
//
//	svc, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (simpleimage.Service, func(), error) {
	cfg := &devConfig{
		storageDir: "./dev-data",
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	fsBackend, err := fsstorage.New(fsstorage.Config{BaseDir: cfg.storageDir})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create filesystem storage: %w", err)
	}

	options := []simpleimage.Option{
		simpleimage.WithRepository(memoryrepo.New()),
		simpleimage.WithBlobStore(fsBackend),
		simpleimage.WithLogger(cfg.logger),
		simpleimage.WithEventSink(simpleimage.NewLogEventSink(cfg.logger)),
	}
	if cfg.keyGenerator != nil {
		options = append(options, simpleimage.WithKeyGenerator(cfg.keyGenerator))
	}

	svc, err := simpleimage.New(options...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}

	cleanup := func() {
		os.RemoveAll(cfg.storageDir)
	}

	return svc, cleanup, nil
}

// NewTesting creates an isolated in-memory service for tests. Logging is
// discarded unless WithTestLogger is given.
func NewTesting(t testing.TB, opts ...TestingOption) simpleimage.Service {
	t.Helper()

	cfg := &testConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	options := []simpleimage.Option{
		simpleimage.WithRepository(memoryrepo.New()),
		simpleimage.WithBlobStore(memorystorage.New()),
		simpleimage.WithLogger(cfg.logger),
	}
	if cfg.keyGenerator != nil {
		options = append(options, simpleimage.WithKeyGenerator(cfg.keyGenerator))
	}

	svc, err := simpleimage.New(options...)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}
	return svc
}

type devConfig struct {
	storageDir   string
	logger       *slog.Logger
	keyGenerator objectkey.Generator
}

// DevelopmentOption customizes NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevStorage sets the directory compressed images are written to
func WithDevStorage(dir string) DevelopmentOption {
	return func(c *devConfig) {
		c.storageDir = dir
	}
}

// WithDevLogger sets the logger used by the service and its event log
func WithDevLogger(logger *slog.Logger) DevelopmentOption {
	return func(c *devConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDevKeyGenerator overrides the blob key strategy
func WithDevKeyGenerator(g objectkey.Generator) DevelopmentOption {
	return func(c *devConfig) {
		c.keyGenerator = g
	}
}

type testConfig struct {
	logger       *slog.Logger
	keyGenerator objectkey.Generator
}

// TestingOption customizes NewTesting
type TestingOption func(*testConfig)

// WithTestLogger routes service logs to logger
func WithTestLogger(logger *slog.Logger) TestingOption {
	return func(c *testConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTestKeyGenerator overrides the blob key strategy
func WithTestKeyGenerator(g objectkey.Generator) TestingOption {
	return func(c *testConfig) {
		c.keyGenerator = g
	}
}
