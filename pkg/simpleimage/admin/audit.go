// Package admin holds read-only maintenance checks across the two stores.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// DefaultConcurrency bounds the number of in-flight Exists calls
const DefaultConcurrency = 8

// Auditor compares asset records against the blob store
type Auditor struct {
	repository  simpleimage.Repository
	blobStore   simpleimage.BlobStore
	concurrency int
	logger      *slog.Logger
}

// AuditorOption configures an Auditor
type AuditorOption func(*Auditor)

// WithConcurrency sets how many blobs are checked at once
func WithConcurrency(n int) AuditorOption {
	return func(a *Auditor) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) AuditorOption {
	return func(a *Auditor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAuditor creates an auditor over the given stores
func NewAuditor(repo simpleimage.Repository, store simpleimage.BlobStore, opts ...AuditorOption) *Auditor {
	a := &Auditor{
		repository:  repo,
		blobStore:   store,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dangling returns every asset whose blob is missing, ordered by id. The
// first store error aborts the audit.
func (a *Auditor) Dangling(ctx context.Context) ([]*simpleimage.Asset, error) {
	assets, err := a.repository.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}

	var (
		mu       sync.Mutex
		dangling []*simpleimage.Asset
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for _, asset := range assets {
		g.Go(func() error {
			exists, err := a.blobStore.Exists(gctx, asset.Key)
			if err != nil {
				return fmt.Errorf("check blob %s for asset %d: %w", asset.Key, asset.ID, err)
			}
			if !exists {
				mu.Lock()
				dangling = append(dangling, asset)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(dangling, func(i, j int) bool { return dangling[i].ID < dangling[j].ID })

	a.logger.InfoContext(ctx, "Audit complete", "assets", len(assets), "dangling", len(dangling))
	return dangling, nil
}
