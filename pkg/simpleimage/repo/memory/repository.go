package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// Repository implements simpleimage.Repository using in-memory storage
type Repository struct {
	mu     sync.RWMutex
	nextID int64
	assets map[int64]*simpleimage.Asset
	order  []int64 // ids in creation order
	now    func() time.Time
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		nextID: 1,
		assets: make(map[int64]*simpleimage.Asset),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Name identifies the repository in errors and logs
func (r *Repository) Name() string {
	return "memory"
}

func (r *Repository) CreateAsset(ctx context.Context, asset *simpleimage.Asset) error {
	if !asset.Key.Valid() {
		return simpleimage.ErrInvalidBlobKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	asset.ID = r.nextID
	asset.CreatedAt = now
	asset.UpdatedAt = now
	r.nextID++

	// Store a copy to avoid external modifications
	assetCopy := *asset
	r.assets[asset.ID] = &assetCopy
	r.order = append(r.order, asset.ID)

	return nil
}

func (r *Repository) GetAsset(ctx context.Context, id int64) (*simpleimage.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, exists := r.assets[id]
	if !exists {
		return nil, simpleimage.ErrAssetNotFound
	}

	assetCopy := *asset
	return &assetCopy, nil
}

func (r *Repository) ListAssets(ctx context.Context) ([]*simpleimage.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*simpleimage.Asset, 0, len(r.order))
	for _, id := range r.order {
		assetCopy := *r.assets[id]
		result = append(result, &assetCopy)
	}

	return result, nil
}

func (r *Repository) DeleteAsset(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[id]; !exists {
		return simpleimage.ErrAssetNotFound
	}
	delete(r.assets, id)

	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return nil
}
