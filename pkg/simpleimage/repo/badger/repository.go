// Package badger stores asset records in an embedded Badger database, for
// single-node deployments that want persistence without a SQL server.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/tendant/simple-image/pkg/simpleimage"
)

var (
	recordPrefix = []byte("image/")
	sequenceKey  = []byte("seq/image")
)

const sequenceBandwidth = 100

// record is the persisted value. The key is kept as a raw string so that
// corrupt rows can be reported rather than silently dropped.
type record struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Config options for the Badger repository
type Config struct {
	Dir      string // Database directory; ignored when InMemory is set
	InMemory bool   // Keep everything in memory (tests)
}

// Repository implements simpleimage.Repository on Badger
type Repository struct {
	db  *badger.DB
	seq *badger.Sequence
}

// Open opens or creates the database
func Open(config Config) (*Repository, error) {
	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.Dir == "" {
			return nil, errors.New("badger directory is required")
		}
		opts = badger.DefaultOptions(config.Dir)
	}
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	seq, err := db.GetSequence(sequenceKey, sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open id sequence: %w", err)
	}

	return &Repository{db: db, seq: seq}, nil
}

// Close releases the id sequence and closes the database
func (r *Repository) Close() error {
	if err := r.seq.Release(); err != nil {
		_ = r.db.Close()
		return fmt.Errorf("failed to release id sequence: %w", err)
	}
	return r.db.Close()
}

// Name identifies the repository in errors and logs
func (r *Repository) Name() string {
	return "badger"
}

// recordKey orders records by id under iteration
func recordKey(id int64) []byte {
	key := make([]byte, len(recordPrefix)+8)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], uint64(id))
	return key
}

func (rec *record) toAsset() (*simpleimage.Asset, error) {
	key, err := simpleimage.KeyFromRecord(rec.ID, rec.Data)
	if err != nil {
		return nil, err
	}
	return &simpleimage.Asset{
		ID:        rec.ID,
		Name:      rec.Name,
		Key:       key,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func (r *Repository) CreateAsset(ctx context.Context, asset *simpleimage.Asset) error {
	if !asset.Key.Valid() {
		return simpleimage.ErrInvalidBlobKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	next, err := r.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to allocate id: %w", err)
	}

	now := time.Now().UTC()
	rec := record{
		ID:        int64(next) + 1, // sequences start at zero
		Name:      asset.Name,
		Data:      asset.Key.String(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		return txn.Set(recordKey(rec.ID), data)
	})
	if err != nil {
		return err
	}

	asset.ID = rec.ID
	asset.CreatedAt = rec.CreatedAt
	asset.UpdatedAt = rec.UpdatedAt
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, id int64) (*simpleimage.Asset, error) {
	var rec record
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return simpleimage.ErrAssetNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return rec.toAsset()
}

func (r *Repository) ListAssets(ctx context.Context) ([]*simpleimage.Asset, error) {
	var assets []*simpleimage.Asset
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("failed to decode record: %w", err)
			}
			asset, err := rec.toAsset()
			if err != nil {
				return err
			}
			assets = append(assets, asset)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assets, nil
}

func (r *Repository) DeleteAsset(ctx context.Context, id int64) error {
	return r.db.Update(func(txn *badger.Txn) error {
		key := recordKey(id)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return simpleimage.ErrAssetNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}
