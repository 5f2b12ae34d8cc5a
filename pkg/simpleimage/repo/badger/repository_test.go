package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-image/pkg/simpleimage"
)

func tempRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newAsset(name string) *simpleimage.Asset {
	return &simpleimage.Asset{Name: name, Key: simpleimage.MustParseBlobKey("compressed_" + name)}
}

func TestBadgerRepository_AssetLifecycle(t *testing.T) {
	repo := tempRepo(t)
	ctx := context.Background()

	asset := newAsset("cat.jpg")
	require.NoError(t, repo.CreateAsset(ctx, asset))
	assert.Equal(t, int64(1), asset.ID)
	assert.False(t, asset.CreatedAt.IsZero())

	got, err := repo.GetAsset(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, "cat.jpg", got.Name)
	assert.Equal(t, asset.Key, got.Key)

	require.NoError(t, repo.DeleteAsset(ctx, asset.ID))
	_, err = repo.GetAsset(ctx, asset.ID)
	assert.ErrorIs(t, err, simpleimage.ErrAssetNotFound)
	assert.ErrorIs(t, repo.DeleteAsset(ctx, asset.ID), simpleimage.ErrAssetNotFound)
}

func TestBadgerRepository_ListInCreationOrder(t *testing.T) {
	repo := tempRepo(t)
	ctx := context.Background()

	// More than 255 records so a byte-wise unordered key would show up
	for i := 0; i < 300; i++ {
		require.NoError(t, repo.CreateAsset(ctx, newAsset(fmt.Sprintf("img%d.png", i))))
	}

	assets, err := repo.ListAssets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 300)
	for i := 1; i < len(assets); i++ {
		assert.Less(t, assets[i-1].ID, assets[i].ID)
	}
}

func TestBadgerRepository_CorruptRecord(t *testing.T) {
	repo := tempRepo(t)
	ctx := context.Background()

	data, err := json.Marshal(record{ID: 42, Name: "evil", Data: "../../etc/passwd"})
	require.NoError(t, err)
	require.NoError(t, repo.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(42), data)
	}))

	_, err = repo.GetAsset(ctx, 42)
	var corrupt *simpleimage.CorruptRecordError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, int64(42), corrupt.AssetID)

	_, err = repo.ListAssets(ctx)
	assert.ErrorAs(t, err, &corrupt)
}

func TestBadgerRepository_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")
	ctx := context.Background()

	repo, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	first := newAsset("a.jpg")
	require.NoError(t, repo.CreateAsset(ctx, first))
	require.NoError(t, repo.Close())

	repo, err = Open(Config{Dir: dir})
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.GetAsset(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Key, got.Key)

	second := newAsset("b.jpg")
	require.NoError(t, repo.CreateAsset(ctx, second))
	assert.Greater(t, second.ID, first.ID)
}

func TestBadgerRepository_RequiresDir(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)

	repo := tempRepo(t)
	err = repo.CreateAsset(context.Background(), &simpleimage.Asset{Name: "x", Key: "a/b"})
	assert.ErrorIs(t, err, simpleimage.ErrInvalidBlobKey)
}
