package config

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-image/pkg/simpleimage"
)

func pngData(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		opts []Option
	}{
		{"memory", nil},
		{"filesystem and badger", []Option{
			WithFilesystemStorage(filepath.Join(dir, "uploads")),
			WithDatabase(DatabaseBadger, "badger://"+filepath.Join(dir, "db")),
		}},
		{"hash keys without event logging", []Option{
			WithKeyStrategy("hash"),
			WithEventLogging(false),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.opts...)
			require.NoError(t, err)

			comps, err := cfg.Build(context.Background(), nil)
			require.NoError(t, err)
			defer func() { assert.NoError(t, comps.Close()) }()

			ctx := context.Background()
			asset, err := comps.Service.Ingest(ctx, simpleimage.IngestRequest{Name: "dot.png", Data: pngData(t)})
			require.NoError(t, err)

			img, err := comps.Service.Fetch(ctx, asset.ID)
			require.NoError(t, err)
			assert.Equal(t, simpleimage.ContentTypePNG, img.ContentType)

			exists, err := comps.BlobStore.Exists(ctx, asset.Key)
			require.NoError(t, err)
			assert.True(t, exists)

			require.NoError(t, comps.Service.Remove(ctx, asset.ID))
		})
	}
}

func TestBuildServiceDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	svc, err := cfg.BuildService()
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestBuildFailsOnBadStorage(t *testing.T) {
	cfg, err := Load(WithS3Storage("bucket", "us-east-1"))
	require.NoError(t, err)
	cfg.Storage.Config["bucket"] = ""

	_, err = cfg.Build(context.Background(), nil)
	assert.ErrorContains(t, err, "bucket name is required")
}

func TestPingPostgresRequiresURL(t *testing.T) {
	assert.Error(t, PingPostgres("", ""))
}
