package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-image/pkg/simpleimage"
	"github.com/tendant/simple-image/pkg/simpleimage/config"
)

// sharedBuilder hands every command the same in-memory components so state
// survives between invocations.
func sharedBuilder(t *testing.T) (Builder, *config.Components) {
	t.Helper()
	cfg, err := config.Load(config.WithEventLogging(false))
	require.NoError(t, err)
	comps, err := cfg.Build(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return func(ctx context.Context, logger *slog.Logger) (*config.Components, error) {
		return comps, nil
	}, comps
}

func execute(t *testing.T, build Builder, args ...string) (string, error) {
	t.Helper()
	root, a := newRootCommand(build)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := runRoot(context.Background(), root, a)
	return out.String(), err
}

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := 0; x < 40; x++ {
		img.Set(x, x%30, color.RGBA{B: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestImagectl_Lifecycle(t *testing.T) {
	build, _ := sharedBuilder(t)
	dir := t.TempDir()
	src := writePNG(t, dir, "logo.png")

	out, err := execute(t, build, "ingest", src)
	require.NoError(t, err)
	assert.Contains(t, out, "Image ID: 1")
	assert.Contains(t, out, "Blob key: compressed_logo.png")

	out, err = execute(t, build, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "logo.png")
	assert.Contains(t, out, "compressed_logo.png")

	out, err = execute(t, build, "list", "--json")
	require.NoError(t, err)
	var assets []simpleimage.Asset
	require.NoError(t, json.Unmarshal([]byte(out), &assets))
	require.Len(t, assets, 1)
	assert.Equal(t, int64(1), assets[0].ID)

	dst := filepath.Join(dir, "out.png")
	_, err = execute(t, build, "fetch", "1", "-o", dst)
	require.NoError(t, err)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	_, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	out, err = execute(t, build, "remove", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed image 1")

	out, err = execute(t, build, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No images found")
}

func TestImagectl_IngestWithNameAndExt(t *testing.T) {
	build, _ := sharedBuilder(t)
	src := writePNG(t, t.TempDir(), "raw.png")

	out, err := execute(t, build, "ingest", src, "--name", "cover", "--ext", ".jpg")
	require.NoError(t, err)
	assert.Contains(t, out, "Blob key: compressed_cover")
}

func TestImagectl_Errors(t *testing.T) {
	build, _ := sharedBuilder(t)

	_, err := execute(t, build, "fetch", "abc")
	assert.ErrorContains(t, err, "invalid image id")

	_, err = execute(t, build, "fetch", "42")
	assert.ErrorIs(t, err, simpleimage.ErrAssetNotFound)

	_, err = execute(t, build, "remove", "42")
	assert.ErrorIs(t, err, simpleimage.ErrAssetNotFound)

	_, err = execute(t, build, "ingest", filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorContains(t, err, "failed to read")
}

// badgerBuilder opens fresh components over one badger directory per call.
// Badger holds an exclusive directory lock, so a command that leaves its
// components open makes the next one fail.
func badgerBuilder(t *testing.T) Builder {
	t.Helper()
	dbURL := "badger://" + filepath.Join(t.TempDir(), "db")
	return func(ctx context.Context, logger *slog.Logger) (*config.Components, error) {
		cfg, err := config.Load(
			config.WithDatabase(config.DatabaseBadger, dbURL),
			config.WithEventLogging(false),
		)
		if err != nil {
			return nil, err
		}
		return cfg.Build(ctx, logger)
	}
}

func TestImagectl_ReleasesComponentsAfterFailure(t *testing.T) {
	build := badgerBuilder(t)

	_, err := execute(t, build, "fetch", "99")
	require.ErrorIs(t, err, simpleimage.ErrAssetNotFound)

	_, err = execute(t, build, "remove", "99")
	require.ErrorIs(t, err, simpleimage.ErrAssetNotFound)

	out, err := execute(t, build, "list")
	require.NoError(t, err, "badger directory should be unlocked after failed commands")
	assert.Contains(t, out, "No images found")
}

func TestExecute_ReleasesOnError(t *testing.T) {
	build := badgerBuilder(t)

	err := Execute(context.Background(), build, []string{"fetch", "abc"})
	require.ErrorContains(t, err, "invalid image id")

	err = Execute(context.Background(), build, []string{"list", "--json"})
	require.NoError(t, err)
}

func TestImagectl_Audit(t *testing.T) {
	build, comps := sharedBuilder(t)
	dir := t.TempDir()

	_, err := execute(t, build, "ingest", writePNG(t, dir, "a.png"))
	require.NoError(t, err)
	_, err = execute(t, build, "ingest", writePNG(t, dir, "b.png"))
	require.NoError(t, err)

	out, err := execute(t, build, "audit")
	require.NoError(t, err)
	assert.Contains(t, out, "All records have stored bytes")

	require.NoError(t, comps.BlobStore.Delete(context.Background(), simpleimage.MustParseBlobKey("compressed_b.png")))

	out, err = execute(t, build, "audit")
	require.NoError(t, err)
	assert.Contains(t, out, "dangling\t2\tb.png\tcompressed_b.png")
	assert.NotContains(t, out, "Pruned")

	out, err = execute(t, build, "audit", "--prune")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 1 record(s)")

	assets, err := comps.Service.List(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "a.png", assets[0].Name)
}
