package simpleimage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/tendant/simple-image/pkg/simpleimage/objectkey"
	"github.com/tendant/simple-image/pkg/simpleimage/transcode"
)

// service implements the Service interface
type service struct {
	repository   Repository
	blobStore    BlobStore
	transcoder   Transcoder
	keyGenerator objectkey.Generator
	eventSink    EventSink
	logger       *slog.Logger
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the metadata repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the blob storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithTranscoder replaces the default transcoding engine
func WithTranscoder(t Transcoder) Option {
	return func(s *service) {
		s.transcoder = t
	}
}

// WithKeyGenerator sets the blob key derivation strategy
func WithKeyGenerator(g objectkey.Generator) Option {
	return func(s *service) {
		s.keyGenerator = g
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.transcoder == nil {
		s.transcoder = transcode.New()
	}
	if s.keyGenerator == nil {
		s.keyGenerator = objectkey.NewPrefixGenerator()
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

func (s *service) Ingest(ctx context.Context, req IngestRequest) (*Asset, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: image data is required", ErrInvalidRequest)
	}

	ext := req.Extension
	if ext == "" {
		ext = filepath.Ext(req.Name)
	}

	out, err := s.transcoder.Transcode(ctx, req.Data, ext)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TranscodeError{Name: req.Name, Extension: ext, Err: err}
	}

	key, err := ParseBlobKey(s.keyGenerator.GenerateKey(req.Name, out.Extension, out.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot derive blob key from name %q: %v", ErrInvalidRequest, req.Name, err)
	}

	if err := s.blobStore.Put(ctx, key, bytes.NewReader(out.Data)); err != nil {
		return nil, &StorageError{
			Backend: backendName(s.blobStore),
			Key:     key.String(),
			Op:      "put",
			Err:     err,
		}
	}

	asset := &Asset{
		Name: req.Name,
		Key:  key,
	}
	if err := s.repository.CreateAsset(ctx, asset); err != nil {
		// The blob stays behind without a record.
		s.logger.Warn("Orphaned blob after failed record create",
			"key", key.String(), "name", req.Name, "err", err)
		return nil, &StorageError{
			Backend: backendName(s.repository),
			Key:     key.String(),
			Op:      "create",
			Err:     err,
		}
	}

	s.logger.Debug("Image ingested",
		"id", asset.ID, "key", key.String(), "format", out.Format,
		"width", out.Width, "height", out.Height, "bytes", len(out.Data))

	if err := s.eventSink.AssetIngested(ctx, asset); err != nil {
		s.logger.Warn("Event sink failed", "event", "asset_ingested", "id", asset.ID, "err", err)
	}

	return asset, nil
}

func (s *service) List(ctx context.Context) ([]*Asset, error) {
	assets, err := s.repository.ListAssets(ctx)
	if err != nil {
		var corrupt *CorruptRecordError
		if errors.As(err, &corrupt) {
			return nil, err
		}
		return nil, &StorageError{
			Backend: backendName(s.repository),
			Op:      "list",
			Err:     err,
		}
	}
	return assets, nil
}

func (s *service) Fetch(ctx context.Context, id int64) (*Image, error) {
	asset, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	rc, err := s.blobStore.Get(ctx, asset.Key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, fmt.Errorf("asset %d: %w", id, ErrBlobNotFound)
		}
		return nil, &StorageError{
			Backend: backendName(s.blobStore),
			Key:     asset.Key.String(),
			Op:      "get",
			Err:     err,
		}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &StorageError{
			Backend: backendName(s.blobStore),
			Key:     asset.Key.String(),
			Op:      "read",
			Err:     err,
		}
	}

	return &Image{
		Asset:       asset,
		Data:        data,
		ContentType: ContentTypeForKey(asset.Key),
	}, nil
}

func (s *service) Remove(ctx context.Context, id int64) error {
	asset, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}

	// Blob first: an interruption leaves a dangling record, never an
	// unreachable blob.
	exists, err := s.blobStore.Exists(ctx, asset.Key)
	if err != nil {
		return &StorageError{
			Backend: backendName(s.blobStore),
			Key:     asset.Key.String(),
			Op:      "exists",
			Err:     err,
		}
	}
	if exists {
		if err := s.blobStore.Delete(ctx, asset.Key); err != nil && !errors.Is(err, ErrBlobNotFound) {
			return &StorageError{
				Backend: backendName(s.blobStore),
				Key:     asset.Key.String(),
				Op:      "delete",
				Err:     err,
			}
		}
	}

	if err := s.repository.DeleteAsset(ctx, id); err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			return err
		}
		return &StorageError{
			Backend: backendName(s.repository),
			Key:     asset.Key.String(),
			Op:      "delete_record",
			Err:     err,
		}
	}

	if err := s.eventSink.AssetRemoved(ctx, asset); err != nil {
		s.logger.Warn("Event sink failed", "event", "asset_removed", "id", id, "err", err)
	}

	return nil
}

// lookup loads the record and checks that its key is usable.
func (s *service) lookup(ctx context.Context, id int64) (*Asset, error) {
	asset, err := s.repository.GetAsset(ctx, id)
	if err != nil {
		var corrupt *CorruptRecordError
		if errors.Is(err, ErrAssetNotFound) || errors.As(err, &corrupt) {
			return nil, err
		}
		return nil, &StorageError{
			Backend: backendName(s.repository),
			Op:      "get_record",
			Err:     err,
		}
	}

	if !asset.Key.Valid() {
		return nil, &CorruptRecordError{AssetID: asset.ID, Key: string(asset.Key), Err: ErrInvalidBlobKey}
	}

	return asset, nil
}

func backendName(v interface{}) string {
	if n, ok := v.(Namer); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", v)
}
