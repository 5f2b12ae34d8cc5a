package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-image/pkg/simpleimage"
	"github.com/tendant/simple-image/pkg/simpleimage/events/amqp"
	"github.com/tendant/simple-image/pkg/simpleimage/objectkey"
	repobadger "github.com/tendant/simple-image/pkg/simpleimage/repo/badger"
	"github.com/tendant/simple-image/pkg/simpleimage/repo/memory"
	repomysql "github.com/tendant/simple-image/pkg/simpleimage/repo/mysql"
	repopg "github.com/tendant/simple-image/pkg/simpleimage/repo/postgres"
	fsstorage "github.com/tendant/simple-image/pkg/simpleimage/storage/fs"
	memorystorage "github.com/tendant/simple-image/pkg/simpleimage/storage/memory"
	s3storage "github.com/tendant/simple-image/pkg/simpleimage/storage/s3"
)

// Database types
const (
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
	DatabaseMySQL    = "mysql"
	DatabaseBadger   = "badger"
)

// Storage backend types
const (
	StorageMemory = "memory"
	StorageFS     = "fs"
	StorageS3     = "s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: DatabaseMemory,
		Storage: StorageBackendConfig{
			Type:   StorageMemory,
			Config: map[string]interface{}{},
		},
		KeyStrategy:        "prefix",
		AutoMigrate:        true,
		EnableEventLogging: true,
		MaxUploadBytes:     32 << 20,
	}
}

// ServerConfig represents server configuration for the simple-image service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres", "mysql", "badger"
	DBSchema     string // Postgres schema to use (default: search_path of the role)
	AutoMigrate  bool   // Create the Images table on startup

	// Storage configuration
	Storage StorageBackendConfig

	// Blob key derivation: "prefix" (compressed_<name>) or "hash"
	KeyStrategy string

	// Events
	EnableEventLogging bool
	AMQPURL            string
	AMQPExchange       string

	// Upload limits
	MaxUploadBytes int64
	UploadRate     float64 // uploads per second; 0 disables limiting
	UploadBurst    int
}

// StorageBackendConfig represents configuration for the blob storage backend
type StorageBackendConfig struct {
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case DatabaseMemory:
	case DatabasePostgres, DatabaseMySQL, DatabaseBadger:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required when using %s", c.DatabaseType)
		}
	default:
		return errors.New("database_type must be 'memory', 'postgres', 'mysql' or 'badger'")
	}

	switch c.Storage.Type {
	case StorageMemory, StorageFS, StorageS3:
	default:
		return fmt.Errorf("unsupported storage backend type: %s", c.Storage.Type)
	}

	if _, err := objectkey.FromName(c.KeyStrategy); err != nil {
		return err
	}

	if c.MaxUploadBytes <= 0 {
		return errors.New("max_upload_bytes must be positive")
	}
	if c.UploadRate < 0 {
		return errors.New("upload_rate cannot be negative")
	}
	if c.UploadRate > 0 && c.UploadBurst <= 0 {
		c.UploadBurst = 1
	}

	return nil
}

// Components is a fully wired service together with the stores behind it.
// Close releases pools, embedded databases and broker connections.
type Components struct {
	Service    simpleimage.Service
	Repository simpleimage.Repository
	BlobStore  simpleimage.BlobStore

	closers []func() error
}

// Close releases every resource opened by Build, in reverse order
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Components) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Build creates the repository, blob store, event sinks and Service
// described by the configuration.
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	comps := &Components{}

	repo, err := c.buildRepository(ctx, comps)
	if err != nil {
		_ = comps.Close()
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	comps.Repository = repo

	store, err := c.buildStorageBackend(ctx)
	if err != nil {
		_ = comps.Close()
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.Storage.Type, err)
	}
	comps.BlobStore = store

	keyGen, err := objectkey.FromName(c.KeyStrategy)
	if err != nil {
		_ = comps.Close()
		return nil, err
	}

	options := []simpleimage.Option{
		simpleimage.WithRepository(repo),
		simpleimage.WithBlobStore(store),
		simpleimage.WithKeyGenerator(keyGen),
		simpleimage.WithLogger(logger),
	}

	// Set up event sinks
	var sinks simpleimage.MultiEventSink
	if c.EnableEventLogging {
		sinks = append(sinks, simpleimage.NewLogEventSink(logger))
	}
	if c.AMQPURL != "" {
		sink, err := amqp.Dial(c.AMQPURL, c.AMQPExchange)
		if err != nil {
			_ = comps.Close()
			return nil, fmt.Errorf("failed to connect event broker: %w", err)
		}
		comps.onClose(func() error { sink.Close(); return nil })
		sinks = append(sinks, sink)
	}
	if len(sinks) > 0 {
		options = append(options, simpleimage.WithEventSink(sinks))
	}

	svc, err := simpleimage.New(options...)
	if err != nil {
		_ = comps.Close()
		return nil, err
	}
	comps.Service = svc

	return comps, nil
}

// BuildService creates a Service instance from the server configuration.
// Resources opened for it live until the process exits.
func (c *ServerConfig) BuildService() (simpleimage.Service, error) {
	comps, err := c.Build(context.Background(), nil)
	if err != nil {
		return nil, err
	}
	return comps.Service, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context, comps *Components) (simpleimage.Repository, error) {
	switch c.DatabaseType {
	case DatabaseMemory:
		return memory.New(), nil

	case DatabasePostgres:
		pool, err := newPostgresPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		comps.onClose(func() error { pool.Close(); return nil })
		repo := repopg.NewWithPool(pool)
		if c.AutoMigrate {
			if err := repo.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		return repo, nil

	case DatabaseMySQL:
		dsn, err := MySQLDSN(c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		repo, err := repomysql.Open(dsn)
		if err != nil {
			return nil, err
		}
		comps.onClose(repo.Close)
		if c.AutoMigrate {
			if err := repo.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		return repo, nil

	case DatabaseBadger:
		dir, err := badgerDir(c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		repo, err := repobadger.Open(repobadger.Config{Dir: dir})
		if err != nil {
			return nil, err
		}
		comps.onClose(repo.Close)
		return repo, nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func newPostgresPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres and optionally sets search_path for the session.
// It fails if the schema (when provided) does not exist.
func PingPostgres(databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	pool, err := newPostgresPool(context.Background(), databaseURL, schema)
	if err != nil {
		return err
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// buildStorageBackend creates a BlobStore based on the backend configuration
func (c *ServerConfig) buildStorageBackend(ctx context.Context) (simpleimage.BlobStore, error) {
	config := c.Storage
	switch config.Type {
	case StorageMemory:
		return memorystorage.New(), nil

	case StorageFS:
		return fsstorage.New(fsstorage.Config{
			BaseDir: getString(config.Config, "base_dir", "./uploads"),
		})

	case StorageS3:
		return s3storage.New(s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			Prefix:                 getString(config.Config, "prefix", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}
