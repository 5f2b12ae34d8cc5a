package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-image/pkg/simpleimage"
)

// Schema creates the Images table. Column names keep the camelCase
// spelling of the existing deployments, so they are quoted.
const Schema = `
CREATE TABLE IF NOT EXISTS "Images" (
	id BIGSERIAL PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	data VARCHAR(1024) NOT NULL,
	"createdAt" TIMESTAMPTZ NOT NULL DEFAULT now(),
	"updatedAt" TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simpleimage.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Name identifies the repository in errors and logs
func (r *Repository) Name() string {
	return "postgres"
}

// Migrate creates the Images table if it does not exist
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return r.handlePostgresError("migrate", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "22001": // string_data_right_truncation
			return fmt.Errorf("value too long in %s: %s", operation, pgErr.Message)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) CreateAsset(ctx context.Context, asset *simpleimage.Asset) error {
	if !asset.Key.Valid() {
		return simpleimage.ErrInvalidBlobKey
	}

	query := `
		INSERT INTO "Images" (name, data, "createdAt", "updatedAt")
		VALUES ($1, $2, now(), now())
		RETURNING id, "createdAt", "updatedAt"`

	err := r.db.QueryRow(ctx, query, asset.Name, asset.Key.String()).
		Scan(&asset.ID, &asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create asset", err)
	}

	return nil
}

func (r *Repository) GetAsset(ctx context.Context, id int64) (*simpleimage.Asset, error) {
	query := `SELECT id, name, data, "createdAt", "updatedAt" FROM "Images" WHERE id = $1`

	asset, err := scanAsset(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpleimage.ErrAssetNotFound
		}
		var corrupt *simpleimage.CorruptRecordError
		if errors.As(err, &corrupt) {
			return nil, err
		}
		return nil, r.handlePostgresError("get asset", err)
	}

	return asset, nil
}

func (r *Repository) ListAssets(ctx context.Context) ([]*simpleimage.Asset, error) {
	query := `SELECT id, name, data, "createdAt", "updatedAt" FROM "Images" ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, r.handlePostgresError("list assets", err)
	}
	defer rows.Close()

	var assets []*simpleimage.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			var corrupt *simpleimage.CorruptRecordError
			if errors.As(err, &corrupt) {
				return nil, err
			}
			return nil, r.handlePostgresError("list assets", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list assets", err)
	}

	return assets, nil
}

func (r *Repository) DeleteAsset(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM "Images" WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete asset", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleimage.ErrAssetNotFound
	}
	return nil
}

func scanAsset(row pgx.Row) (*simpleimage.Asset, error) {
	var (
		asset simpleimage.Asset
		raw   string
	)
	if err := row.Scan(&asset.ID, &asset.Name, &raw, &asset.CreatedAt, &asset.UpdatedAt); err != nil {
		return nil, err
	}

	key, err := simpleimage.KeyFromRecord(asset.ID, raw)
	if err != nil {
		return nil, err
	}
	asset.Key = key

	return &asset, nil
}
