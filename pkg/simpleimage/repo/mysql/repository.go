package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// imageRow maps the Images table. The camelCase timestamp columns match
// the schema created by earlier deployments.
type imageRow struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;size:255;not null"`
	Data      string    `gorm:"column:data;size:1024;not null"`
	CreatedAt time.Time `gorm:"column:createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt"`
}

// TableName returns the database table name.
func (imageRow) TableName() string {
	return "Images"
}

func (row *imageRow) toAsset() (*simpleimage.Asset, error) {
	key, err := simpleimage.KeyFromRecord(row.ID, row.Data)
	if err != nil {
		return nil, err
	}
	return &simpleimage.Asset{
		ID:        row.ID,
		Name:      row.Name,
		Key:       key,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// Repository implements simpleimage.Repository using MySQL through gorm
type Repository struct {
	db *gorm.DB
}

// Open connects to MySQL with the given DSN, e.g.
// "user:pass@tcp(localhost:3306)/images?charset=utf8mb4&parseTime=True&loc=Local".
func Open(dsn string) (*Repository, error) {
	db, err := gorm.Open(gormMysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("init mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return New(db), nil
}

// New wraps an existing gorm handle
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Name identifies the repository in errors and logs
func (r *Repository) Name() string {
	return "mysql"
}

// Migrate creates or updates the Images table
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&imageRow{}); err != nil {
		return r.handleMySQLError("migrate", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *Repository) handleMySQLError(operation string, err error) error {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1146: // ER_NO_SUCH_TABLE
			return fmt.Errorf("table does not exist - database migration required")
		case 1406: // ER_DATA_TOO_LONG
			return fmt.Errorf("value too long in %s: %s", operation, mysqlErr.Message)
		default:
			return fmt.Errorf("database error in %s: %s (code: %d)", operation, mysqlErr.Message, mysqlErr.Number)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) CreateAsset(ctx context.Context, asset *simpleimage.Asset) error {
	if !asset.Key.Valid() {
		return simpleimage.ErrInvalidBlobKey
	}

	row := imageRow{Name: asset.Name, Data: asset.Key.String()}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.handleMySQLError("create asset", err)
	}

	asset.ID = row.ID
	asset.CreatedAt = row.CreatedAt
	asset.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, id int64) (*simpleimage.Asset, error) {
	var row imageRow
	if err := r.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, simpleimage.ErrAssetNotFound
		}
		return nil, r.handleMySQLError("get asset", err)
	}
	return row.toAsset()
}

func (r *Repository) ListAssets(ctx context.Context) ([]*simpleimage.Asset, error) {
	var rows []imageRow
	if err := r.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, r.handleMySQLError("list assets", err)
	}

	assets := make([]*simpleimage.Asset, 0, len(rows))
	for i := range rows {
		asset, err := rows[i].toAsset()
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

func (r *Repository) DeleteAsset(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&imageRow{}, id)
	if result.Error != nil {
		return r.handleMySQLError("delete asset", result.Error)
	}
	if result.RowsAffected == 0 {
		return simpleimage.ErrAssetNotFound
	}
	return nil
}
