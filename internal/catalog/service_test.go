package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-cart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
)

func setupCatalogDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec(`CREATE TABLE products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  price NUMERIC NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, name, price string, active bool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, db.Exec(
		"INSERT INTO products (id, name, price, is_active) VALUES (?, ?, ?, ?)",
		id, name, price, active,
	).Error)
	return id
}

func TestLookupReturnsStoredRow(t *testing.T) {
	db := setupCatalogDB(t)
	id := seedProduct(t, db, "Tea", "4.50", false)

	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	product, err := svc.Lookup(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "Tea", product.Name)
	require.False(t, product.IsActive)
	require.True(t, product.Price.Equal(decimal.RequireFromString("4.50")))
}

func TestLookupMissingIsNotFound(t *testing.T) {
	db := setupCatalogDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	_, err = svc.Lookup(context.Background(), uuid.New())
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Lookup(context.Background(), uuid.Nil)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestGetHidesInactiveProducts(t *testing.T) {
	db := setupCatalogDB(t)
	active := seedProduct(t, db, "Coffee", "12.5", true)
	inactive := seedProduct(t, db, "Retired", "1.00", false)

	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	product, err := svc.Get(context.Background(), active)
	require.NoError(t, err)
	require.Equal(t, "12.50", product.Price)

	_, err = svc.Get(context.Background(), inactive)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

type failingReader struct{}

func (failingReader) FindByID(context.Context, uuid.UUID) (*models.Product, error) {
	return nil, errors.New("connection reset")
}

func TestLookupWrapsRepositoryFailures(t *testing.T) {
	svc, err := NewService(failingReader{})
	require.NoError(t, err)

	_, err = svc.Lookup(context.Background(), uuid.New())
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
}

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}

func TestRepositoryFindByIDReadsPricingColumns(t *testing.T) {
	db := setupCatalogDB(t)
	id := seedProduct(t, db, "Flat White", "4.20", false)
	repo := NewRepository(db)

	product, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "Flat White", product.Name)
	require.True(t, product.Price.Equal(decimal.RequireFromString("4.20")))
	require.False(t, product.IsActive)
	require.True(t, product.CreatedAt.IsZero(), "created_at is not read")

	_, err = repo.FindByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
