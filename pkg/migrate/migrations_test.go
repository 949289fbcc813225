package migrate

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestShippedMigrationsValidate(t *testing.T) {
	require.NoError(t, Validate("migrations"))
	require.NoError(t, Validate(DefaultDir))
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	src, err := Source(DefaultDir)
	require.NoError(t, err)
	embedded, err := fs.Glob(src, "*.sql")
	require.NoError(t, err)

	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	for i := range onDisk {
		onDisk[i] = filepath.Base(onDisk[i])
	}
	assert.ElementsMatch(t, onDisk, embedded)
}

func TestSchemaMigrationsCarryCartConstraints(t *testing.T) {
	carts := readShipped(t, "*_create_carts.sql")
	for _, want := range []string{
		"CONSTRAINT carts_owner_key UNIQUE (owner_type, owner_id)",
		"FOREIGN KEY (cart_id) REFERENCES carts(id) ON DELETE CASCADE",
		"CHECK (quantity >= 1)",
		"CONSTRAINT cart_items_cart_product_key UNIQUE (cart_id, product_id)",
	} {
		assert.Contains(t, carts, want)
	}

	orders := readShipped(t, "*_create_orders.sql")
	for _, want := range []string{
		"CREATE TYPE order_status AS ENUM ('placed', 'fulfilled', 'cancelled')",
		"total numeric(12,2) NOT NULL",
		"CREATE TABLE IF NOT EXISTS order_items",
		"DROP TYPE IF EXISTS order_status",
	} {
		assert.Contains(t, orders, want)
	}
}

func TestCreateWritesTimestampedSkeleton(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 9, 14, 5, 0, 0, time.FixedZone("CET", 3600))

	created, err := Create(dir, "  Add Cart Notes!! ", at)
	require.NoError(t, err)
	assert.Equal(t, "20260309130500_add_cart_notes.sql", filepath.Base(created))
	require.NoError(t, Validate(dir))

	_, err = Create(dir, "add cart notes", at)
	assert.Error(t, err, "same version must not be overwritten")

	_, err = Create(dir, "!!!", at)
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	src := fstest.MapFS{
		"20260101000000_ok.sql":      {Data: []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")},
		"20260101000000_again.sql":   {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"20260102000000_no_down.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		"2026_bad-name.sql":          {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"README.md":                  {Data: []byte("ignored")},
	}

	err := validateFS(src)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "already used by")
	assert.Contains(t, msg, `missing "-- +goose Down"`)
	assert.Contains(t, msg, "2026_bad-name.sql")
	assert.NotContains(t, msg, "README")
}

func TestMigratorWalksVersions(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "schema.db")), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	pool, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	src := fstest.MapFS{
		"20260101000000_notes.sql": {Data: []byte("-- +goose Up\nCREATE TABLE notes (id integer);\n-- +goose Down\nDROP TABLE notes;\n")},
		"20260102000000_tags.sql":  {Data: []byte("-- +goose Up\nCREATE TABLE tags (id integer);\n-- +goose Down\nDROP TABLE tags;\n")},
	}
	m, err := newMigrator(pool, goose.DialectSQLite3, src)
	require.NoError(t, err)
	ctx := context.Background()

	applied, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 2)
	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20260102000000), version)

	back, err := m.To(ctx, "20260101000000")
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, int64(20260102000000), back[0].Source.Version)

	none, err := m.To(ctx, "20260101000000")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = m.To(ctx, "yesterday")
	assert.Error(t, err)

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, goose.StateApplied, statuses[0].State)
	assert.Equal(t, goose.StatePending, statuses[1].State)

	last, err := m.Down(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	empty, err := m.Down(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func readShipped(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no migration matching %s", pattern)
	body, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(body)
}
