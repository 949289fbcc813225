package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is the migrations directory relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

// Migrations is compiled into every binary so workers never read the
// schema from their working directory.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Source resolves dir to the filesystem goose reads. DefaultDir maps to the
// embedded copy.
func Source(dir string) (fs.FS, error) {
	switch dir {
	case "":
		return nil, errors.New("migration dir is required")
	case DefaultDir:
		return fs.Sub(Migrations, "migrations")
	default:
		return os.DirFS(dir), nil
	}
}

// Migrator applies the storefront schema through a goose provider.
type Migrator struct {
	provider *goose.Provider
}

// New builds a Postgres migrator over the migrations found in dir.
func New(db *sql.DB, dir string) (*Migrator, error) {
	src, err := Source(dir)
	if err != nil {
		return nil, err
	}
	return newMigrator(db, goose.DialectPostgres, src)
}

func newMigrator(db *sql.DB, dialect goose.Dialect, src fs.FS) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("sql db is required")
	}
	provider, err := goose.NewProvider(dialect, db, src)
	if err != nil {
		return nil, fmt.Errorf("building goose provider: %w", err)
	}
	return &Migrator{provider: provider}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) ([]*goose.MigrationResult, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return results, fmt.Errorf("goose up: %w", err)
	}
	return results, nil
}

// Down rolls back the latest migration. It returns nil when nothing is applied.
func (m *Migrator) Down(ctx context.Context) (*goose.MigrationResult, error) {
	result, err := m.provider.Down(ctx)
	if errors.Is(err, goose.ErrNoNextVersion) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("goose down: %w", err)
	}
	return result, nil
}

func (m *Migrator) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	return statuses, nil
}

// Version reports the highest applied migration, 0 on an empty database.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	version, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading db version: %w", err)
	}
	return version, nil
}

// To moves the schema up or down until target is the latest applied
// version. Target "0" rolls everything back.
func (m *Migrator) To(ctx context.Context, target string) ([]*goose.MigrationResult, error) {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || version < 0 {
		return nil, fmt.Errorf("invalid target version %q (expected YYYYMMDDHHMMSS)", target)
	}
	current, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}

	var results []*goose.MigrationResult
	switch {
	case version > current:
		results, err = m.provider.UpTo(ctx, version)
	case version < current:
		results, err = m.provider.DownTo(ctx, version)
	default:
		return nil, nil
	}
	if err != nil {
		return results, fmt.Errorf("migrating to %d: %w", version, err)
	}
	return results, nil
}
