package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/multierr"
)

var (
	fileNameRe  = regexp.MustCompile(`^(\d{14})_([a-z0-9]+(?:_[a-z0-9]+)*)\.sql$`)
	unsafeRunRe = regexp.MustCompile(`[^a-z0-9]+`)
)

const sqlTemplate = `-- +goose Up
-- +goose StatementBegin
-- apply %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert %[1]s
-- +goose StatementEnd
`

// Slug lowercases name and collapses anything outside [a-z0-9] to one
// underscore.
func Slug(name string) string {
	return strings.Trim(unsafeRunRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// Create writes an empty goose SQL migration into dir, versioned by the
// UTC timestamp at, and returns its path.
func Create(dir, name string, at time.Time) (string, error) {
	if dir == "" {
		return "", errors.New("migration dir is required")
	}
	slug := Slug(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}

	target := filepath.Join(dir, at.UTC().Format("20060102150405")+"_"+slug+".sql")
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating migration: %w", err)
	}
	if _, err := fmt.Fprintf(file, sqlTemplate, slug); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("writing %s: %w", target, err)
	}
	return target, file.Close()
}

// Validate checks every .sql file under dir: one version per file, a
// snake_case name, and both goose direction markers.
func Validate(dir string) error {
	src, err := Source(dir)
	if err != nil {
		return err
	}
	return validateFS(src)
}

func validateFS(src fs.FS) error {
	names, err := fs.Glob(src, "*.sql")
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	versions := make(map[string]string, len(names))
	var errs error
	for _, name := range names {
		match := fileNameRe.FindStringSubmatch(path.Base(name))
		if match == nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: expected YYYYMMDDHHMMSS_snake_name.sql", name))
			continue
		}
		if first, dup := versions[match[1]]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%s: version %s already used by %s", name, match[1], first))
			continue
		}
		versions[match[1]] = name

		body, err := fs.ReadFile(src, name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(body), marker) {
				errs = multierr.Append(errs, fmt.Errorf("%s: missing %q", name, marker))
			}
		}
	}
	return errs
}
