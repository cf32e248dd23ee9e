package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	pipeline "github.com/goliatone/go-escrow-pipeline"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	sourceLabel = "go-escrow-pipeline"
)

// Registration reports what Register handed to the migration runner.
type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Migrations        []string
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

// WithValidationTargets limits registration to the given dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if next := dedupe(targets); len(next) > 0 {
			r.ValidationTargets = next
		}
	}
}

type dialectFS struct {
	dialect string
	path    string
	fsys    fs.FS
}

// Register hands the embedded pipeline migrations of every targeted dialect
// to registerFn. Both dialects must ship the same up/down pairs.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel:       sourceLabel,
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	for _, target := range reg.ValidationTargets {
		if target != DialectPostgres && target != DialectSQLite {
			return reg, fmt.Errorf("migrations: unsupported dialect %q", target)
		}
	}

	sources, err := dialectFilesystems(pipeline.GetMigrationsFS())
	if err != nil {
		return reg, err
	}
	names, err := pairedMigrations(sources)
	if err != nil {
		return reg, err
	}
	reg.Migrations = names

	for _, source := range sources {
		if !slices.Contains(reg.ValidationTargets, source.dialect) {
			continue
		}
		if err := registerFn(ctx, source.dialect, reg.SourceLabel, source.fsys); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", source.dialect, source.path, err)
		}
	}
	return reg, nil
}

func dialectFilesystems(root fs.FS) ([]dialectFS, error) {
	const base = "data/sql/migrations"
	postgresFS, err := fs.Sub(root, base)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", base, err)
	}
	sqliteFS, err := fs.Sub(postgresFS, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}
	return []dialectFS{
		{dialect: DialectPostgres, path: base, fsys: postgresFS},
		{dialect: DialectSQLite, path: base + "/sqlite", fsys: sqliteFS},
	}, nil
}

// pairedMigrations returns the migration names shared by every dialect,
// failing when an up file lacks its down file or the dialects diverge.
func pairedMigrations(sources []dialectFS) ([]string, error) {
	var expected []string
	for i, source := range sources {
		ups, err := fs.Glob(source.fsys, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: glob %s: %w", source.path, err)
		}
		if len(ups) == 0 {
			return nil, fmt.Errorf("migrations: %s has no *.up.sql files", source.path)
		}
		names := make([]string, 0, len(ups))
		for _, up := range ups {
			name := strings.TrimSuffix(up, ".up.sql")
			if _, err := fs.Stat(source.fsys, name+".down.sql"); err != nil {
				return nil, fmt.Errorf("migrations: %s/%s has no down migration", source.path, name)
			}
			names = append(names, name)
		}
		slices.Sort(names)
		if i == 0 {
			expected = names
			continue
		}
		if !slices.Equal(expected, names) {
			return nil, fmt.Errorf("migrations: %s migrations %v differ from %s %v", source.dialect, names, sources[0].dialect, expected)
		}
	}
	return expected, nil
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed == "" || slices.Contains(out, trimmed) {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
