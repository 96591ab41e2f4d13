package auth

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

const migrationsDir = "data/sql/migrations"

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() fs.FS {
	return migrationsFS
}

// gooseUpContext is a seam for tests
var gooseUpContext = func(ctx context.Context, db *bun.DB, dir string) error {
	return goose.UpContext(ctx, db.DB, dir)
}

type MigrateOption func(*migrateOptions)

type migrateOptions struct {
	logger Logger
}

// WithMigrationLogger routes goose output through logger
func WithMigrationLogger(logger Logger) MigrateOption {
	return func(o *migrateOptions) {
		o.logger = normalizeLogger(logger)
	}
}

// Migrate applies the embedded schema to db. The goose dialect follows the
// bun dialect so the same migrations run on sqlite and postgres.
func Migrate(ctx context.Context, db *bun.DB, opts ...MigrateOption) error {
	if db == nil {
		return goerrors.New("database is required", goerrors.CategoryBadInput)
	}

	options := migrateOptions{logger: defLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	goose.SetLogger(gooseLogger{logger: options.logger})
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect(gooseDialect(db)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to select migration dialect")
	}

	if err := gooseUpContext(ctx, db, migrationsDir); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to run migrations")
	}
	return nil
}

func gooseDialect(db *bun.DB) string {
	switch db.Dialect().Name() {
	case dialect.PG:
		return "postgres"
	default:
		return "sqlite3"
	}
}

// gooseLogger adapts Logger to goose.Logger. Fatalf is reported as an error
// and does not exit the process.
type gooseLogger struct {
	logger Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
