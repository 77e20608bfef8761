package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
)

// migrationLockID keys the advisory lock that serializes migrations across
// replicas starting at the same time.
const migrationLockID int64 = 0x1d3e7717

// RunMigrations applies every pending goose migration in migrations to the
// database behind pool. Concurrent callers wait on a Postgres advisory lock.
// Transient connection failures are retried per DefaultRetryPolicy.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, logger *slog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	locker, err := lock.NewPostgresSessionLocker(lock.WithLockID(migrationLockID), lock.WithLockTimeout(2, 30))
	if err != nil {
		return fmt.Errorf("create migration lock: %w", err)
	}
	provider, err := newMigrationProvider(db, migrations, logger, goose.WithSessionLocker(locker))
	if err != nil {
		return err
	}

	results, err := withRetry(ctx, DefaultRetryPolicy(), logger, "migrations", func() ([]*goose.MigrationResult, error) {
		return provider.Up(ctx)
	})
	var partial *goose.PartialError
	if errors.As(err, &partial) {
		results = append(partial.Applied, partial.Failed)
	}
	for _, r := range results {
		logMigration(ctx, logger, r)
	}
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.InfoContext(ctx, "database schema up to date",
		slog.Int64("version", version),
		slog.Int("applied", len(results)),
	)
	return nil
}

func newMigrationProvider(db *sql.DB, migrations fs.FS, logger *slog.Logger, opts ...goose.ProviderOption) (*goose.Provider, error) {
	opts = append(opts, goose.WithLogger(gooseLogger{logger}))
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations, opts...)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	return provider, nil
}

func logMigration(ctx context.Context, logger *slog.Logger, r *goose.MigrationResult) {
	attrs := []slog.Attr{
		slog.Int64("version", r.Source.Version),
		slog.String("file", r.Source.Path),
		slog.Duration("duration", r.Duration),
	}
	if r.Error != nil {
		logger.LogAttrs(ctx, slog.LevelError, "migration failed", append(attrs, slog.String("error", r.Error.Error()))...)
		return
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "migration applied", attrs...)
}

// gooseLogger routes goose output into slog.
type gooseLogger struct{ l *slog.Logger }

func (g gooseLogger) Printf(format string, v ...any) {
	g.l.Info(fmt.Sprintf(format, v...), slog.String("component", "goose"))
}

// Fatalf is only reached by goose's package-level commands, which this
// service does not use.
func (g gooseLogger) Fatalf(format string, v ...any) {
	g.l.Error(fmt.Sprintf(format, v...), slog.String("component", "goose"))
}
