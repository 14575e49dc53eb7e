// Package pg bridges the pgx pool to tooling that expects database/sql.
package pg

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies embedded schema migrations using goose. The pgx pool is
// wrapped in a database/sql adapter because goose does not speak pgx natively.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, logger *slog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil && logger != nil {
			logger.Warn("close migration connection", slog.Any("error", err))
		}
	}()

	goose.SetBaseFS(fsys)
	goose.SetLogger(slogAdapter{logger: logger})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("platform/pg: set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("platform/pg: apply migrations: %w", err)
	}

	return nil
}

type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Fatalf(format string, v ...any) {
	if a.logger != nil {
		a.logger.Error(fmt.Sprintf(format, v...))
	}
}

func (a slogAdapter) Printf(format string, v ...any) {
	if a.logger != nil {
		a.logger.Info(fmt.Sprintf(format, v...))
	}
}
