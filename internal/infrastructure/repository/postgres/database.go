package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"notification-sync-service/config"
	"notification-sync-service/pkg/logging"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open abre la base de datos configurada, reintenta el ping con backoff exponencial
// y devuelve la conexión junto con el dialecto goqu que le corresponde
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger) (*sql.DB, string, error) {
	driver, dialect := "postgres", DialectPostgres
	if cfg.Driver == "sqlite" {
		driver, dialect = "sqlite", DialectSQLite
	}

	db, err := sql.Open(driver, cfg.GetDatabaseDSN())
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		// sqlite admite un único escritor
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.ConnectTimeout

	ping := func() error {
		return db.PingContext(ctx)
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Database not ready, retrying in %s: %v", wait, err)
	}

	if err := backoff.RetryNotify(ping, backoff.WithContext(policy, ctx), notify); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := Migrate(ctx, db, dialect); err != nil {
			db.Close()
			return nil, "", err
		}
	}

	return db, dialect, nil
}
