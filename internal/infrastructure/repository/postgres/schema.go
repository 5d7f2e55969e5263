package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialectos goqu soportados por el almacén
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

const notificationsTable = "notifications"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY,
		request_id UUID NOT NULL,
		tenant_id UUID NOT NULL,
		recipient_id UUID NOT NULL,
		type VARCHAR(32) NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL,
		info TEXT NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient_status
		ON notifications (tenant_id, recipient_id, status, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_request
		ON notifications (tenant_id, request_id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		type TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL,
		info TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient_status
		ON notifications (tenant_id, recipient_id, status, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_request
		ON notifications (tenant_id, request_id)`,
}

// Migrate crea las tablas e índices si no existen
func Migrate(ctx context.Context, db *sql.DB, dialect string) error {
	statements := postgresSchema
	if dialect == DialectSQLite {
		statements = sqliteSchema
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
