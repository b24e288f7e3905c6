// Package db opens Core's Postgres connection and applies its schema:
// connect, ping, then execute the embedded schema in sequence.
package db

import (
	_ "embed"
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"
)

//go:embed migrations/0001_notifications.sql
var schema string

// Connect opens the database and applies the schema. The schema is
// idempotent (CREATE TABLE/INDEX IF NOT EXISTS), so this is safe to run
// on every process start rather than requiring a separate migration
// step.
func Connect(dsn string) (*sqlx.DB, error) {
	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return conn, nil
}
