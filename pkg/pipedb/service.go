// Package pipedb contains the relational store shared by every pipeline
// stage. The raw table is only written by gateway agents (modbus_agent,
// feed_collector); derived tables are only written by their owning stage.
// All derived data is recomputable by replaying the pipeline over the raw
// store.
package pipedb

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/NotCoffee418/dbmigrator"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store wraps the telemetry database. Safe for concurrent use; SQLite
// serializes writers underneath.
type Store struct {
	db *sql.DB
}

// Open opens (and creates, if needed) the telemetry database at path and
// applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping telemetry db: %w", err)
	}

	// Apply migrations
	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		db,
		migrationFS,
		"migrations",
	)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
