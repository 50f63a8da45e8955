package db

import (
	"database/sql"

	"github.com/rs/zerolog/log"
)

const (
	// created_at holds unix nanoseconds so ordering does not depend on the
	// driver's time formatting; seq breaks ties between equal timestamps.
	sqlCreateEntriesTable = `CREATE TABLE IF NOT EXISTS entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(namespace, key)
	)`

	sqlCreateEntriesIndices = `
		CREATE INDEX IF NOT EXISTS idx_entries_namespace_created ON entries(namespace, created_at, seq);
	`
)

// RunMigrations creates the schema. Statements are idempotent.
func (db *DB) RunMigrations() error {
	log.Debug().Msg("Database: running migrations")
	return db.wrapTransaction(func(tx *sql.Tx) error {
		for _, stmt := range []string{sqlCreateEntriesTable, sqlCreateEntriesIndices} {
			if _, err := tx.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	})
}
