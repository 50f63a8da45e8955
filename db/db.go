package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

const maxBusyRetries = 10

const (
	sqlUpsertEntry = `INSERT INTO entries(namespace, key, value, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
                        ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	sqlSelectEntry = `SELECT value FROM entries WHERE namespace = ? AND key = ?`
	sqlCountEntry  = `SELECT COUNT(1) FROM entries WHERE namespace = ? AND key = ?`
	sqlSelectKeys  = `SELECT key FROM entries WHERE namespace = ? ORDER BY created_at ASC, seq ASC`
)

// Open opens (and migrates) the sqlite database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)

		var journalMode string
		if err := sqlDB.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
			log.Warn().Err(err).Msg("Database: failed to enable WAL mode")
		} else {
			log.Debug().Str("mode", journalMode).Msg("Database: journal mode")
		}
	}

	sqlDB.Exec("PRAGMA synchronous = NORMAL")
	sqlDB.Exec("PRAGMA temp_store = MEMORY")
	sqlDB.Exec("PRAGMA busy_timeout = 5000")

	database := &DB{db: sqlDB}
	if err := database.RunMigrations(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return database, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Store returns the key-value view of one namespace.
func (db *DB) Store(namespace string) *SQLiteStore {
	return &SQLiteStore{db: db, namespace: namespace}
}

// SQLiteStore persists values of a single namespace in the entries table.
type SQLiteStore struct {
	db        *DB
	namespace string
}

func (s *SQLiteStore) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.db.QueryRow(sqlSelectEntry, s.namespace, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set inserts or replaces the value; a replaced key keeps its original position.
func (s *SQLiteStore) Set(key string, value []byte) error {
	now := time.Now().UnixNano()
	return s.db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertEntry, s.namespace, key, value, now, now)
		return err
	})
}

func (s *SQLiteStore) Has(key string) (bool, error) {
	var count int
	if err := s.db.db.QueryRow(sqlCountEntry, s.namespace, key).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLiteStore) Keys() ([]string, error) {
	rows, err := s.db.db.Query(sqlSelectKeys, s.namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// wrapTransaction runs the given function within a transaction.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error().Err(err).Msg("Database: error starting transaction")
		return err
	}
	for attempt := 0; ; attempt++ {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY && attempt < maxBusyRetries {
				continue
			}
			log.Error().Err(err).Msg("Database: error in transaction")
			tx.Rollback()
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Error().Err(err).Msg("Database: error committing transaction")
			return err
		}
		break
	}
	return nil
}
