// Package storage implements the embedded rule and threat intel store backed
// by a single SQLite file.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite holds the database connections for the embedded store.
// Separate read and write pools leverage WAL mode's concurrency model:
// unlimited concurrent readers plus exactly one writer.
type SQLite struct {
	WriteDB *sql.DB // single-connection pool, serializes all writers
	ReadDB  *sql.DB // concurrent read pool, snapshot reads under WAL
	Path    string
	logger  *zap.SugaredLogger
}

// configureSQLiteConnection applies the standard pragmas to a pool.
// WAL mode must be set via PRAGMA; connection string parameters are not
// reliable across drivers.
func configureSQLiteConnection(db *sql.DB, poolType string, logger *zap.SugaredLogger) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Prevent immediate SQLITE_BUSY errors when the single writer is held.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	logger.Debugf("SQLite %s pool configured", poolType)
	return nil
}

// NewSQLite opens the database file, creating parent directories as needed.
func NewSQLite(dbPath string, logger *zap.SugaredLogger) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite write pool: %w", err)
	}
	// WAL allows only one writer at a time; more connections would just
	// queue on the file lock.
	writeDB.SetMaxOpenConns(1)

	if err := configureSQLiteConnection(writeDB, "write", logger); err != nil {
		writeDB.Close()
		return nil, err
	}

	readDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("failed to open SQLite read pool: %w", err)
	}
	readDB.SetMaxOpenConns(10)

	if err := configureSQLiteConnection(readDB, "read", logger); err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, err
	}

	logger.Infow("SQLite store opened", "path", dbPath)

	return &SQLite{
		WriteDB: writeDB,
		ReadDB:  readDB,
		Path:    dbPath,
		logger:  logger,
	}, nil
}

// Close closes both connection pools.
func (s *SQLite) Close() error {
	var firstErr error
	if err := s.WriteDB.Close(); err != nil {
		firstErr = err
	}
	if err := s.ReadDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
