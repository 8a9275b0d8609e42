// Package sqlite implements storage.Store on a single SQLite file using the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/alphalite/internal/logging"
	"github.com/scrypster/alphalite/internal/storage"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Store implements storage.Store using SQLite.
type Store struct {
	db     *sql.DB
	dsn    string
	logger *slog.Logger

	memories  *memoryStore
	threads   *threadStore
	reminders *reminderStore
}

var _ storage.Store = (*Store)(nil)

// Option configures Open.
type Option func(*Store)

// WithLogger sets the logger used for recovery and close diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open opens (creating if needed) the database at dsn and applies pending
// migrations. If the first attempt fails because of stale WAL files left
// behind by a crashed process, it verifies no other process holds them and
// retries once after removing the stale -shm/-wal files.
func Open(dsn string, opts ...Option) (*Store, error) {
	s := &Store{dsn: dsn, logger: logging.Default()}
	for _, opt := range opts {
		opt(s)
	}

	err := s.open()
	if err == nil {
		return s, nil
	}
	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}
	removeStaleWAL(s.logger, dbPath)

	if retryErr := s.open(); retryErr != nil {
		return nil, goerr.Wrap(retryErr, "sqlite: failed after WAL recovery",
			goerr.V("path", dbPath), goerr.V("original", err.Error()))
	}

	s.logger.Warn("sqlite: recovered from stale WAL files", "path", dbPath)
	return s, nil
}

func (s *Store) open() error {
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return goerr.Wrap(err, "sqlite: failed to open database", goerr.V("dsn", s.dsn))
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return goerr.Wrap(err, "sqlite: failed to configure database", goerr.V("pragma", pragma))
		}
	}

	mgr, err := storage.NewMigrationManager(db, Migrations())
	if err != nil {
		db.Close()
		return err
	}
	applied, err := mgr.Up()
	if err != nil {
		db.Close()
		return err
	}
	if applied > 0 {
		s.logger.Debug("sqlite: applied migrations", "count", applied)
	}

	s.db = db
	s.memories = &memoryStore{db: db}
	s.threads = &threadStore{db: db}
	s.reminders = &reminderStore{db: db}
	return nil
}

// Memories returns the memory collection.
func (s *Store) Memories() storage.MemoryStore { return s.memories }

// Threads returns the chat thread collection.
func (s *Store) Threads() storage.ThreadStore { return s.threads }

// Reminders returns the reminder collection.
func (s *Store) Reminders() storage.ReminderStore { return s.reminders }

// DB exposes the underlying connection for maintenance tasks such as backups.
func (s *Store) DB() *sql.DB { return s.db }

// GetSetting returns the value stored under key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", goerr.Wrap(storage.ErrNotFound, "setting not found", goerr.V("key", key))
	}
	if err != nil {
		return "", goerr.Wrap(errors.Join(storage.ErrIOFailure, err), "sqlite: failed to read setting", goerr.V("key", key))
	}
	return value, nil
}

// SetSetting stores value under key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UnixNano())
	if err != nil {
		return goerr.Wrap(errors.Join(storage.ErrIOFailure, err), "sqlite: failed to write setting", goerr.V("key", key))
	}
	return nil
}

// Close flushes the WAL into the main database file and releases the
// connection. The TRUNCATE checkpoint removes the -shm and -wal files so the
// next process opens a clean database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn("sqlite: WAL checkpoint on close failed", "error", err)
	}
	err := s.db.Close()
	s.db = nil
	return err
}
