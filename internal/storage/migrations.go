package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// ErrNoMigration indicates no migration has been applied yet.
var ErrNoMigration = errors.New("no migration")

// MigrationManager applies numbered SQL migrations from an fs.FS (usually an
// embed.FS compiled into the engine package). Files are named
// NNN_name.up.sql / NNN_name.down.sql; the applied version is tracked in the
// schema_migrations table. Only dialect-neutral SQL is issued by the manager
// itself, so the same code serves sqlite and postgres.
type MigrationManager struct {
	db     *sql.DB
	source fs.FS
}

type migration struct {
	version  uint
	name     string
	upFile   string
	downFile string
}

// NewMigrationManager creates a manager reading migrations from source.
func NewMigrationManager(db *sql.DB, source fs.FS) (*MigrationManager, error) {
	if db == nil {
		return nil, goerr.New("migrations: database connection is required")
	}
	if source == nil {
		return nil, goerr.New("migrations: migration source is required")
	}

	mgr := &MigrationManager{db: db, source: source}
	if err := mgr.ensureSchemaTable(); err != nil {
		return nil, goerr.Wrap(err, "migrations: failed to create schema table")
	}
	return mgr, nil
}

func (mgr *MigrationManager) ensureSchemaTable() error {
	_, err := mgr.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// Up applies all pending migrations in ascending version order and returns
// how many were applied.
func (mgr *MigrationManager) Up() (int, error) {
	migrations, err := mgr.loadMigrations()
	if err != nil {
		return 0, goerr.Wrap(err, "migrations: failed to load migration files")
	}

	current, err := mgr.Version()
	if err != nil && !errors.Is(err, ErrNoMigration) {
		return 0, goerr.Wrap(err, "migrations: failed to get current version")
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		stmt, err := fs.ReadFile(mgr.source, m.upFile)
		if err != nil {
			return applied, goerr.Wrap(err, "migrations: failed to read migration", goerr.V("file", m.upFile))
		}
		if _, err := mgr.db.Exec(string(stmt)); err != nil {
			return applied, goerr.Wrap(err, "migrations: failed to apply migration",
				goerr.V("version", m.version), goerr.V("name", m.name))
		}
		if _, err := mgr.db.Exec(fmt.Sprintf("INSERT INTO schema_migrations (version) VALUES (%d)", m.version)); err != nil {
			return applied, goerr.Wrap(err, "migrations: failed to record version", goerr.V("version", m.version))
		}
		applied++
	}

	return applied, nil
}

// Down rolls back all applied migrations in descending version order.
func (mgr *MigrationManager) Down() error {
	migrations, err := mgr.loadMigrations()
	if err != nil {
		return goerr.Wrap(err, "migrations: failed to load migration files")
	}

	current, err := mgr.Version()
	if errors.Is(err, ErrNoMigration) {
		return nil
	}
	if err != nil {
		return goerr.Wrap(err, "migrations: failed to get current version")
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version > migrations[j].version
	})

	for _, m := range migrations {
		if m.version > current || m.downFile == "" {
			continue
		}

		stmt, err := fs.ReadFile(mgr.source, m.downFile)
		if err != nil {
			return goerr.Wrap(err, "migrations: failed to read migration", goerr.V("file", m.downFile))
		}
		if _, err := mgr.db.Exec(string(stmt)); err != nil {
			return goerr.Wrap(err, "migrations: failed to roll back migration",
				goerr.V("version", m.version), goerr.V("name", m.name))
		}
		if _, err := mgr.db.Exec(fmt.Sprintf("DELETE FROM schema_migrations WHERE version = %d", m.version)); err != nil {
			return goerr.Wrap(err, "migrations: failed to remove version", goerr.V("version", m.version))
		}
	}

	return nil
}

// Version returns the highest applied migration version, or ErrNoMigration.
func (mgr *MigrationManager) Version() (uint, error) {
	var version uint
	err := mgr.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, goerr.Wrap(err, "migrations: failed to query version")
	}
	if version == 0 {
		return 0, ErrNoMigration
	}
	return version, nil
}

// loadMigrations lists NNN_name.up.sql files (paired with their .down.sql)
// at the root of the source, sorted by version ascending.
func (mgr *MigrationManager) loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(mgr.source, ".")
	if err != nil {
		return nil, err
	}

	byVersion := make(map[uint]*migration)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		idx := strings.Index(name, "_")
		if idx < 0 {
			continue
		}
		v, err := strconv.ParseUint(name[:idx], 10, 64)
		if err != nil {
			continue
		}
		rest := name[idx+1:]

		m, ok := byVersion[uint(v)]
		if !ok {
			m = &migration{version: uint(v)}
			byVersion[uint(v)] = m
		}
		switch {
		case strings.HasSuffix(rest, ".up.sql"):
			m.name = strings.TrimSuffix(rest, ".up.sql")
			m.upFile = name
		case strings.HasSuffix(rest, ".down.sql"):
			m.downFile = name
		}
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.upFile == "" {
			continue
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})
	return migrations, nil
}
