// Package db provides database functionality for sketchd with in-memory SQLite
// and persistence to disk on shutdown.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bitswalk/sketchforge/src/common/paths"
	"github.com/bitswalk/sketchforge/src/sketchd/db/migrations"
	_ "github.com/mattn/go-sqlite3"
)

// persistedTables are copied back from disk in dependency order
var persistedTables = []string{"sketches", "components", "builds"}

// Database wraps the SQLite connection with persistence capabilities
type Database struct {
	db           *sql.DB
	persistPath  string
	mu           sync.RWMutex
	shutdownOnce sync.Once
}

// Config holds the database configuration
type Config struct {
	// PersistPath is the file path where the database will be saved on shutdown.
	// An empty path keeps the database purely in memory.
	PersistPath string
	// LoadOnStart determines whether to load existing data from disk on startup
	LoadOnStart bool
}

// DefaultConfig returns a default database configuration
func DefaultConfig() Config {
	return Config{
		PersistPath: "~/.sketchd/sketchd.db",
		LoadOnStart: true,
	}
}

// New creates a new in-memory database with persistence support
func New(cfg Config) (*Database, error) {
	persistPath := paths.Expand(cfg.PersistPath)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// Every new connection to :memory: is a fresh empty database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	database := &Database{
		db:          db,
		persistPath: persistPath,
	}

	if err := migrations.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if cfg.LoadOnStart && persistPath != "" {
		if _, err := os.Stat(persistPath); err == nil {
			if err := database.LoadFromDisk(); err != nil {
				log.Warn("Failed to load database from disk, starting fresh", "path", persistPath, "error", err)
			}
		}
	}

	return database, nil
}

// SchemaVersion returns the highest applied migration version
func (d *Database) SchemaVersion() (int, error) {
	return migrations.NewRunner(d.db).CurrentVersion()
}

// DB returns the underlying sql.DB for direct queries
func (d *Database) DB() *sql.DB {
	return d.db
}

// Shutdown persists the database to disk and closes the connection
func (d *Database) Shutdown() error {
	var shutdownErr error

	d.shutdownOnce.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		if d.persistPath != "" {
			if err := d.persistToDisk(); err != nil {
				shutdownErr = fmt.Errorf("failed to persist database: %w", err)
			}
		}

		if err := d.db.Close(); err != nil {
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%v; also failed to close database: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("failed to close database: %w", err)
			}
		}
	})

	return shutdownErr
}

// persistToDisk writes the in-memory database to a temp file with
// VACUUM INTO, then renames it over the target.
func (d *Database) persistToDisk() error {
	if d.persistPath == "" {
		return nil
	}

	dir := filepath.Dir(d.persistPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempPath := d.persistPath + ".tmp"
	os.Remove(tempPath)

	if _, err := d.db.Exec(fmt.Sprintf("VACUUM INTO '%s'", tempPath)); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to vacuum database to disk: %w", err)
	}

	if err := os.Rename(tempPath, d.persistPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename database file: %w", err)
	}

	return nil
}

// tableExistsInDiskDB checks if a table exists in the attached disk_db
func (d *Database) tableExistsInDiskDB(tableName string) bool {
	var count int
	err := d.db.QueryRow(`
		SELECT COUNT(*) FROM disk_db.sqlite_master
		WHERE type='table' AND name=?
	`, tableName).Scan(&count)
	return err == nil && count > 0
}

// LoadFromDisk loads data from the persisted database file into memory
func (d *Database) LoadFromDisk() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.persistPath == "" {
		return nil
	}

	if _, err := d.db.Exec(fmt.Sprintf("ATTACH DATABASE '%s' AS disk_db", d.persistPath)); err != nil {
		return fmt.Errorf("failed to attach disk database: %w", err)
	}
	defer d.db.Exec("DETACH DATABASE disk_db")

	for _, table := range persistedTables {
		if !d.tableExistsInDiskDB(table) {
			continue
		}
		query := fmt.Sprintf("INSERT OR REPLACE INTO %s SELECT * FROM disk_db.%s", table, table)
		if _, err := d.db.Exec(query); err != nil {
			// Schema drift between releases is tolerated, the table starts empty
			log.Warn("Failed to restore table", "table", table, "error", err)
		}
	}

	return nil
}

// SaveToDisk manually triggers a save to disk (for periodic backups)
func (d *Database) SaveToDisk() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.persistToDisk()
}
