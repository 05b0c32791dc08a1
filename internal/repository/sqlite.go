package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opensource-finance/leadaging/internal/domain"
	_ "modernc.org/sqlite"
)

const (
	sqliteMemory             = ":memory:"
	defaultSQLiteBusyTimeout = 5 * time.Second
)

// openSQLite opens the community-tier store with modernc.org/sqlite.
// An in-memory database is pinned to one connection, since every new
// connection would otherwise see an empty database.
func openSQLite(cfg domain.RepositoryConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./leadaging.db"
	}

	if path != sqliteMemory {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := openDB("sqlite", sqliteDSN(path, cfg.SQLiteBusyTimeout), cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	if path == sqliteMemory {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// sqliteDSN builds the modernc DSN. File databases run in WAL mode so API
// reads proceed while the worker writes.
func sqliteDSN(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = defaultSQLiteBusyTimeout
	}

	pragmas := []string{
		fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()),
		"foreign_keys(ON)",
	}
	if path != sqliteMemory {
		pragmas = append(pragmas, "journal_mode(WAL)", "synchronous(NORMAL)")
	}

	return "file:" + path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")
}
