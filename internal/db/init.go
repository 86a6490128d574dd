// Package db opens the sqlite account store used by the local
// authentication backend.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"embed"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var sqlFiles embed.FS

// DefaultPath returns the account database location under the XDG data
// directory.
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, "coursechat", "coursechat.sqlite")
}

// Open opens the sqlite database at path, creating the file and the
// schema if needed. An empty path falls back to DefaultPath.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("error creating database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("error pinging db: %w", err)
	}

	schema, _ := sqlFiles.ReadFile("schema.sql")
	if _, err := conn.Exec(string(schema)); err != nil {
		return nil, fmt.Errorf("error creating tables: %w", err)
	}
	return conn, nil
}
