// Package db owns the workspace SQLite file. A workspace is any directory
// the user runs stk in; its state lives under a .sitetrack subdirectory so
// the database sits next to the project files it describes.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	dirName  = ".sitetrack"
	fileName = "sitetrack.db"
)

type Config struct {
	Workspace string
}

func workspaceDir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, dirName)
}

// Path returns where the workspace database lives.
func Path(workspace string) string {
	return filepath.Join(workspaceDir(workspace), fileName)
}

// EnsureWorkspace creates the .sitetrack directory if missing and returns it.
func EnsureWorkspace(workspace string) (string, error) {
	dir := workspaceDir(workspace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}
	return dir, nil
}

// Open opens the workspace database. WAL lets a running serve process and
// ad-hoc CLI commands read the same file without blocking each other, and
// busy_timeout covers the short windows where both write. A single
// connection serializes writers on our side instead of surfacing
// SQLITE_BUSY to callers.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := "file:" + Path(cfg.Workspace) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}
