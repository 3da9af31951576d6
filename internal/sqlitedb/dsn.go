// Package sqlitedb centralizes DSN construction, local-file pragmas, and
// corrupt-database quarantine for the two databases this daemon owns: the
// per-profile index database and the shared metrics database.
package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config describes how to open a database.
type Config struct {
	// Path is a local filesystem path to the database.
	// Converted into a libsql-compatible DSN (file:<path>).
	Path string

	// URL is a libsql/Turso URL, e.g. libsql://your-db.turso.io.
	URL string

	// AuthToken is appended to URL-based DSNs as authToken=... when not already present.
	AuthToken string
}

func buildDSN(cfg Config) (string, error) {
	if u := strings.TrimSpace(cfg.URL); u != "" {
		return addAuthToken(u, cfg.AuthToken)
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", errors.New("database path or url is required")
	}
	if path == ":memory:" {
		return path, nil
	}

	if strings.HasPrefix(path, "file:") || strings.HasPrefix(path, "libsql:") {
		if strings.HasPrefix(path, "file:") {
			localPath, err := extractFilePath(path)
			if err != nil {
				return "", err
			}
			if err := ensureDir(localPath); err != nil {
				return "", err
			}
		}
		return path, nil
	}

	if err := ensureDir(path); err != nil {
		return "", err
	}

	return "file:" + filepath.Clean(path), nil
}

func addAuthToken(dsn string, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid database url: %w", err)
	}

	query := parsed.Query()
	if query.Get("authToken") == "" {
		query.Set("authToken", token)
		parsed.RawQuery = query.Encode()
	}

	return parsed.String(), nil
}

func extractFilePath(dsn string) (string, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid database path: %w", err)
	}

	if parsed.Path != "" {
		return strings.TrimPrefix(parsed.Path, "//"), nil
	}

	return strings.TrimPrefix(parsed.Opaque, "//"), nil
}

func configureLocal(ctx context.Context, db *sql.DB, dsn string) error {
	if db == nil {
		return errors.New("database connection is nil")
	}

	// Keep a single connection and use WAL to reduce lock contention. The
	// storage engine enforces single-writer/many-reader discipline above
	// this connection, not via pool size, but a single *sql.DB connection
	// keeps SQLite's own locking simple and predictable. For ":memory:"
	// this is not an optimization but a correctness requirement: each
	// pooled connection to an in-memory database is its own independent
	// database, so a pool bigger than one silently loses writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if dsn == ":memory:" {
		return nil
	}
	if !strings.HasPrefix(dsn, "file:") {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	var busyTimeout int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout=5000").Scan(&busyTimeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}

	return nil
}

func ensureDir(path string) error {
	if strings.TrimSpace(path) == "" || path == ":memory:" {
		return nil
	}

	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}

	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

// integrityCheck runs SQLite's built-in consistency check.
func integrityCheck(ctx context.Context, db *sql.DB) error {
	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// OpenChecked opens the database and quarantines (renames aside) a corrupt
// local file before recreating a fresh one in its place.
func OpenChecked(ctx context.Context, cfg Config, logf func(format string, args ...any)) (*sql.DB, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := integrityCheck(ctx, db); err != nil {
		_ = db.Close()

		path := strings.TrimSpace(cfg.Path)
		if path == "" || path == ":memory:" || cfg.URL != "" {
			// Nothing we can quarantine; surface the error as-is.
			return nil, fmt.Errorf("database failed integrity check: %w", err)
		}

		quarantined := path + ".corrupt." + time.Now().UTC().Format("20060102T150405Z")
		if renameErr := os.Rename(path, quarantined); renameErr != nil && !os.IsNotExist(renameErr) {
			return nil, fmt.Errorf("quarantine corrupt database: %w (original error: %v)", renameErr, err)
		}
		if logf != nil {
			logf("quarantined corrupt database %s as %s: %v", path, quarantined, err)
		}

		db, err = Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("recreate database after quarantine: %w", err)
		}
	}

	return db, nil
}
