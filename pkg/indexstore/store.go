// Package indexstore is the storage engine: an embedded
// relational store on disk, one database per profile, with transactional
// schema migrations and the query surface the index manager needs.
package indexstore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/3leaps/gonimbus/internal/observability"
	"github.com/3leaps/gonimbus/internal/sqlitedb"
	"go.uber.org/zap"
)

// Store wraps a single profile's index database connection.
//
// All writes must serialize via SQLite's own single-writer discipline
// (enforced by sqlitedb.configureLocal's single-connection pool); reads
// may proceed concurrently against that same connection because
// database/sql serializes access to it internally.
type Store struct {
	DB        *sql.DB
	ProfileID string
}

// IndexDBFileName returns the well-known per-profile database file name
//: index_<profile-id>.db.
func IndexDBFileName(profileID string) string {
	return fmt.Sprintf("index_%s.db", profileID)
}

// Open opens (creating if needed) the index database for a profile at
// <dataDir>/index_<profileID>.db, runs migrations, and returns a Store.
//
// A corrupt database file is quarantined (renamed aside) and replaced
// with a fresh one.
func Open(ctx context.Context, dataDir, profileID string) (*Store, error) {
	if profileID == "" {
		return nil, fmt.Errorf("profile id is required")
	}

	path := filepath.Join(dataDir, IndexDBFileName(profileID))
	db, err := sqlitedb.OpenChecked(ctx, sqlitedb.Config{Path: path}, func(format string, args ...any) {
		observability.Logger().Warn(fmt.Sprintf(format, args...), zap.String("profile_id", profileID))
	})
	if err != nil {
		return nil, fmt.Errorf("open index store for profile %s: %w", profileID, err)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate index store for profile %s: %w", profileID, err)
	}

	return &Store{DB: db, ProfileID: profileID}, nil
}

// OpenInMemory opens an in-memory index database, primarily for tests.
func OpenInMemory(ctx context.Context, profileID string) (*Store, error) {
	db, err := sqlitedb.Open(ctx, sqlitedb.Config{Path: ":memory:"})
	if err != nil {
		return nil, fmt.Errorf("open in-memory index store: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate in-memory index store: %w", err)
	}
	return &Store{DB: db, ProfileID: profileID}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
