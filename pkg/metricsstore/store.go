package metricsstore

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/3leaps/gonimbus/internal/observability"
	"github.com/3leaps/gonimbus/internal/sqlitedb"
	"go.uber.org/zap"
)

// MetricsDBFileName is the well-known metrics database file name
//: a single database shared by every profile.
const MetricsDBFileName = "metrics.db"

// writeQueueDepth bounds the number of pending async writes. When full,
// RecordRequest/RecordCacheEvent drop the event rather than block the
// caller.
const writeQueueDepth = 1024

// Store wraps the shared metrics database and a bounded, non-blocking
// async write queue.
type Store struct {
	DB *sql.DB

	writeCh chan func(context.Context, *sql.DB)
	wg      sync.WaitGroup
	closeCh chan struct{}
	once    sync.Once
}

// Open opens (creating if needed) the metrics database at
// <dataDir>/metrics.db, runs migrations, and starts the async writer.
func Open(ctx context.Context, dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, MetricsDBFileName)
	db, err := sqlitedb.OpenChecked(ctx, sqlitedb.Config{Path: path}, func(format string, args ...any) {
		observability.Logger().Warn(fmt.Sprintf(format, args...))
	})
	if err != nil {
		return nil, fmt.Errorf("open metrics store: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate metrics store: %w", err)
	}

	s := &Store{
		DB:      db,
		writeCh: make(chan func(context.Context, *sql.DB), writeQueueDepth),
		closeCh: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.runWriter()
	return s, nil
}

// OpenInMemory opens an in-memory metrics database, primarily for tests.
func OpenInMemory(ctx context.Context) (*Store, error) {
	db, err := sqlitedb.Open(ctx, sqlitedb.Config{Path: ":memory:"})
	if err != nil {
		return nil, fmt.Errorf("open in-memory metrics store: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate in-memory metrics store: %w", err)
	}
	s := &Store{
		DB:      db,
		writeCh: make(chan func(context.Context, *sql.DB), writeQueueDepth),
		closeCh: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.runWriter()
	return s, nil
}

func (s *Store) runWriter() {
	defer s.wg.Done()
	ctx := context.Background()
	for {
		select {
		case fn := <-s.writeCh:
			fn(ctx, s.DB)
		case <-s.closeCh:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case fn := <-s.writeCh:
					fn(ctx, s.DB)
				default:
					return
				}
			}
		}
	}
}

// enqueue schedules an async write, dropping it (and logging) if the
// queue is full rather than blocking the caller.
func (s *Store) enqueue(fn func(context.Context, *sql.DB)) {
	select {
	case s.writeCh <- fn:
	default:
		observability.Logger().Warn("metrics write queue full, dropping event")
	}
}

// Close stops the async writer after draining queued writes, then closes
// the database connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.once.Do(func() { close(s.closeCh) })
	s.wg.Wait()
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// logWriteErr is a log convenience wrapper using the standard
// zap.Error(err) call shape.
func logWriteErr(op string, err error) {
	if err == nil {
		return
	}
	observability.Logger().Error("async metrics write failed", zap.String("op", op), zap.Error(err))
}
