package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"engage/internal/config"
	"engage/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS emotion_samples (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	student_id  TEXT NOT NULL,
	emotion     TEXT NOT NULL,
	recorded_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_emotion_samples_session
	ON emotion_samples(session_id, recorded_at);
`

// Store archives accepted samples to SQLite. It is the fire-and-forget
// persistence collaborator: LogSample enqueues without blocking and a full
// queue or closed store drops the sample, because archival unavailability
// must never affect the in-memory aggregation path.
//
// All writes flow through a single goroutine; SQLite performs poorly with
// concurrent writers even in WAL mode.
type Store struct {
	db      *sql.DB
	queue   chan *types.Sample
	timeout time.Duration

	shutdown chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewStore opens (or creates) the archive database and starts the writer.
func NewStore(cfg *config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer plus concurrent readers.
	db.SetMaxOpenConns(4)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &Store{
		db:       db,
		queue:    make(chan *types.Sample, cfg.QueueSize),
		timeout:  cfg.Timeout,
		shutdown: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// LogSample enqueues a sample for archival. Never blocks: a full queue drops
// the sample and logs, it does not back-pressure ingestion.
func (s *Store) LogSample(sample *types.Sample) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()

	select {
	case s.queue <- sample:
	default:
		log.Printf("Sample archive queue full, dropping sample: session=%s student=%s",
			sample.SessionID, sample.StudentID)
	}
}

func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case sample := <-s.queue:
			if err := s.insertSample(sample); err != nil {
				log.Printf("Failed to archive sample: session=%s err=%v", sample.SessionID, err)
			}
		case <-s.shutdown:
			// Drain whatever is already queued, then stop.
			for {
				select {
				case sample := <-s.queue:
					if err := s.insertSample(sample); err != nil {
						log.Printf("Failed to archive sample during shutdown: %v", err)
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Store) insertSample(sample *types.Sample) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO emotion_samples (id, session_id, student_id, emotion, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(),
		sample.SessionID,
		sample.StudentID,
		string(sample.Emotion),
		sample.RecordedAt,
	)
	return err
}

// SampleCount returns the number of archived samples for a session.
func (s *Store) SampleCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM emotion_samples WHERE session_id = ?`, sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return count, nil
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.QueryContext(ctx, "SELECT COUNT(*) FROM emotion_samples LIMIT 1"); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close stops the writer after draining queued samples and closes the
// database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}
