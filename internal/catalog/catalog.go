// Package catalog keeps a Postgres ledger of index commits: one row per
// opstamp with the segments and document counts it published.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/resilience"
)

const createTable = `
CREATE TABLE IF NOT EXISTS index_commits (
	index_name   TEXT        NOT NULL,
	opstamp      BIGINT      NOT NULL,
	segments     TEXT[]      NOT NULL,
	docs         INTEGER     NOT NULL,
	deletes      INTEGER     NOT NULL,
	duration_ms  BIGINT      NOT NULL,
	committed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (index_name, opstamp)
)`

const insertCommit = `
INSERT INTO index_commits (index_name, opstamp, segments, docs, deletes, duration_ms, committed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (index_name, opstamp) DO NOTHING`

const selectRecent = `
SELECT opstamp, segments, docs, deletes, duration_ms, committed_at
FROM index_commits
WHERE index_name = $1
ORDER BY opstamp DESC
LIMIT $2`

// DB is the subset of *sql.DB the catalog uses.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Entry is one recorded commit.
type Entry struct {
	Opstamp     uint64        `json:"opstamp"`
	Segments    []string      `json:"segments"`
	Docs        int           `json:"docs"`
	Deletes     int           `json:"deletes"`
	Duration    time.Duration `json:"duration"`
	CommittedAt time.Time     `json:"committed_at"`
}

type Catalog struct {
	db      DB
	index   string
	timeout time.Duration
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// IndexName derives the catalog name of the index stored in dataDir.
func IndexName(dataDir string) string {
	return filepath.Base(filepath.Clean(dataDir))
}

// New returns a catalog recording commits of the index named index.
func New(db DB, index string) *Catalog {
	return &Catalog{
		db:      db,
		index:   index,
		timeout: 5 * time.Second,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			Retryable:    retryable,
		},
		logger: slog.Default().With("component", "commit-catalog", "index", index),
	}
}

// Migrate creates the index_commits table when missing.
func (c *Catalog) Migrate(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("creating index_commits: %w", err)
	}
	return nil
}

// Record stores info. Recording the same opstamp twice is a no-op.
func (c *Catalog) Record(ctx context.Context, info indexer.CommitInfo) error {
	segments := info.Segments
	if segments == nil {
		segments = []string{}
	}
	err := resilience.Retry(ctx, "record-commit", c.retry, func() error {
		return resilience.WithTimeout(ctx, c.timeout, "record-commit", func(ctx context.Context) error {
			_, err := c.db.ExecContext(ctx, insertCommit,
				c.index,
				int64(info.Opstamp),
				pq.Array(segments),
				info.Docs,
				info.Deletes,
				info.Duration.Milliseconds(),
				info.CommittedAt,
			)
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("recording commit %d: %w", info.Opstamp, err)
	}
	c.logger.Debug("commit recorded", "opstamp", info.Opstamp)
	return nil
}

// Hook adapts Record to IndexWriter.OnCommit. Failures are logged: the
// commit itself has already succeeded.
func (c *Catalog) Hook(ctx context.Context) func(indexer.CommitInfo) {
	return func(info indexer.CommitInfo) {
		if err := c.Record(ctx, info); err != nil {
			c.logger.Error("commit not recorded", "opstamp", info.Opstamp, "error", err)
		}
	}
}

// Recent returns up to limit commits, newest first.
func (c *Catalog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, selectRecent, c.index, limit)
	if err != nil {
		return nil, fmt.Errorf("querying index_commits: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			opstamp    int64
			durationMs int64
		)
		if err := rows.Scan(&opstamp, pq.Array(&e.Segments), &e.Docs, &e.Deletes, &durationMs, &e.CommittedAt); err != nil {
			return nil, fmt.Errorf("scanning index_commits: %w", err)
		}
		e.Opstamp = uint64(opstamp)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// retryable treats constraint and syntax failures as permanent.
func retryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23", "42":
			return false
		}
	}
	return !errors.Is(err, context.Canceled)
}
