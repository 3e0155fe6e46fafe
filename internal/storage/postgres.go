package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS scrape_runs (
	run_id       TEXT PRIMARY KEY,
	completed_at TIMESTAMPTZ NOT NULL,
	post_count   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS scraped_posts (
	run_id   TEXT NOT NULL REFERENCES scrape_runs (run_id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	url      TEXT NOT NULL,
	title    TEXT NOT NULL,
	body     TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);`

// pgxPool is the subset of *pgxpool.Pool the sink uses.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresSink stores each run's records in PostgreSQL.
type PostgresSink struct {
	db pgxPool
}

func NewPostgresSink(ctx context.Context, connStr string) (*PostgresSink, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresSink) Close() {
	s.db.Close()
}

// Migrate creates the tables if they do not exist.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Write saves the run and its records within a single transaction, keeping
// the output all-or-nothing.
func (s *PostgresSink) Write(ctx context.Context, b Batch) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO scrape_runs (run_id, completed_at, post_count) VALUES ($1, $2, $3)`,
		b.RunID, b.CompletedAt, len(b.Records))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", b.RunID, err)
	}

	for i, r := range b.Records {
		_, err = tx.Exec(ctx,
			`INSERT INTO scraped_posts (run_id, position, url, title, body) VALUES ($1, $2, $3, $4, $5)`,
			b.RunID, i, r.URL, r.Title, r.Body)
		if err != nil {
			return fmt.Errorf("insert post %s: %w", r.URL, err)
		}
	}

	return tx.Commit(ctx)
}

// Discard deletes a run written by Write; its posts go with it.
func (s *PostgresSink) Discard(ctx context.Context, runID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM scrape_runs WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}
