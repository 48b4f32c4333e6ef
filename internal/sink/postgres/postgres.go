// Package postgres records retained listings in a Postgres table. Inserts are
// idempotent on a hash of the detail URL, so re-running a crawl does not
// duplicate rows.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
)

const defaultTable = "retained_listings"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Sink writes retained verdicts to Postgres.
type Sink struct {
	pool   execCloser
	table  string
	hasher crawler.Hasher
	runID  string
}

// New connects a pool and returns a Sink. The hasher derives listing keys.
func New(ctx context.Context, cfg Config, hasher crawler.Hasher, runID string) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(pool, cfg.Table, hasher, runID)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool builds a Sink around an existing pool.
func NewWithPool(pool execCloser, table string, hasher crawler.Hasher, runID string) (*Sink, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Sink{pool: pool, table: table, hasher: hasher, runID: runID}, nil
}

// EnsureSchema creates the table when it does not exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	listing_key      TEXT PRIMARY KEY,
	run_id           TEXT NOT NULL,
	title            TEXT NOT NULL,
	detail_url       TEXT NOT NULL,
	matched_keywords TEXT[] NOT NULL,
	recency_phrase   TEXT NOT NULL,
	page             INTEGER NOT NULL,
	evaluated_at     TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Persist inserts v, ignoring listings already recorded.
func (s *Sink) Persist(ctx context.Context, v crawler.ListingVerdict) error {
	key, err := s.hasher.Hash([]byte(v.DetailURL))
	if err != nil {
		return fmt.Errorf("%w: hash listing key: %w", crawler.ErrPersist, err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	listing_key,
	run_id,
	title,
	detail_url,
	matched_keywords,
	recency_phrase,
	page,
	evaluated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
) ON CONFLICT (listing_key) DO NOTHING`, s.table)

	keywords := v.MatchedKeywords
	if keywords == nil {
		keywords = []string{}
	}
	if _, err := s.pool.Exec(ctx, query,
		key,
		s.runID,
		v.Title,
		v.DetailURL,
		keywords,
		v.RecencyPhrase,
		v.Page,
		v.EvaluatedAt,
	); err != nil {
		return fmt.Errorf("%w: insert listing: %w", crawler.ErrPersist, err)
	}
	return nil
}

// Close releases the pool.
func (s *Sink) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
