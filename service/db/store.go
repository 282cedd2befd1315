package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vizor-labs/vizor/service/metrics"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If m is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS watched_wallets (
			address          TEXT PRIMARY KEY,
			timezone         TEXT NOT NULL DEFAULT 'UTC',
			refresh_interval INTERVAL NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS insight_snapshots (
			id          BIGSERIAL PRIMARY KEY,
			address     TEXT NOT NULL,
			timezone    TEXT NOT NULL,
			tx_count    INT NOT NULL,
			insights    JSONB NOT NULL,
			computed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_insight_snapshots_address
			ON insight_snapshots (address, computed_at DESC);

		CREATE TABLE IF NOT EXISTS explanations (
			signature   TEXT NOT NULL,
			timezone    TEXT NOT NULL,
			explanation JSONB NOT NULL,
			facts       JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (signature, timezone)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// WatchedWallet is a wallet registered for periodic insight refreshes.
type WatchedWallet struct {
	Address         string
	Timezone        string
	RefreshInterval time.Duration
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InsightSnapshot is a stored wallet-insights computation. Insights holds
// the serialized WalletInsights record as produced at compute time.
type InsightSnapshot struct {
	ID         int64
	Address    string
	Timezone   string
	TxCount    int
	Insights   json.RawMessage
	ComputedAt time.Time
}

// Explanation is a cached transaction explanation keyed by signature and
// timezone. Both the narrated output and the derived facts are kept so
// clients can re-render without another model call.
type Explanation struct {
	Signature   string
	Timezone    string
	Explanation json.RawMessage
	Facts       json.RawMessage
	CreatedAt   time.Time
}

// UpsertWatch registers a wallet for periodic refreshes, or updates its
// timezone and interval if it is already registered.
func (s *Store) UpsertWatch(ctx context.Context, address, timezone string, interval time.Duration) (*WatchedWallet, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO watched_wallets (address, timezone, refresh_interval)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE
			SET timezone = EXCLUDED.timezone,
			    refresh_interval = EXCLUDED.refresh_interval,
			    updated_at = now()
		RETURNING address, timezone, refresh_interval, created_at, updated_at`,
		address, timezone, intervalFromDuration(interval))

	w, err := scanWatch(row)
	s.record("upsert", "watched_wallets", start, err)
	if err != nil {
		return nil, fmt.Errorf("upsert watch %s: %w", address, err)
	}
	return w, nil
}

// GetWatch retrieves a watched wallet by address.
func (s *Store) GetWatch(ctx context.Context, address string) (*WatchedWallet, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT address, timezone, refresh_interval, created_at, updated_at
		FROM watched_wallets
		WHERE address = $1`,
		address)

	w, err := scanWatch(row)
	s.record("get", "watched_wallets", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get watch %s: %w", address, err)
	}
	return w, nil
}

// ListWatches returns all watched wallets ordered by address.
func (s *Store) ListWatches(ctx context.Context) ([]*WatchedWallet, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT address, timezone, refresh_interval, created_at, updated_at
		FROM watched_wallets
		ORDER BY address`)
	if err != nil {
		s.record("list", "watched_wallets", start, err)
		return nil, fmt.Errorf("list watches: %w", err)
	}
	defer rows.Close()

	var watches []*WatchedWallet
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			s.record("list", "watched_wallets", start, err)
			return nil, fmt.Errorf("list watches: %w", err)
		}
		watches = append(watches, w)
	}
	err = rows.Err()
	s.record("list", "watched_wallets", start, err)
	if err != nil {
		return nil, fmt.Errorf("list watches: %w", err)
	}
	return watches, nil
}

// DeleteWatch removes a wallet from the watch registry.
func (s *Store) DeleteWatch(ctx context.Context, address string) error {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `DELETE FROM watched_wallets WHERE address = $1`, address)
	s.record("delete", "watched_wallets", start, err)
	if err != nil {
		return fmt.Errorf("delete watch %s: %w", address, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertSnapshot stores a wallet-insights computation.
func (s *Store) InsertSnapshot(ctx context.Context, address, timezone string, txCount int, insights json.RawMessage) (*InsightSnapshot, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO insight_snapshots (address, timezone, tx_count, insights)
		VALUES ($1, $2, $3, $4)
		RETURNING id, address, timezone, tx_count, insights, computed_at`,
		address, timezone, txCount, insights)

	snap, err := scanSnapshot(row)
	s.record("insert", "insight_snapshots", start, err)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot for %s: %w", address, err)
	}
	return snap, nil
}

// LatestSnapshot returns the most recent snapshot for a wallet.
func (s *Store) LatestSnapshot(ctx context.Context, address string) (*InsightSnapshot, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT id, address, timezone, tx_count, insights, computed_at
		FROM insight_snapshots
		WHERE address = $1
		ORDER BY computed_at DESC
		LIMIT 1`,
		address)

	snap, err := scanSnapshot(row)
	s.record("get", "insight_snapshots", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot for %s: %w", address, err)
	}
	return snap, nil
}

// ListSnapshots returns snapshots for a wallet, newest first.
func (s *Store) ListSnapshots(ctx context.Context, address string, limit int) ([]*InsightSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT id, address, timezone, tx_count, insights, computed_at
		FROM insight_snapshots
		WHERE address = $1
		ORDER BY computed_at DESC
		LIMIT $2`,
		address, limit)
	if err != nil {
		s.record("list", "insight_snapshots", start, err)
		return nil, fmt.Errorf("list snapshots for %s: %w", address, err)
	}
	defer rows.Close()

	var snaps []*InsightSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			s.record("list", "insight_snapshots", start, err)
			return nil, fmt.Errorf("list snapshots for %s: %w", address, err)
		}
		snaps = append(snaps, snap)
	}
	err = rows.Err()
	s.record("list", "insight_snapshots", start, err)
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", address, err)
	}
	return snaps, nil
}

// GetExplanation retrieves a cached explanation by signature and timezone.
func (s *Store) GetExplanation(ctx context.Context, signature, timezone string) (*Explanation, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT signature, timezone, explanation, facts, created_at
		FROM explanations
		WHERE signature = $1 AND timezone = $2`,
		signature, timezone)

	var e Explanation
	err := row.Scan(&e.Signature, &e.Timezone, &e.Explanation, &e.Facts, &e.CreatedAt)
	s.record("get", "explanations", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get explanation %s: %w", signature, err)
	}
	return &e, nil
}

// PutExplanation caches an explanation, replacing any existing entry for the
// same signature and timezone.
func (s *Store) PutExplanation(ctx context.Context, signature, timezone string, explanation, factsJSON json.RawMessage) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO explanations (signature, timezone, explanation, facts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (signature, timezone) DO UPDATE
			SET explanation = EXCLUDED.explanation,
			    facts = EXCLUDED.facts,
			    created_at = now()`,
		signature, timezone, explanation, factsJSON)
	s.record("upsert", "explanations", start, err)
	if err != nil {
		return fmt.Errorf("put explanation %s: %w", signature, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWatch(row rowScanner) (*WatchedWallet, error) {
	var w WatchedWallet
	var interval pgtype.Interval
	if err := row.Scan(&w.Address, &w.Timezone, &interval, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.RefreshInterval = durationFromInterval(interval)
	return &w, nil
}

func intervalFromDuration(d time.Duration) pgtype.Interval {
	return pgtype.Interval{Microseconds: d.Microseconds(), Valid: true}
}

func durationFromInterval(i pgtype.Interval) time.Duration {
	d := time.Duration(i.Microseconds) * time.Microsecond
	d += time.Duration(i.Days) * 24 * time.Hour
	d += time.Duration(i.Months) * 30 * 24 * time.Hour
	return d
}

func scanSnapshot(row rowScanner) (*InsightSnapshot, error) {
	var snap InsightSnapshot
	if err := row.Scan(&snap.ID, &snap.Address, &snap.Timezone, &snap.TxCount, &snap.Insights, &snap.ComputedAt); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) record(operation, table string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, table, time.Since(start).Seconds(), err)
	}
}
