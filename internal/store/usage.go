package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sivanadi/AstroCalc/internal/model"
	"github.com/sivanadi/AstroCalc/internal/ratelimit"
)

// usageTables maps a window granularity to its ledger table. Window names
// come from the closed ratelimit.Window enum, never from caller input.
var usageTables = map[ratelimit.Window]string{
	ratelimit.WindowMinute: "usage_minute",
	ratelimit.WindowDay:    "usage_day",
	ratelimit.WindowMonth:  "usage_month",
}

// CheckAndIncrement evaluates the three window limits for an identifier and,
// only if none is exhausted, increments all three counters. The read, the
// decision, and the increments run inside one transaction on the store's
// single connection, so concurrent callers racing on the same identifier can
// never interleave between the read and the increment: increments are never
// lost and a denied call leaves every counter untouched.
func (s *Store) CheckAndIncrement(ctx context.Context, now time.Time, identifier, kind string, limits model.RateLimits) (ratelimit.Decision, error) {
	now = now.UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("begin usage tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	counts, err := readCounts(ctx, tx, now, identifier, kind)
	if err != nil {
		return ratelimit.Decision{}, err
	}

	decision := ratelimit.Evaluate(now, counts, limits)
	if !decision.Allowed {
		// Deny is side-effect free: the rejected attempt is never charged.
		return decision, nil
	}

	for _, w := range ratelimit.Windows {
		q := fmt.Sprintf(`INSERT INTO %s (identifier, kind, window_key, count)
			VALUES (?, ?, ?, 1)
			ON CONFLICT(identifier, kind, window_key) DO UPDATE SET count = count + 1`,
			usageTables[w])
		if _, err := tx.ExecContext(ctx, q, identifier, kind, w.Key(now)); err != nil {
			return ratelimit.Decision{}, fmt.Errorf("increment %s counter: %w", w, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ratelimit.Decision{}, fmt.Errorf("commit usage tx: %w", err)
	}

	decision.Counts = ratelimit.Counts{
		Minute: counts.Minute + 1,
		Day:    counts.Day + 1,
		Month:  counts.Month + 1,
	}
	return decision, nil
}

// UsageCounts returns the current counter values for an identifier without
// modifying them. Used by diagnostics and the dry-run test endpoint.
func (s *Store) UsageCounts(ctx context.Context, now time.Time, identifier, kind string) (ratelimit.Counts, error) {
	return readCounts(ctx, s.db, now.UTC(), identifier, kind)
}

// queryer covers both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func readCounts(ctx context.Context, q queryer, now time.Time, identifier, kind string) (ratelimit.Counts, error) {
	var counts ratelimit.Counts
	for _, w := range ratelimit.Windows {
		n, err := readCount(ctx, q, usageTables[w], identifier, kind, w.Key(now))
		if err != nil {
			return ratelimit.Counts{}, fmt.Errorf("read %s counter: %w", w, err)
		}
		switch w {
		case ratelimit.WindowMinute:
			counts.Minute = n
		case ratelimit.WindowDay:
			counts.Day = n
		case ratelimit.WindowMonth:
			counts.Month = n
		}
	}
	return counts, nil
}

func readCount(ctx context.Context, q queryer, table, identifier, kind, windowKey string) (int, error) {
	var n int
	query := fmt.Sprintf(
		"SELECT count FROM %s WHERE identifier = ? AND kind = ? AND window_key = ?", table)
	err := q.GetContext(ctx, &n, query, identifier, kind, windowKey)
	if err == sql.ErrNoRows {
		return 0, nil // lazily created on first increment
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// compile-time interface checks
var (
	_ queryer = (*sqlx.DB)(nil)
	_ queryer = (*sqlx.Tx)(nil)
)
