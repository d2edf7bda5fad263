package ratelimit

import (
	"context"
	"database/sql"
	"time"

	"github.com/brandlens/brandlens/errors"
)

// CounterStore records request events and decides admission for an identifier
// against a set of tiers. Take must be atomic per identifier: two concurrent
// calls may not both be admitted into the last remaining slot.
type CounterStore interface {
	Take(ctx context.Context, identifier string, tiers []Tier, now time.Time) (*Result, error)
	Reset(ctx context.Context, identifier string) error
}

// SQLStore implements CounterStore on the rate_limit_events table.
// Each admitted request inserts one timestamped row; counting rows
// newer than (now - window) gives the exact sliding-window count.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a counter store backed by the given database
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Take checks all tiers for the identifier and records the request if every
// tier admits it. The expire, count, and insert run in one transaction whose
// first statement writes, so concurrent callers serialize on the database
// write lock rather than racing the count.
func (s *SQLStore) Take(ctx context.Context, identifier string, tiers []Tier, now time.Time) (*Result, error) {
	if len(tiers) == 0 {
		return &Result{Allowed: true}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin rate limit tx")
	}
	defer tx.Rollback()

	// Expire events older than the widest window; narrower tiers
	// filter by timestamp at count time.
	widest := tiers[0].Window
	for _, t := range tiers[1:] {
		if t.Window > widest {
			widest = t.Window
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM rate_limit_events WHERE identifier = ? AND occurred_at <= ?`,
		identifier, now.Add(-widest),
	); err != nil {
		return nil, errors.Wrap(err, "expire rate limit events")
	}

	result := &Result{Allowed: true}
	for _, tier := range tiers {
		cutoff := now.Add(-tier.Window)

		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM rate_limit_events WHERE identifier = ? AND occurred_at > ?`,
			identifier, cutoff,
		).Scan(&count); err != nil {
			return nil, errors.Wrap(err, "count rate limit events")
		}

		// ResetAt is when the oldest in-window event slides out;
		// with no events in the window the full window is free now.
		resetAt := now.Add(tier.Window)
		var oldest time.Time
		if err := tx.QueryRowContext(ctx,
			`SELECT occurred_at FROM rate_limit_events WHERE identifier = ? AND occurred_at > ? ORDER BY occurred_at ASC LIMIT 1`,
			identifier, cutoff,
		).Scan(&oldest); err == nil {
			resetAt = oldest.Add(tier.Window)
		}

		if count >= tier.Max {
			retryAfter := resetAt.Sub(now)
			if retryAfter < 0 {
				retryAfter = 0
			}

			denied := &Result{
				Allowed:    false,
				Tier:       tier,
				Used:       count,
				Remaining:  0,
				ResetAt:    resetAt,
				RetryAfter: retryAfter,
			}
			if err := tx.Commit(); err != nil {
				return nil, errors.Wrap(err, "commit rate limit tx")
			}
			return denied, nil
		}

		// Track the tightest remaining headroom for response headers
		remaining := tier.Max - count - 1
		if result.Tier.Max == 0 || remaining < result.Remaining {
			result.Tier = tier
			result.Used = count + 1
			result.Remaining = remaining
			result.ResetAt = resetAt
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rate_limit_events (identifier, occurred_at) VALUES (?, ?)`,
		identifier, now,
	); err != nil {
		return nil, errors.Wrap(err, "record rate limit event")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit rate limit tx")
	}

	return result, nil
}

// Reset removes all recorded events for an identifier
func (s *SQLStore) Reset(ctx context.Context, identifier string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limit_events WHERE identifier = ?`, identifier,
	); err != nil {
		return errors.Wrapf(err, "reset rate limit events for %s", identifier)
	}
	return nil
}
