package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/brandlens/brandlens/errors"
)

// Cache is a short-TTL key/value store for provider responses, backed by
// the result_cache table. Entries past their expiry are treated as absent
// on read and removed lazily.
type Cache struct {
	db      *sql.DB
	ttl     time.Duration
	logger  *zap.SugaredLogger
	timeNow func() time.Time // Injectable for testing
}

// New creates a cache with the given default TTL
func New(db *sql.DB, ttl time.Duration, logger *zap.SugaredLogger) *Cache {
	return NewWithClock(db, ttl, logger, time.Now)
}

// NewWithClock creates a cache with injectable clock (for testing)
func NewWithClock(db *sql.DB, ttl time.Duration, logger *zap.SugaredLogger, timeNow func() time.Time) *Cache {
	return &Cache{
		db:      db,
		ttl:     ttl,
		logger:  logger,
		timeNow: timeNow,
	}
}

// Fingerprint derives a stable cache key from the query text and provider.
// Identical (query, provider) pairs always produce the same key.
func Fingerprint(projectID, queryText, provider string) string {
	h := sha256.New()
	h.Write([]byte(queryText))
	h.Write([]byte{0})
	h.Write([]byte(provider))
	return "proj:" + projectID + ":" + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached value for key, or found=false if the key is
// absent or expired. Expired entries are deleted on the way out.
func (c *Cache) Get(ctx context.Context, key string) (value string, found bool, err error) {
	var expiresAt time.Time
	err = c.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM result_cache WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "read cache entry")
	}

	if !c.timeNow().Before(expiresAt) {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM result_cache WHERE key = ?`, key); err != nil && c.logger != nil {
			c.logger.Warnw("Failed to delete expired cache entry", "key", key, "error", err)
		}
		return "", false, nil
	}

	return value, true, nil
}

// Set stores a value under key with the cache's default TTL, replacing
// any existing entry.
func (c *Cache) Set(ctx context.Context, key, value string) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value under key with an explicit TTL
func (c *Cache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	now := c.timeNow()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO result_cache (key, value, expires_at, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, now.Add(ttl), now,
	)
	if err != nil {
		return errors.Wrap(err, "write cache entry")
	}
	return nil
}

// Delete removes a single entry. Deleting an absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM result_cache WHERE key = ?`, key); err != nil {
		return errors.Wrap(err, "delete cache entry")
	}
	return nil
}

// InvalidatePrefix removes every entry whose key starts with prefix.
// Returns the number of entries removed.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	result, err := c.db.ExecContext(ctx,
		`DELETE FROM result_cache WHERE key >= ? AND key < ?`,
		prefix, prefix+"\xff",
	)
	if err != nil {
		return 0, errors.Wrapf(err, "invalidate cache prefix %s", prefix)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "get rows affected")
	}

	if rows > 0 && c.logger != nil {
		c.logger.Debugw("Invalidated cache entries", "prefix", prefix, "count", rows)
	}

	return int(rows), nil
}

// Prune removes all expired entries. The worker pool runs it on its
// maintenance cadence.
func (c *Cache) Prune(ctx context.Context) (int, error) {
	result, err := c.db.ExecContext(ctx,
		`DELETE FROM result_cache WHERE expires_at <= ?`, c.timeNow(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "prune cache")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "get rows affected")
	}

	return int(rows), nil
}
