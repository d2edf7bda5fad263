package cache

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandlens/brandlens/db"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(now time.Time) *mockClock {
	return &mockClock{now: now}
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func testCache(t *testing.T, ttl time.Duration, clock *mockClock) *Cache {
	t.Helper()
	database, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewWithClock(database, ttl, nil, clock.Now)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("p1", "best crm software", "openai")
	b := Fingerprint("p1", "best crm software", "openai")
	assert.Equal(t, a, b, "identical inputs must produce identical keys")

	assert.NotEqual(t, a, Fingerprint("p1", "best crm software", "anthropic"),
		"provider must participate in the key")
	assert.NotEqual(t, a, Fingerprint("p1", "best crm tools", "openai"),
		"query text must participate in the key")
	assert.NotEqual(t, a, Fingerprint("p2", "best crm software", "openai"),
		"project must participate in the key")

	assert.Contains(t, a, "proj:p1:")
}

func TestCache_GetSet(t *testing.T) {
	clock := newMockClock(time.Now())
	c := testCache(t, 6*time.Hour, clock)
	ctx := context.Background()

	_, found, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "k", "v1"))

	value, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v1", value)

	// Set replaces the existing entry
	require.NoError(t, c.Set(ctx, "k", "v2"))
	value, found, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v2", value)
}

func TestCache_Expiry(t *testing.T) {
	clock := newMockClock(time.Now())
	c := testCache(t, time.Hour, clock)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v"))

	clock.Advance(59 * time.Minute)
	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found, "entry should survive within TTL")

	clock.Advance(2 * time.Minute)
	_, found, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found, "entry should be absent after TTL")

	// A fresh Set after expiry works normally
	require.NoError(t, c.Set(ctx, "k", "v2"))
	value, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v2", value)
}

func TestCache_Delete(t *testing.T) {
	clock := newMockClock(time.Now())
	c := testCache(t, time.Hour, clock)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v"))
	require.NoError(t, c.Delete(ctx, "k"))

	_, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting an absent key is fine
	require.NoError(t, c.Delete(ctx, "k"))
}

func TestCache_InvalidatePrefix(t *testing.T) {
	clock := newMockClock(time.Now())
	c := testCache(t, time.Hour, clock)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, Fingerprint("p1", "q1", "openai"), "a"))
	require.NoError(t, c.Set(ctx, Fingerprint("p1", "q2", "openai"), "b"))
	require.NoError(t, c.Set(ctx, Fingerprint("p2", "q1", "openai"), "c"))

	removed, err := c.InvalidatePrefix(ctx, "proj:p1:")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, found, err := c.Get(ctx, Fingerprint("p1", "q1", "openai"))
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = c.Get(ctx, Fingerprint("p2", "q1", "openai"))
	require.NoError(t, err)
	assert.True(t, found, "other projects' entries must survive")
}

func TestCache_Prune(t *testing.T) {
	clock := newMockClock(time.Now())
	c := testCache(t, time.Hour, clock)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "old", "v"))
	clock.Advance(30 * time.Minute)
	require.NoError(t, c.Set(ctx, "fresh", "v"))
	clock.Advance(31 * time.Minute)

	removed, err := c.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, found, err := c.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, found)
}
