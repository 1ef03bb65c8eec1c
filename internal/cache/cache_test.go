package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
	"github.com/roach88/parceltrack/internal/store"
	"github.com/roach88/parceltrack/internal/testutil"
)

var start = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

func newSQLiteCache(t *testing.T, clk *testutil.FakeClock) *Cache {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(NewSQLiteBackend(s, clk), config.NewStoreProvider(s), clk, 0, nil)
}

func TestCache_PutGet(t *testing.T) {
	ctx := context.Background()
	clk := testutil.NewFakeClock(start)
	c := newSQLiteCache(t, clk)

	_, ok := c.Get(ctx, "posti", "JJFI1")
	assert.False(t, ok)

	res := model.StatusResult{Carrier: "posti", Found: true, Status: "In transit", Time: "2024-02-01 08:00:00"}
	c.Put(ctx, "Posti", "JJFI1", res, 0)

	got, ok := c.Get(ctx, "POSTI", "JJFI1")
	require.True(t, ok, "carrier is case-insensitive")
	assert.Equal(t, res, got)

	_, ok = c.Get(ctx, "posti", "jjfi1")
	assert.False(t, ok, "code is case-sensitive")
}

func TestCache_DefaultTTLExpires(t *testing.T) {
	ctx := context.Background()
	clk := testutil.NewFakeClock(start)
	c := newSQLiteCache(t, clk)

	c.Put(ctx, "dhl", "123456", model.StatusResult{Status: "x"}, -time.Second)
	clk.Advance(DefaultTTL - time.Minute)
	_, ok := c.Get(ctx, "dhl", "123456")
	assert.True(t, ok)

	clk.Advance(2 * time.Minute)
	_, ok = c.Get(ctx, "dhl", "123456")
	assert.False(t, ok)
}

func TestCache_InvalidateAll(t *testing.T) {
	ctx := context.Background()
	clk := testutil.NewFakeClock(start)
	c := newSQLiteCache(t, clk)

	c.Put(ctx, "gls", "G1", model.StatusResult{Status: "x"}, time.Hour)
	require.NoError(t, c.InvalidateAll(ctx))
	_, ok := c.Get(ctx, "gls", "G1")
	assert.False(t, ok)

	c.Put(ctx, "gls", "G1", model.StatusResult{Status: "y"}, time.Hour)
	got, ok := c.Get(ctx, "gls", "G1")
	require.True(t, ok)
	assert.Equal(t, "y", got.Status)
}

func TestKey_DomainSeparated(t *testing.T) {
	ctx := context.Background()
	c := New(nil, config.NewMap(nil), testutil.NewFakeClock(start), 0, nil)
	assert.NotEqual(t, c.Key(ctx, "ab", "c"), c.Key(ctx, "a", "bc"))
	assert.Len(t, c.Key(ctx, "a", "b"), 64)
}

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("down")
}

func (failingBackend) Put(context.Context, string, string, time.Duration) error {
	return errors.New("down")
}

func TestCache_BackendFailuresAreMisses(t *testing.T) {
	ctx := context.Background()
	c := New(failingBackend{}, config.NewMap(nil), testutil.NewFakeClock(start), 0, nil)
	c.Put(ctx, "dhl", "X1", model.StatusResult{}, 0)
	_, ok := c.Get(ctx, "dhl", "X1")
	assert.False(t, ok)
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("PARCELTRACK_TEST_REDIS")
	if addr == "" {
		t.Skip("PARCELTRACK_TEST_REDIS not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })

	b := NewRedisBackend(rdb, "parceltrack:test:")
	require.NoError(t, b.Put(ctx, "k", "v", time.Minute))
	v, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok, err = b.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_PurgeDropsExpiredOnly(t *testing.T) {
	ctx := context.Background()
	clk := testutil.NewFakeClock(start)
	c := newSQLiteCache(t, clk)

	c.Put(ctx, "dhl", "111111", model.StatusResult{Status: "a"}, time.Minute)
	c.Put(ctx, "dhl", "222222", model.StatusResult{Status: "b"}, time.Hour)
	clk.Advance(5 * time.Minute)

	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, ok := c.Get(ctx, "dhl", "222222")
	assert.True(t, ok)
}

func TestCache_InvalidateAllClearsSQLiteEntries(t *testing.T) {
	ctx := context.Background()
	clk := testutil.NewFakeClock(start)
	c := newSQLiteCache(t, clk)

	c.Put(ctx, "dhl", "111111", model.StatusResult{Status: "a"}, time.Hour)
	require.NoError(t, c.InvalidateAll(ctx))

	clk.Advance(2 * time.Hour)
	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "entries were removed on rotation")
}
