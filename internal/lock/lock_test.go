package lock

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parceltrack/internal/model"
	"github.com/roach88/parceltrack/internal/store"
	"github.com/roach88/parceltrack/internal/testutil"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newSQLite(t *testing.T, clk *testutil.FakeClock) *SQLite {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "lock.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewSQLite(s, clk, time.Minute)
}

func TestAcquire_SQLite(t *testing.T) {
	ctx := context.Background()
	clk := testutil.NewFakeClock(start)
	b := newSQLite(t, clk)

	lease, err := Acquire(ctx, b, clk, "BULK", "owner-a", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "BULK", lease.Name())

	_, err = Acquire(ctx, b, clk, "BULK", "owner-b", 5*time.Second)
	require.Error(t, err)
	assert.True(t, model.IsCode(err, model.ErrCodeLockTimeout))
	assert.Equal(t, start.Add(5*time.Second), clk.Now(), "waited the full bound")

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx), "second release is a no-op")

	lease, err = Acquire(ctx, b, clk, "BULK", "owner-b", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

func TestAcquire_ExpiredLeaseTakenOver(t *testing.T) {
	ctx := context.Background()
	clk := testutil.NewFakeClock(start)
	b := newSQLite(t, clk)

	_, err := Acquire(ctx, b, clk, "BULK", "crashed", time.Second)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = Acquire(ctx, b, clk, "BULK", "next", time.Second)
	require.NoError(t, err)
}

func TestAcquire_CancelledWhileWaiting(t *testing.T) {
	clk := testutil.NewFakeClock(start)
	b := newSQLite(t, clk)
	_, err := Acquire(context.Background(), b, clk, "BULK", "a", time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Acquire(ctx, b, clk, "BULK", "b", time.Second)
	assert.Error(t, err)
}

func TestLockID_Stable(t *testing.T) {
	assert.Equal(t, LockID("BULK"), LockID("BULK"))
	assert.NotEqual(t, LockID("BULK"), LockID("BULK2"))
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("PARCELTRACK_TEST_REDIS")
	if addr == "" {
		t.Skip("PARCELTRACK_TEST_REDIS not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	b := NewRedis(rdb, time.Minute)
	b.prefix = "parceltrack:test:lock:"

	ok, err := b.TryLock(ctx, "BULK", "a")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = b.TryLock(ctx, "BULK", "b")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Unlock(ctx, "BULK", "b"))
	ok, _ = b.TryLock(ctx, "BULK", "b")
	assert.False(t, ok, "foreign unlock ignored")

	require.NoError(t, b.Unlock(ctx, "BULK", "a"))
	ok, _ = b.TryLock(ctx, "BULK", "b")
	assert.True(t, ok)
	require.NoError(t, b.Unlock(ctx, "BULK", "b"))
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("PARCELTRACK_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("PARCELTRACK_TEST_POSTGRES not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	a, b := NewPostgres(pool), NewPostgres(pool)
	ok, err := a.TryLock(ctx, "BULK", "a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryLock(ctx, "BULK", "b")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Unlock(ctx, "BULK", "a"))
	ok, err = b.TryLock(ctx, "BULK", "b")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Unlock(ctx, "BULK", "b"))
}
