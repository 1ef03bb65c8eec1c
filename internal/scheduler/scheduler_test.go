package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parceltrack/internal/clock"
	"github.com/roach88/parceltrack/internal/store"
)

func newScheduler(t *testing.T) (*Scheduler, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, clock.Real{}, nil), s
}

func TestScheduleRecurring_Persists(t *testing.T) {
	ctx := context.Background()
	sch, s := newScheduler(t)

	require.NoError(t, sch.ScheduleRecurring(ctx, "tick", 90*time.Second+300*time.Millisecond))
	list, err := s.ListTriggers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tick", list[0].Name)
	assert.Equal(t, 90*time.Second, list[0].Interval)

	err = sch.ScheduleRecurring(ctx, "tick", 10*time.Millisecond)
	assert.Error(t, err)
}

func TestSync_BindsOnlyHandledTriggers(t *testing.T) {
	ctx := context.Background()
	sch, _ := newScheduler(t)
	sch.Handle("tick", func(context.Context) error { return nil })

	require.NoError(t, sch.ScheduleRecurring(ctx, "tick", time.Minute))
	require.NoError(t, sch.ScheduleRecurring(ctx, "orphan", time.Minute))
	require.NoError(t, sch.Sync(ctx))
	assert.Equal(t, []string{"tick"}, sch.Active())

	found, err := sch.Cancel(ctx, "tick")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, sch.Active())

	found, err = sch.Cancel(ctx, "tick")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSync_DropsTriggersDeletedElsewhere(t *testing.T) {
	ctx := context.Background()
	sch, s := newScheduler(t)
	sch.Handle("tick", func(context.Context) error { return nil })
	require.NoError(t, sch.ScheduleRecurring(ctx, "tick", time.Minute))
	require.NoError(t, sch.Sync(ctx))

	_, err := s.DeleteTrigger(ctx, "tick")
	require.NoError(t, err)
	require.NoError(t, sch.Sync(ctx))
	assert.Empty(t, sch.Active())
}

func TestRun_FiresHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sch, _ := newScheduler(t)

	var fired atomic.Int32
	sch.Handle("tick", func(context.Context) error {
		fired.Add(1)
		return errors.New("handler errors are logged, not fatal")
	})
	require.NoError(t, sch.ScheduleRecurring(ctx, "tick", time.Second))

	done := make(chan error, 1)
	go func() { done <- sch.Run(ctx, time.Hour) }()

	assert.Eventually(t, func() bool { return fired.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
