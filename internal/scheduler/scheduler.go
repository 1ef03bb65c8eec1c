// Package scheduler drives named handlers from persisted recurring
// triggers.
//
// Triggers live in the durable store so that a short-lived CLI process can
// register one and a long-running serve process picks it up on its next
// Sync. Firing is delegated to robfig/cron with @every schedules; a run
// still in progress causes the next firing to be skipped.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/roach88/parceltrack/internal/clock"
	"github.com/roach88/parceltrack/internal/model"
)

// MinInterval is the shortest supported trigger period.
const MinInterval = time.Second

// Store persists triggers.
type Store interface {
	PutTrigger(ctx context.Context, tr model.Trigger) error
	DeleteTrigger(ctx context.Context, name string) (bool, error)
	ListTriggers(ctx context.Context) ([]model.Trigger, error)
}

// Handler is the callback bound to a trigger name.
type Handler func(ctx context.Context) error

type entry struct {
	id       cron.EntryID
	interval time.Duration
}

// Scheduler binds persisted triggers to handlers.
type Scheduler struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger
	cron   *cron.Cron

	mu       sync.Mutex
	handlers map[string]Handler
	entries  map[string]entry
	base     context.Context
}

// New creates a Scheduler. Nothing fires until Run.
func New(store Store, clk clock.Clock, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger}
	return &Scheduler{
		store:    store,
		clock:    clk,
		logger:   logger,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		handlers: make(map[string]Handler),
		entries:  make(map[string]entry),
		base:     context.Background(),
	}
}

// Handle binds h to trigger name. Triggers without a handler are ignored
// by Sync.
func (s *Scheduler) Handle(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

// ScheduleRecurring persists a trigger firing name every interval,
// replacing any previous registration under the same name.
func (s *Scheduler) ScheduleRecurring(ctx context.Context, name string, interval time.Duration) error {
	if interval < MinInterval {
		return fmt.Errorf("schedule %s: interval %s below %s", name, interval, MinInterval)
	}
	tr := model.Trigger{Name: name, Interval: interval.Truncate(time.Second), CreatedAt: s.clock.Now()}
	if err := s.store.PutTrigger(ctx, tr); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.logger.Info("scheduler.trigger.saved", "name", name, "interval", tr.Interval)
	return nil
}

// Cancel deletes the trigger name and unbinds its local entry. It reports
// whether a persisted trigger existed.
func (s *Scheduler) Cancel(ctx context.Context, name string) (bool, error) {
	found, err := s.store.DeleteTrigger(ctx, name)
	if err != nil {
		return false, fmt.Errorf("cancel %s: %w", name, err)
	}
	s.mu.Lock()
	s.removeLocked(name)
	s.mu.Unlock()
	if found {
		s.logger.Info("scheduler.trigger.cancelled", "name", name)
	}
	return found, nil
}

// Sync makes the cron entries match the persisted triggers.
func (s *Scheduler) Sync(ctx context.Context) error {
	triggers, err := s.store.ListTriggers(ctx)
	if err != nil {
		return fmt.Errorf("sync triggers: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]time.Duration, len(triggers))
	for _, tr := range triggers {
		if _, ok := s.handlers[tr.Name]; ok {
			want[tr.Name] = tr.Interval
		}
	}
	for name, e := range s.entries {
		if iv, ok := want[name]; !ok || iv != e.interval {
			s.removeLocked(name)
		}
	}
	for name, iv := range want {
		if _, ok := s.entries[name]; ok {
			continue
		}
		id, err := s.cron.AddFunc("@every "+iv.String(), s.fire(name))
		if err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
		s.entries[name] = entry{id: id, interval: iv}
		s.logger.Debug("scheduler.entry.bound", "name", name, "interval", iv)
	}
	return nil
}

// Active lists the names with a live cron entry.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Run starts firing and re-syncs every resync until ctx is done. It waits
// for running handlers before returning.
func (s *Scheduler) Run(ctx context.Context, resync time.Duration) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	if err := s.Sync(ctx); err != nil {
		return err
	}
	s.cron.Start()
	defer func() { <-s.cron.Stop().Done() }()

	if resync <= 0 {
		resync = time.Minute
	}
	t := time.NewTicker(resync)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := s.Sync(ctx); err != nil {
				s.logger.Error("scheduler.sync.failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) removeLocked(name string) {
	if e, ok := s.entries[name]; ok {
		s.cron.Remove(e.id)
		delete(s.entries, name)
	}
}

func (s *Scheduler) fire(name string) func() {
	return func() {
		s.mu.Lock()
		h := s.handlers[name]
		ctx := s.base
		s.mu.Unlock()
		if h == nil {
			return
		}
		start := s.clock.Now()
		if err := h(ctx); err != nil {
			s.logger.Error("scheduler.fire.failed", "name", name, "error", err)
			return
		}
		s.logger.Debug("scheduler.fire.done", "name", name, "elapsed", clock.Since(s.clock, start))
	}
}

// cronLogger routes cron's logging to slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron."+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron."+msg, append(keysAndValues, "error", err)...)
}
