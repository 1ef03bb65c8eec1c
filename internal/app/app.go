// Package app is the command surface of parceltrack. A Service wires the
// store, the table backend, the carrier registry and the bulk machinery
// from process settings, and exposes every operator command as a method.
// The CLI and the HTTP API are thin layers over it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/roach88/parceltrack/internal/backoff"
	"github.com/roach88/parceltrack/internal/cache"
	"github.com/roach88/parceltrack/internal/carrier"
	"github.com/roach88/parceltrack/internal/clock"
	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/ident"
	"github.com/roach88/parceltrack/internal/importer"
	"github.com/roach88/parceltrack/internal/jobs"
	"github.com/roach88/parceltrack/internal/lock"
	"github.com/roach88/parceltrack/internal/model"
	"github.com/roach88/parceltrack/internal/pending"
	"github.com/roach88/parceltrack/internal/reconcile"
	"github.com/roach88/parceltrack/internal/scheduler"
	"github.com/roach88/parceltrack/internal/sheet"
	"github.com/roach88/parceltrack/internal/store"
	"github.com/roach88/parceltrack/internal/throttle"
	"github.com/roach88/parceltrack/internal/workbook"
	"github.com/roach88/parceltrack/internal/worker"
)

// Trigger names registered with the scheduler.
const (
	TriggerBulkTick  = "bulk-tick"
	TriggerDailyFlow = "daily-flow"
)

// Backend names accepted in Settings.
const (
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendXLSX     = "xlsx"
)

// Option customizes a Service.
type Option func(*options)

type options struct {
	clock   clock.Clock
	logger  *slog.Logger
	tracker worker.Tracker
	ids     ident.Generator
	http    *http.Client
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracker replaces the carrier registry as the lookup target.
func WithTracker(t worker.Tracker) Option {
	return func(o *options) { o.tracker = t }
}

// WithHTTPClient replaces the client used for carrier calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.http = c }
}

// Service holds every component of one parceltrack process.
//
// Thread-safety: methods may be called concurrently. Commands that touch
// jobs serialize on the global lock; table writes from RefreshNow and the
// daily flow do not.
type Service struct {
	settings config.Settings
	loc      *time.Location
	clock    clock.Clock
	logger   *slog.Logger

	store     *store.Store
	tables    sheet.Tables
	cfg       config.Provider
	cache     *cache.Cache
	jobs      *jobs.Manager
	worker    *worker.Worker
	reconcile *reconcile.Reconciler
	pending   *pending.Builder
	importer  *importer.Importer
	scheduler *scheduler.Scheduler

	closers []func() error
}

// Open builds a Service from settings. The caller must Close it.
func Open(ctx context.Context, settings config.Settings, opts ...Option) (*Service, error) {
	o := options{clock: clock.Real{}, ids: ident.UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.http == nil {
		o.http = &http.Client{Timeout: settings.HTTP.RequestTimeout}
	}

	loc, err := settings.Location()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(settings.DBPath, store.WithClock(o.clock))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Service{
		settings: settings,
		loc:      loc,
		clock:    o.clock,
		logger:   o.logger,
		store:    st,
		cfg:      config.NewStoreProvider(st),
		closers:  []func() error{st.Close},
	}
	if err := s.build(ctx, o); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) build(ctx context.Context, o options) error {
	tables, err := s.openTables()
	if err != nil {
		return err
	}
	s.tables = tables

	cacheBackend, err := s.openCacheBackend()
	if err != nil {
		return err
	}
	locks, err := s.openLockBackend(ctx)
	if err != nil {
		return err
	}

	tracker := o.tracker
	if tracker == nil {
		tracker = carrier.NewRegistry(carrier.Deps{
			Config:      s.cfg,
			HTTP:        o.http,
			Diagnostics: s.store,
			Clock:       s.clock,
			Location:    s.loc,
			Logger:      s.logger,
		})
	}

	s.cache = cache.New(cacheBackend, s.cfg, s.clock, s.settings.Cache.TTL, s.logger)
	s.jobs = jobs.NewManager(s.store, locks, s.clock,
		jobs.WithLockWait(s.settings.Lock.Wait),
		jobs.WithOwners(o.ids),
		jobs.WithLogger(s.logger),
	)
	s.worker = worker.New(worker.Deps{
		Tables:   s.tables,
		Jobs:     s.jobs,
		Tracker:  tracker,
		Cache:    s.cache,
		Throttle: throttle.New(s.store, s.cfg, s.clock, s.logger),
		Policy:   backoff.New(s.cfg, s.loc),
		Clock:    s.clock,
		Location: s.loc,
		Budget: worker.Budget{
			MaxCalls:         s.settings.Bulk.MaxCallsPerRun,
			PriorityBonus:    s.settings.Bulk.PriorityBonus,
			PriorityCarriers: s.settings.Bulk.PriorityCarriers,
			TimeLimit:        s.settings.Bulk.TimeLimit,
		},
		CacheTTL: s.settings.Cache.TTL,
		Logger:   s.logger,
	})
	s.reconcile = reconcile.New(s.tables, s.clock, o.ids, s.loc, s.logger)
	s.pending = pending.New(s.tables, s.logger)
	s.importer = importer.New(s.tables, s.logger)

	s.scheduler = scheduler.New(s.store, s.clock, s.logger)
	s.scheduler.Handle(TriggerBulkTick, func(ctx context.Context) error {
		_, err := s.Tick(ctx)
		return err
	})
	s.scheduler.Handle(TriggerDailyFlow, func(ctx context.Context) error {
		_, err := s.RunDailyFlow(ctx)
		return err
	})
	return nil
}

func (s *Service) openTables() (sheet.Tables, error) {
	switch s.settings.Tables.Backend {
	case BackendXLSX:
		wb, err := workbook.Open(s.settings.Tables.Path)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		s.closers = append(s.closers, wb.Close)
		return wb, nil
	case BackendSQLite, "":
		return s.store, nil
	default:
		return nil, unknownBackend("tables", s.settings.Tables.Backend)
	}
}

func (s *Service) openCacheBackend() (cache.Backend, error) {
	c := s.settings.Cache
	switch c.Backend {
	case BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
		s.closers = append(s.closers, rdb.Close)
		return cache.NewRedisBackend(rdb, ""), nil
	case BackendSQLite, "":
		return cache.NewSQLiteBackend(s.store, s.clock), nil
	default:
		return nil, unknownBackend("cache", c.Backend)
	}
}

func (s *Service) openLockBackend(ctx context.Context) (lock.Backend, error) {
	l := s.settings.Lock
	switch l.Backend {
	case BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: l.RedisAddr})
		s.closers = append(s.closers, rdb.Close)
		return lock.NewRedis(rdb, l.Lease), nil
	case BackendPostgres:
		pool, err := pgxpool.New(ctx, l.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, func() error {
			pool.Close()
			return nil
		})
		return lock.NewPostgres(pool), nil
	case BackendSQLite, "":
		return lock.NewSQLite(s.store, s.clock, l.Lease), nil
	default:
		return nil, unknownBackend("lock", l.Backend)
	}
}

func unknownBackend(kind, name string) error {
	return model.NewError(model.ErrCodeConfig, "", fmt.Sprintf("unknown %s backend %q", kind, name))
}

// Close releases every backend in reverse order of opening.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Settings returns the settings the Service was built from.
func (s *Service) Settings() config.Settings {
	return s.settings
}

// Scheduler returns the recurring trigger scheduler, for serve.
func (s *Service) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Tables returns the table backend.
func (s *Service) Tables() sheet.Tables {
	return s.tables
}
