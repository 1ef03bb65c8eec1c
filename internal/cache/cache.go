// Package cache memoizes carrier results per (carrier, code).
//
// Every key embeds the global cache buster (TRK_CACHE_BUSTER). Rotating
// the buster orphans all existing entries at once; they age out of the
// backend by their own expiry.
//
// The cache never fails a caller: read errors are misses and write errors
// are logged.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/parceltrack/internal/clock"
	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
)

// DefaultTTL applies when Put is given a non-positive ttl.
const DefaultTTL = 6 * time.Hour

const keyDomain = "parceltrack/cache/v1"

// Backend stores opaque values with an expiry.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
}

// Backends that keep entries past their expiry implement these; redis
// expires keys natively and needs neither.
type (
	purger interface {
		Purge(ctx context.Context) (int64, error)
	}
	clearer interface {
		Clear(ctx context.Context) (int64, error)
	}
)

// Cache is the result cache.
type Cache struct {
	backend    Backend
	cfg        config.Provider
	clock      clock.Clock
	defaultTTL time.Duration
	logger     *slog.Logger
}

// New creates a Cache. defaultTTL <= 0 uses DefaultTTL; a nil logger uses
// slog.Default().
func New(backend Backend, cfg config.Provider, clk clock.Clock, defaultTTL time.Duration, logger *slog.Logger) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{backend: backend, cfg: cfg, clock: clk, defaultTTL: defaultTTL, logger: logger}
}

// Key returns the backend key of (carrier, code) under the current buster.
// The carrier is lowercased, the code is used as given.
func (c *Cache) Key(ctx context.Context, carrier, code string) string {
	buster := config.StringOr(ctx, c.cfg, config.KeyCacheBuster, "0")
	return hashWithDomain(keyDomain, buster, strings.ToLower(carrier), code)
}

// hashWithDomain computes a SHA-256 over domain and parts, each followed by
// a null separator so that part boundaries cannot be shifted.
func hashWithDomain(domain string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0x00})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result of (carrier, code).
func (c *Cache) Get(ctx context.Context, carrier, code string) (model.StatusResult, bool) {
	raw, ok, err := c.backend.Get(ctx, c.Key(ctx, carrier, code))
	if err != nil {
		c.logger.Warn("cache.get.failed", "carrier", carrier, "error", err)
		return model.StatusResult{}, false
	}
	if !ok {
		return model.StatusResult{}, false
	}
	var res model.StatusResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		c.logger.Warn("cache.decode.failed", "carrier", carrier, "error", err)
		return model.StatusResult{}, false
	}
	return res, true
}

// Put stores res for (carrier, code). ttl <= 0 uses the default TTL.
func (c *Cache) Put(ctx context.Context, carrier, code string, res model.StatusResult, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	raw, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn("cache.encode.failed", "carrier", carrier, "error", err)
		return
	}
	if err := c.backend.Put(ctx, c.Key(ctx, carrier, code), string(raw), ttl); err != nil {
		c.logger.Warn("cache.put.failed", "carrier", carrier, "error", err)
	}
}

// InvalidateAll rotates the cache buster so every existing entry misses.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	prev := config.String(ctx, c.cfg, config.KeyCacheBuster)
	next := strconv.FormatInt(c.clock.Now().UnixNano(), 10)
	if next == prev {
		next += "-1"
	}
	if err := c.cfg.Set(ctx, config.KeyCacheBuster, next); err != nil {
		return err
	}
	var removed int64
	if b, ok := c.backend.(clearer); ok {
		n, err := b.Clear(ctx)
		if err != nil {
			c.logger.Warn("cache.clear.failed", "error", err)
		}
		removed = n
	}
	c.logger.Info("cache.invalidated", "buster", next, "removed", removed)
	return nil
}

// Purge drops expired entries from backends that do not expire them on
// their own. It returns the number removed.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	b, ok := c.backend.(purger)
	if !ok {
		return 0, nil
	}
	n, err := b.Purge(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.logger.Debug("cache.purged", "removed", n)
	}
	return n, nil
}
