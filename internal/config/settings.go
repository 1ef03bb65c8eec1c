// Package config holds the two layers of parceltrack configuration.
//
// Settings are process settings: where the database lives, which lock and
// cache backends to use, bulk budgets. They are read from defaults, an
// optional YAML file and PARCELTRACK_* environment variables, then
// validated against an embedded CUE schema.
//
// Provider is the durable key/value store shared by every process:
// carrier credentials, URL templates, throttle overrides, the cache buster
// and cached OAuth tokens.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/parceltrack/internal/model"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PARCELTRACK_"

// Settings configures one parceltrack process.
type Settings struct {
	DBPath   string `yaml:"db_path" json:"db_path" env:"DB"`
	TimeZone string `yaml:"time_zone" json:"time_zone" env:"TZ"`

	Tables      TablesSettings      `yaml:"tables" json:"tables" envPrefix:"TABLES_"`
	Bulk        BulkSettings        `yaml:"bulk" json:"bulk" envPrefix:"BULK_"`
	Cache       CacheSettings       `yaml:"cache" json:"cache" envPrefix:"CACHE_"`
	Lock        LockSettings        `yaml:"lock" json:"lock" envPrefix:"LOCK_"`
	HTTP        HTTPSettings        `yaml:"http" json:"http" envPrefix:"HTTP_"`
	Import      ImportSettings      `yaml:"import" json:"import" envPrefix:"IMPORT_"`
	Diagnostics DiagnosticsSettings `yaml:"diagnostics" json:"diagnostics" envPrefix:"DIAG_"`
}

// TablesSettings selects where named tables live. The sqlite backend keeps
// them in the database at DBPath; the xlsx backend keeps one sheet per
// table in the workbook at Path.
type TablesSettings struct {
	Backend string `yaml:"backend" json:"backend" env:"BACKEND"`
	Path    string `yaml:"path" json:"path" env:"PATH"`
}

// BulkSettings bounds one worker tick.
type BulkSettings struct {
	// MaxCallsPerRun is the base remote call budget of one tick.
	MaxCallsPerRun int `yaml:"max_calls_per_run" json:"max_calls_per_run" env:"MAX_CALLS"`

	// TimeLimit is the wall-clock box of one tick.
	TimeLimit time.Duration `yaml:"time_limit" json:"time_limit" env:"TIME_LIMIT"`

	// PriorityBonus caps the extra calls granted for priority carriers.
	PriorityBonus int `yaml:"priority_bonus" json:"priority_bonus" env:"PRIORITY_BONUS"`

	// PriorityCarriers earn bonus budget, by canonical id.
	PriorityCarriers []string `yaml:"priority_carriers" json:"priority_carriers" env:"PRIORITY_CARRIERS" envSeparator:","`

	// TickInterval is the period of the recurring tick trigger.
	TickInterval time.Duration `yaml:"tick_interval" json:"tick_interval" env:"TICK_INTERVAL"`
}

// CacheSettings selects the result cache backend.
type CacheSettings struct {
	Backend       string        `yaml:"backend" json:"backend" env:"BACKEND"`
	TTL           time.Duration `yaml:"ttl" json:"ttl" env:"TTL"`
	RedisAddr     string        `yaml:"redis_addr" json:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" json:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" json:"redis_db" env:"REDIS_DB"`
}

// LockSettings selects the global lock backend.
type LockSettings struct {
	Backend     string        `yaml:"backend" json:"backend" env:"BACKEND"`
	Wait        time.Duration `yaml:"wait" json:"wait" env:"WAIT"`
	Lease       time.Duration `yaml:"lease" json:"lease" env:"LEASE"`
	RedisAddr   string        `yaml:"redis_addr" json:"redis_addr" env:"REDIS_ADDR"`
	PostgresDSN string        `yaml:"postgres_dsn" json:"postgres_dsn" env:"POSTGRES_DSN"`
}

// HTTPSettings configures the serve command and outbound carrier calls.
type HTTPSettings struct {
	Addr           string        `yaml:"addr" json:"addr" env:"ADDR"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" env:"REQUEST_TIMEOUT"`
}

// ImportSettings locates report files.
type ImportSettings struct {
	Dir string `yaml:"dir" json:"dir" env:"DIR"`
}

// DiagnosticsSettings bounds the diagnostic log.
type DiagnosticsSettings struct {
	Keep int `yaml:"keep" json:"keep" env:"KEEP"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		DBPath:   "parceltrack.db",
		TimeZone: "UTC",
		Tables: TablesSettings{
			Backend: "sqlite",
		},
		Bulk: BulkSettings{
			MaxCallsPerRun:   20,
			TimeLimit:        20 * time.Second,
			PriorityBonus:    150,
			PriorityCarriers: []string{"posti", "gls"},
			TickInterval:     time.Minute,
		},
		Cache: CacheSettings{
			Backend: "sqlite",
			TTL:     6 * time.Hour,
		},
		Lock: LockSettings{
			Backend: "sqlite",
			Wait:    5 * time.Second,
			Lease:   2 * time.Minute,
		},
		HTTP: HTTPSettings{
			Addr:           ":8080",
			RequestTimeout: 25 * time.Second,
		},
		Import: ImportSettings{
			Dir: "imports",
		},
		Diagnostics: DiagnosticsSettings{
			Keep: 2000,
		},
	}
}

// Load builds Settings from defaults, the YAML file at path (optional),
// the .env file at envFile (optional) and the process environment.
// Missing files are not errors when their path is empty.
func Load(path, envFile string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, model.WrapError(model.ErrCodeConfig, "read settings file", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, model.WrapError(model.ErrCodeConfig, "parse settings file", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return s, model.WrapError(model.ErrCodeConfig, "load env file", err)
		}
	}

	if err := env.ParseWithOptions(&s, env.Options{Prefix: EnvPrefix}); err != nil {
		return s, model.WrapError(model.ErrCodeConfig, "parse environment", err)
	}

	if err := Validate(s); err != nil {
		return s, err
	}
	return s, nil
}

// Location resolves TimeZone.
func (s Settings) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return nil, model.WrapError(model.ErrCodeConfig, fmt.Sprintf("unknown time zone %q", s.TimeZone), err)
	}
	return loc, nil
}
