// Package store provides SQLite-backed durable state for parceltrack.
//
// One database file holds everything that must survive between process
// invocations:
//   - kv: flat configuration, credentials and the OAuth token cache
//   - jobs: bulk refresh cursors, one per named table
//   - throttle_state: last call time and interval per carrier tag
//   - cache_entries: carrier results with absolute expiry
//   - locks: named lease locks used by the job manager
//   - http_log: the diagnostic log of non-success remote calls
//   - sheet_tables / sheet_rows: the named tables (Packages, archives, logs)
//   - triggers: recurring schedules registered by start/stop
//
// # Conventions
//
// Timestamps are stored as unix milliseconds; 0 means unset. Table rows are
// stored as JSON arrays of strings, row 1 being the header. Every method
// takes a context and wraps driver errors with the operation name.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait up to 5s on lock contention
//   - foreign_keys=ON: Enforce referential integrity
package store
