// Package sqlite provides a SQLite-based implementation of the search
// backend and the stores that live next to it.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple interfaces
// through a single database connection:
//
//   - IndexBackend: Generations as entity tables with an FTS5 shadow table
//   - AuditLog: Index lifecycle events
//   - SchedulerStore: Periodic task state
//
// # Schema
//
// The registry tables (indices, aliases, audit log, scheduler) are managed
// through versioned migrations stored in the migrations/ directory. Each
// generation gets its own pair of tables, created and dropped at runtime.
//
// # Aliases
//
// An alias is a single row. Repointing it is one UPDATE, so concurrent
// readers see either the old or the new generation.
//
// # Data Location
//
// By default, the database is stored at ~/.sercha-match/data/index.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
