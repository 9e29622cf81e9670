// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - IndexBackend: Stores generations and answers candidate queries
//   - EntityFetcher: Streams dataset contents from upstream
//   - CatalogFetcher: Downloads remote catalog indexes
//   - ManifestLoader: Reads the manifest
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - AuditLog: Index event history
//   - MetricsRecorder: Operational metrics
//   - SchedulerStore: Periodic task state
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
