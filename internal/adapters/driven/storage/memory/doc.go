// Package memory provides in-memory implementations of the driven
// ports. The backend mirrors the SQLite backend's matching rules and
// serves tests and short-lived deployments that rebuild on start.
package memory
