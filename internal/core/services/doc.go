// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The catalog service resolves the manifest, the index manager builds
// and promotes generations behind an alias, and the match and search
// services query whatever generation the alias points to.
package services
