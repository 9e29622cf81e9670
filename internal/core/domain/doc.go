// Package domain defines the core business entities for sercha-match.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Entity: A typed record with multi-valued properties
//   - Model: The closed set of schemata and property types
//   - Dataset: A named, versioned unit of entities
//   - Generation: One physical index built under the alias
//   - MatchResult: Ranked, scored candidates for a query entity
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
