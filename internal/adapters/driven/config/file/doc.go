// Package file provides file-based implementations of driven port interfaces.
//
// Adapters:
//   - SettingsStore: TOML settings with SERCHA_MATCH_* environment overrides
//   - ManifestLoader: TOML or YAML catalog manifests from a path or URL
package file
