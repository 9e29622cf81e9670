package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// BackendKind selects the search backend implementation.
type BackendKind string

// Available backends.
const (
	// BackendSQLite stores generations in an SQLite database with FTS5.
	BackendSQLite BackendKind = "sqlite"

	// BackendMemory keeps generations in process memory.
	BackendMemory BackendKind = "memory"
)

// IsValid returns true if the backend is recognised.
func (b BackendKind) IsValid() bool {
	switch b {
	case BackendSQLite, BackendMemory:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (b BackendKind) String() string {
	return string(b)
}

// Description returns a human-readable description of the backend.
func (b BackendKind) Description() string {
	switch b {
	case BackendSQLite:
		return "SQLite (persistent, full-text search)"
	case BackendMemory:
		return "Memory (ephemeral, for development)"
	default:
		return unknownDescription
	}
}

// Duration is a time.Duration read from text such as "90s" or "1h".
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the duration as time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerSettings configures the HTTP surface.
type ServerSettings struct {
	// Listen is the HTTP listen address.
	Listen string `toml:"listen"`

	// UpdateToken authorises forced reindexing. Empty disables it.
	UpdateToken string `toml:"update_token"`

	// MaxBatch is the largest accepted match batch.
	MaxBatch int `toml:"max_batch"`

	// QueryTimeout bounds a single request.
	QueryTimeout Duration `toml:"query_timeout"`
}

// IndexSettings configures the index lifecycle.
type IndexSettings struct {
	// Manifest is the path or URL of the catalog manifest.
	Manifest string `toml:"manifest"`

	// Alias is the logical index name queries resolve through.
	Alias string `toml:"alias"`

	// Backend selects the search backend.
	Backend BackendKind `toml:"backend"`

	// Path is the data directory of persistent backends.
	Path string `toml:"path"`

	// BatchSize bounds bulk writes.
	BatchSize int `toml:"batch_size"`

	// FetchRetries is how often a failed dataset load is retried.
	FetchRetries int `toml:"fetch_retries"`

	// RetryDelay is the first backoff delay, doubled on each retry.
	RetryDelay Duration `toml:"retry_delay"`

	// DeltaUpdates enables applying published deltas.
	DeltaUpdates bool `toml:"delta_updates"`

	// AllOrNothing fails the build when any dataset fails.
	AllOrNothing bool `toml:"all_or_nothing"`

	// AutoReindex enables the periodic check.
	AutoReindex bool `toml:"auto_reindex"`

	// Schedule is the interval between checks.
	Schedule Duration `toml:"schedule"`

	// Watch triggers a check when local manifest or data files change.
	Watch bool `toml:"watch"`
}

// MatchSettings configures the match engine.
type MatchSettings struct {
	DefaultAlgorithm string  `toml:"default_algorithm"`
	Threshold        float64 `toml:"threshold"`
	Cutoff           float64 `toml:"cutoff"`
	Limit            int     `toml:"limit"`
	MaxLimit         int     `toml:"max_limit"`

	// CandidateFactor multiplies the limit to size candidate retrieval.
	CandidateFactor int `toml:"candidate_factor"`

	// QueryConcurrency caps concurrent backend queries.
	QueryConcurrency int `toml:"query_concurrency"`

	// BatchWorkers is the worker pool size for batch items.
	BatchWorkers int `toml:"batch_workers"`

	// ExpensiveComparators enables edit-distance name comparison.
	ExpensiveComparators bool `toml:"expensive_comparators"`
}

// FetchSettings configures upstream retrieval.
type FetchSettings struct {
	// Rate is the sustained HTTP request rate per second.
	Rate float64 `toml:"rate"`

	// Burst is the HTTP request burst.
	Burst int `toml:"burst"`

	// Timeout bounds connection setup and response headers.
	Timeout Duration `toml:"timeout"`

	// UserAgent is sent with every request.
	UserAgent string `toml:"user_agent"`

	S3Endpoint  string `toml:"s3_endpoint"`
	S3AccessKey string `toml:"s3_access_key"`
	S3SecretKey string `toml:"s3_secret_key"`
	S3Insecure  bool   `toml:"s3_insecure"`
}

// LogSettings configures the process logger.
type LogSettings struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Settings holds all application settings.
type Settings struct {
	Server ServerSettings `toml:"server"`
	Index  IndexSettings  `toml:"index"`
	Match  MatchSettings  `toml:"match"`
	Fetch  FetchSettings  `toml:"fetch"`
	Log    LogSettings    `toml:"log"`
}

// DefaultSettings returns settings with sensible defaults.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			Listen:       ":8000",
			MaxBatch:     100,
			QueryTimeout: Duration(30 * time.Second),
		},
		Index: IndexSettings{
			Manifest:     "manifest.toml",
			Alias:        "sercha-entities",
			Backend:      BackendSQLite,
			BatchSize:    1000,
			FetchRetries: 3,
			RetryDelay:   Duration(2 * time.Second),
			DeltaUpdates: true,
			AutoReindex:  true,
			Schedule:     Duration(time.Hour),
		},
		Match: MatchSettings{
			DefaultAlgorithm: "logic-v1",
			Threshold:        0.7,
			Cutoff:           0.0,
			Limit:            5,
			MaxLimit:         500,
			CandidateFactor:  10,
			QueryConcurrency: 50,
			BatchWorkers:     10,
		},
		Fetch: FetchSettings{
			Rate:      10,
			Burst:     5,
			Timeout:   Duration(30 * time.Second),
			UserAgent: "sercha-match",
		},
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks settings for values the services cannot work with.
func (s *Settings) Validate() error {
	switch {
	case s.Index.Alias == "":
		return ConfigErrorf("index.alias must not be empty")
	case !s.Index.Backend.IsValid():
		return ConfigErrorf("unknown index.backend %q", s.Index.Backend)
	case s.Index.BatchSize <= 0:
		return ConfigErrorf("index.batch_size must be positive")
	case s.Index.FetchRetries < 0:
		return ConfigErrorf("index.fetch_retries must not be negative")
	case s.Index.AutoReindex && s.Index.Schedule <= 0:
		return ConfigErrorf("index.schedule must be positive")
	case s.Match.Threshold < 0 || s.Match.Threshold > 1:
		return ConfigErrorf("match.threshold must be within [0, 1]")
	case s.Match.Cutoff < 0 || s.Match.Cutoff > 1:
		return ConfigErrorf("match.cutoff must be within [0, 1]")
	case s.Match.Limit <= 0 || s.Match.MaxLimit < s.Match.Limit:
		return ConfigErrorf("match.limit must be positive and at most match.max_limit")
	case s.Match.CandidateFactor <= 0:
		return ConfigErrorf("match.candidate_factor must be positive")
	case s.Match.QueryConcurrency <= 0 || s.Match.BatchWorkers <= 0:
		return ConfigErrorf("match concurrency settings must be positive")
	case s.Server.MaxBatch <= 0:
		return ConfigErrorf("server.max_batch must be positive")
	}
	return nil
}
