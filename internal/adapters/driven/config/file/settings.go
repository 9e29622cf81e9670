package file

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// EnvPrefix prefixes environment overrides, e.g. SERCHA_MATCH_LISTEN.
const EnvPrefix = "SERCHA_MATCH_"

// SettingsStore reads and writes the TOML settings file.
// Settings are stored in config.toml within the sercha-match config directory.
type SettingsStore struct {
	filePath string
	getenv   func(string) string
}

// NewSettingsStore creates a settings store.
// If configDir is empty, defaults to ~/.sercha-match/config.toml.
func NewSettingsStore(configDir string) (*SettingsStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".sercha-match")
	}
	return &SettingsStore{
		filePath: filepath.Join(configDir, "config.toml"),
		getenv:   os.Getenv,
	}, nil
}

// NewSettingsStoreFile creates a settings store for an explicit file.
func NewSettingsStoreFile(path string) *SettingsStore {
	return &SettingsStore{filePath: path, getenv: os.Getenv}
}

// Path returns the settings file path.
func (s *SettingsStore) Path() string {
	return s.filePath
}

// Load reads settings: defaults, then the file, then environment overrides.
// A missing file is not an error. Unknown keys are.
func (s *SettingsStore) Load() (domain.Settings, error) {
	settings := domain.DefaultSettings()

	data, err := os.ReadFile(s.filePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// No config file yet - defaults apply
	case err != nil:
		return settings, fmt.Errorf("read settings: %w", err)
	default:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&settings); err != nil {
			return settings, domain.ConfigErrorf("%s: %s", s.filePath, describeTOMLError(err))
		}
	}

	if err := s.applyEnv(&settings); err != nil {
		return settings, err
	}
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

// Save writes settings to the file, creating its directory.
func (s *SettingsStore) Save(settings domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
		return err
	}
	data, err := toml.Marshal(settings)
	if err != nil {
		return err
	}

	// Write with restricted permissions, the file may hold the update token
	return os.WriteFile(s.filePath, data, 0600)
}

// applyEnv overrides deployment values from the environment.
func (s *SettingsStore) applyEnv(settings *domain.Settings) error {
	strs := map[string]*string{
		"MANIFEST":      &settings.Index.Manifest,
		"ALIAS":         &settings.Index.Alias,
		"DATA_DIR":      &settings.Index.Path,
		"UPDATE_TOKEN":  &settings.Server.UpdateToken,
		"LISTEN":        &settings.Server.Listen,
		"LOG_LEVEL":     &settings.Log.Level,
		"LOG_FORMAT":    &settings.Log.Format,
		"S3_ENDPOINT":   &settings.Fetch.S3Endpoint,
		"S3_ACCESS_KEY": &settings.Fetch.S3AccessKey,
		"S3_SECRET_KEY": &settings.Fetch.S3SecretKey,
	}
	for name, dst := range strs {
		if v := s.getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	if v := s.getenv(EnvPrefix + "BACKEND"); v != "" {
		settings.Index.Backend = domain.BackendKind(strings.ToLower(v))
	}

	bools := map[string]*bool{
		"AUTO_REINDEX":   &settings.Index.AutoReindex,
		"DELTA_UPDATES":  &settings.Index.DeltaUpdates,
		"ALL_OR_NOTHING": &settings.Index.AllOrNothing,
	}
	for name, dst := range bools {
		v := s.getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return domain.ConfigErrorf("%s%s: %q is not a boolean", EnvPrefix, name, v)
		}
		*dst = b
	}

	if v := s.getenv(EnvPrefix + "SCHEDULE"); v != "" {
		var d domain.Duration
		if err := d.UnmarshalText([]byte(v)); err != nil {
			return domain.ConfigErrorf("%sSCHEDULE: %v", EnvPrefix, err)
		}
		settings.Index.Schedule = d
	}
	return nil
}

// describeTOMLError renders decoder errors with their position.
func describeTOMLError(err error) string {
	var strict *toml.StrictMissingError
	if errors.As(err, &strict) {
		return strings.TrimSpace(strict.String())
	}
	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		row, col := decodeErr.Position()
		return fmt.Sprintf("line %d column %d: %s", row, col, decodeErr.Error())
	}
	return err.Error()
}
