package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendKind_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		kind     BackendKind
		expected bool
	}{
		{name: "sqlite is valid", kind: BackendSQLite, expected: true},
		{name: "memory is valid", kind: BackendMemory, expected: true},
		{name: "empty is invalid", kind: BackendKind(""), expected: false},
		{name: "elastic is invalid", kind: BackendKind("elasticsearch"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.IsValid())
		})
	}
}

func TestBackendKind_Description(t *testing.T) {
	assert.Contains(t, BackendSQLite.Description(), "SQLite")
	assert.Equal(t, "Unknown", BackendKind("x").Description())
	assert.Equal(t, "memory", BackendMemory.String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestDefaultSettings_Valid(t *testing.T) {
	s := DefaultSettings()

	require.NoError(t, s.Validate())
	assert.Equal(t, "sercha-entities", s.Index.Alias)
	assert.Equal(t, BackendSQLite, s.Index.Backend)
	assert.Equal(t, 0.7, s.Match.Threshold)
	assert.Equal(t, 10, s.Match.CandidateFactor)
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"empty alias", func(s *Settings) { s.Index.Alias = "" }},
		{"unknown backend", func(s *Settings) { s.Index.Backend = "solr" }},
		{"zero batch", func(s *Settings) { s.Index.BatchSize = 0 }},
		{"threshold above one", func(s *Settings) { s.Match.Threshold = 1.5 }},
		{"negative cutoff", func(s *Settings) { s.Match.Cutoff = -0.1 }},
		{"limit above max", func(s *Settings) { s.Match.Limit = 1000 }},
		{"no workers", func(s *Settings) { s.Match.BatchWorkers = 0 }},
		{"zero schedule", func(s *Settings) { s.Index.Schedule = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			err := s.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig))
		})
	}
}
