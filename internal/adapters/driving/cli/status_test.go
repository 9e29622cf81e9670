package cli

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

func TestStatusCmd_Table(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"status"})

	require.NoError(t, rootCmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "sercha-entities-20240101")
	assert.Contains(t, out, "stale")
	assert.Contains(t, out, "us_ofac_sdn")
	assert.Contains(t, out, "20240102")
	assert.Contains(t, out, "120")
	assert.Contains(t, out, "outdated")
	assert.Contains(t, out, "not loaded", "collections are not loaded")
	assert.Contains(t, out, "Outdated: us_ofac_sdn")
	assert.Contains(t, out, "Last check:  never")
}

func TestStatusCmd_JSON(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"status", "--json"})

	require.NoError(t, rootCmd.Execute())

	var status domain.CatalogStatus
	require.NoError(t, json.Unmarshal(buf.Bytes(), &status))
	assert.True(t, status.IndexStale)
	assert.Equal(t, []string{"us_ofac_sdn"}, status.Outdated)
}

func TestStatusCmd_Empty(t *testing.T) {
	cleanup, ts := setupTestServicesWith()
	defer cleanup()
	ts.status.status = &domain.CatalogStatus{State: domain.StateFailed, LastError: "fetch failed"}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"status"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "Generation:  none")
	assert.Contains(t, buf.String(), "Last error:  fetch failed")
	assert.Contains(t, buf.String(), "No datasets in the catalog.")
}

func TestStatusCmd_Error(t *testing.T) {
	cleanup, ts := setupTestServicesWith()
	defer cleanup()
	ts.status.err = domain.ErrBackendUnavailable

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"status"})

	assert.ErrorIs(t, rootCmd.Execute(), domain.ErrBackendUnavailable)
}

func TestCatalogCmd(t *testing.T) {
	cleanup, ts := setupTestServicesWith()
	defer cleanup()
	ts.catalog.catalog = domain.NewResolvedCatalog([]domain.Dataset{
		{Name: "us_ofac_sdn", Kind: domain.KindSource, Version: "20240102", EntitiesURL: "https://data.example.org/ofac.json"},
		{Name: "sanctions", Kind: domain.KindCollection, Children: []string{"us_ofac_sdn"}},
	}, time.Now())

	t.Run("table", func(t *testing.T) {
		buf := new(bytes.Buffer)
		rootCmd.SetOut(buf)
		rootCmd.SetArgs([]string{"catalog"})

		require.NoError(t, rootCmd.Execute())

		out := buf.String()
		assert.Contains(t, out, "https://data.example.org/ofac.json")
		assert.Contains(t, out, "collection")
		assert.Contains(t, out, "2 datasets")
	})

	t.Run("json", func(t *testing.T) {
		buf := new(bytes.Buffer)
		rootCmd.SetOut(buf)
		rootCmd.SetArgs([]string{"catalog", "--json"})

		require.NoError(t, rootCmd.Execute())

		var datasets []domain.Dataset
		require.NoError(t, json.Unmarshal(buf.Bytes(), &datasets))
		require.Len(t, datasets, 2)
		assert.Equal(t, "sanctions", datasets[0].Name)
	})
}

func TestCatalogCmd_Empty(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"catalog"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "No datasets in the catalog.")
}

func TestAuditLogCmd(t *testing.T) {
	cleanup, ts := setupTestServicesWith()
	defer cleanup()
	ts.status.events = []domain.AuditEvent{
		{ID: 2, Timestamp: time.Now(), Event: "alias_rollover", Index: "sercha-entities-2", Message: "from sercha-entities-1"},
		{ID: 1, Timestamp: time.Now(), Event: "reindex_started", Index: "sercha-entities-2"},
	}

	t.Run("list", func(t *testing.T) {
		buf := new(bytes.Buffer)
		rootCmd.SetOut(buf)
		rootCmd.SetArgs([]string{"audit-log"})

		require.NoError(t, rootCmd.Execute())
		assert.Contains(t, buf.String(), "alias_rollover")
		assert.Contains(t, buf.String(), "from sercha-entities-1")
		assert.Contains(t, buf.String(), "reindex_started")
	})

	t.Run("limit json", func(t *testing.T) {
		buf := new(bytes.Buffer)
		rootCmd.SetOut(buf)
		rootCmd.SetArgs([]string{"audit-log", "-n", "1", "--json"})

		require.NoError(t, rootCmd.Execute())

		var events []domain.AuditEvent
		require.NoError(t, json.Unmarshal(buf.Bytes(), &events))
		require.Len(t, events, 1)
		assert.Equal(t, "alias_rollover", events[0].Event)
	})
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "never", formatTime(time.Time{}))
	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "x", orDash("x"))
	assert.Equal(t, "-", countOrDash(0))
	assert.Equal(t, "42", countOrDash(42))
}
