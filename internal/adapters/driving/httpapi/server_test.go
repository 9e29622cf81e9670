//nolint:noctx // Test file uses http.Get for convenience; context not required in tests
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, p *testPorts, opts Options) *Server {
	t.Helper()
	server, err := NewServer(p.ports(), opts)
	require.NoError(t, err)
	return server
}

// serve runs one request through the full handler chain.
func serve(t *testing.T, server *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewServer(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Ports)
		want   error
	}{
		{name: "missing matcher", mutate: func(p *Ports) { p.Matcher = nil }, want: ErrMissingMatcher},
		{name: "missing search", mutate: func(p *Ports) { p.Search = nil }, want: ErrMissingSearchService},
		{name: "missing status", mutate: func(p *Ports) { p.Status = nil }, want: ErrMissingStatusService},
		{name: "missing indexer", mutate: func(p *Ports) { p.Indexer = nil }, want: ErrMissingIndexer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ports := newTestPorts().ports()
			tt.mutate(ports)

			server, err := NewServer(ports, Options{})
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, server)
		})
	}

	t.Run("valid ports", func(t *testing.T) {
		server, err := NewServer(newTestPorts().ports(), Options{})
		require.NoError(t, err)
		assert.NotNil(t, server.Handler())
		assert.Empty(t, server.Addr())
	})
}

func TestServer_StartStop(t *testing.T) {
	server := newTestServer(t, newTestPorts(), Options{})

	require.NoError(t, server.Start("127.0.0.1:0"))
	require.NotEmpty(t, server.Addr())

	resp, err := http.Get("http://" + server.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	// Stopping again should not error
	require.NoError(t, server.Stop(ctx))
}

func TestServer_Start_PortInUse(t *testing.T) {
	first := newTestServer(t, newTestPorts(), Options{})
	require.NoError(t, first.Start("127.0.0.1:0"))
	defer first.Stop(context.Background())

	second := newTestServer(t, newTestPorts(), Options{})
	err := second.Start(first.Addr())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestServer_OptionalRoutes(t *testing.T) {
	t.Run("metrics absent", func(t *testing.T) {
		server := newTestServer(t, newTestPorts(), Options{})
		rec := serve(t, server, http.MethodGet, "/metrics", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("metrics and mcp mounted", func(t *testing.T) {
		ports := newTestPorts().ports()
		ports.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "sercha_match_up 1\n")
		})
		ports.MCP = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
		server, err := NewServer(ports, Options{})
		require.NoError(t, err)

		rec := serve(t, server, http.MethodGet, "/metrics", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "sercha_match_up")

		rec = serve(t, server, http.MethodPost, "/mcp", "{}")
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})
}

func TestServer_MethodNotAllowed(t *testing.T) {
	server := newTestServer(t, newTestPorts(), Options{})
	rec := serve(t, server, http.MethodGet, "/match/default", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
