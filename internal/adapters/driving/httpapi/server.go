package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-match/internal/logger"
)

// Options tunes the HTTP server.
type Options struct {
	// UpdateToken authorises POST /updatez. Empty disables the endpoint.
	UpdateToken string

	// QueryTimeout bounds match, search and entity requests. Zero disables it.
	QueryTimeout time.Duration
}

// Server serves the HTTP API.
type Server struct {
	mu       sync.Mutex
	ports    *Ports
	opts     Options
	handler  http.Handler
	server   *http.Server
	listener net.Listener
	errChan  chan error

	// updates tracks background updates started by /updatez.
	updates sync.WaitGroup
}

// NewServer creates a new HTTP API server with the given ports.
func NewServer(ports *Ports, opts Options) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		ports:   ports,
		opts:    opts,
		errChan: make(chan error, 1),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the API handler with its middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	logger.Info("HTTP API listening on %s", listener.Addr())

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errChan <- err:
			default:
			}
		}
	}()

	return nil
}

// Addr returns the address the server listens on, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Err delivers a serve failure after Start.
func (s *Server) Err() <-chan error {
	return s.errChan
}

// Stop shuts the server down, then waits for background updates until
// ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.updates.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("Stopped without waiting for a running index update")
	}
	return err
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("GET /catalog", s.handleCatalog)
	mux.HandleFunc("GET /algorithms", s.handleAlgorithms)
	mux.HandleFunc("POST /updatez", s.handleUpdate)

	query := func(h http.HandlerFunc) http.Handler {
		return withTimeout(s.opts.QueryTimeout, h)
	}
	mux.Handle("POST /match/{dataset}", query(s.handleMatch))
	mux.Handle("GET /search/{dataset}", query(s.handleSearch))
	mux.Handle("GET /entities/{id}", query(s.handleEntity))
	mux.Handle("GET /entities/{id}/adjacent", query(s.handleAdjacent))
	mux.Handle("GET /entities/{id}/adjacent/{prop}", query(s.handleAdjacent))

	if s.ports.Metrics != nil {
		mux.Handle("GET /metrics", s.ports.Metrics)
	}
	if s.ports.MCP != nil {
		mux.Handle("/mcp", s.ports.MCP)
	}

	return withRequestID(withAccessLog(withRecover(mux)))
}
