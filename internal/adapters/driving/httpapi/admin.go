package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/logger"
)

// algorithmsResponse is the body of GET /algorithms.
type algorithmsResponse struct {
	Algorithms []domain.AlgorithmInfo `json:"algorithms"`
	Default    string                 `json:"default"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.ports.Status.Live(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.ports.Status.Ready(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Status: http.StatusServiceUnavailable,
			Detail: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	status, err := s.ports.Status.Status(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleAlgorithms(w http.ResponseWriter, _ *http.Request) {
	resp := algorithmsResponse{
		Algorithms: s.ports.Matcher.Algorithms(),
		Default:    s.ports.Matcher.DefaultOptions().Algorithm,
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUpdate forces an index update. With sync=true the response
// carries the build outcome, otherwise the update runs in the background.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !s.authorised(r.URL.Query().Get("token")) {
		writeError(w, r, domain.ErrUnauthorized)
		return
	}
	wait, err := queryBool(r, "sync", false)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if wait {
		outcome, err := s.ports.Indexer.Update(r.Context(), true)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, outcome)
		return
	}

	requestID := RequestID(r.Context())
	s.updates.Add(1)
	go func() {
		defer s.updates.Done()
		outcome, err := s.ports.Indexer.Update(context.Background(), true)
		if err != nil {
			logger.With("request_id", requestID).Warn("forced update failed", "error", err)
			return
		}
		logger.With("request_id", requestID).Info("forced update finished",
			"status", outcome.Status, "generation", outcome.Generation)
	}()
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "accepted"})
}

// authorised compares the token in constant time. An unset update
// token rejects every request.
func (s *Server) authorised(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" || s.opts.UpdateToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.UpdateToken)) == 1
}
