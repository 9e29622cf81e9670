package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strconv"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// maxMatchBody bounds match request bodies.
const maxMatchBody = 4 << 20

// matchRequest is the body of POST /match/{dataset}.
type matchRequest struct {
	Queries map[string]exampleEntity `json:"queries"`
}

// exampleEntity is a query example. Property values may be a single
// value or a list.
type exampleEntity struct {
	ID         string                    `json:"id,omitempty"`
	Schema     string                    `json:"schema"`
	Properties map[string]propertyValues `json:"properties"`
}

// propertyValues accepts a string, a number or a list of them.
type propertyValues []string

// UnmarshalJSON implements json.Unmarshaler.
func (p *propertyValues) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			v, err := scalarString(item)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		*p = out
		return nil
	}
	v, err := scalarString(data)
	if err != nil {
		return err
	}
	*p = propertyValues{v}
	return nil
}

func scalarString(data json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", errors.New("property values must be strings or numbers")
	}
}

// entityMatches is the answer for one query of a batch.
type entityMatches struct {
	Status  int                   `json:"status"`
	Results []domain.ScoredEntity `json:"results"`
	Total   int                   `json:"total"`
	Query   domain.Entity         `json:"query"`
	Detail  string                `json:"detail,omitempty"`
}

// matchResponse is the body returned by POST /match/{dataset}.
type matchResponse struct {
	Responses map[string]entityMatches `json:"responses"`
	Algorithm string                   `json:"algorithm"`
	Limit     int                      `json:"limit"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	opts, err := s.matchOptions(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req matchRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxMatchBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, invalidf("cannot parse match request: %v", err))
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, r, invalidf("no queries provided"))
		return
	}

	keys := make([]string, 0, len(req.Queries))
	for key := range req.Queries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	queries := make([]domain.MatchQuery, 0, len(keys))
	for _, key := range keys {
		example := req.Queries[key]
		if example.Schema == "" {
			writeError(w, r, invalidf("query %q: missing schema", key))
			return
		}
		entity := domain.Entity{ID: example.ID, Schema: example.Schema}
		if entity.ID == "" {
			entity.ID = key
		}
		for prop, values := range example.Properties {
			entity.Add(prop, values...)
		}
		queries = append(queries, domain.MatchQuery{Key: key, Entity: entity})
	}

	results, err := s.ports.Matcher.MatchBatch(r.Context(), queries, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := matchResponse{
		Responses: make(map[string]entityMatches, len(results)),
		Algorithm: opts.Algorithm,
		Limit:     opts.Limit,
	}
	for i := range results {
		res := &results[i]
		item := entityMatches{
			Status:  http.StatusOK,
			Results: res.Results,
			Total:   res.Total,
			Query:   res.Query,
		}
		if res.Err != nil {
			item.Status = statusFor(res.Err)
			item.Detail = res.Err.Error()
		}
		if item.Results == nil {
			item.Results = []domain.ScoredEntity{}
		}
		resp.Responses[res.Key] = item
	}

	w.Header().Set("X-Batch-Size", strconv.Itoa(len(resp.Responses)))
	writeJSON(w, http.StatusOK, resp)
}

// matchOptions starts from the configured defaults and applies the
// query string.
func (s *Server) matchOptions(r *http.Request) (domain.MatchOptions, error) {
	opts := s.ports.Matcher.DefaultOptions()
	opts.Scope = r.PathValue("dataset")

	var err error
	if opts.Limit, err = queryInt(r, "limit", opts.Limit); err != nil {
		return opts, err
	}
	if opts.Threshold, err = queryFloat(r, "threshold", opts.Threshold); err != nil {
		return opts, err
	}
	if opts.Cutoff, err = queryFloat(r, "cutoff", opts.Cutoff); err != nil {
		return opts, err
	}
	if opts.Fuzzy, err = queryBool(r, "fuzzy", opts.Fuzzy); err != nil {
		return opts, err
	}
	if algo := r.URL.Query().Get("algorithm"); algo != "" {
		opts.Algorithm = algo
	}
	if !s.knownAlgorithm(opts.Algorithm) {
		return opts, fmt.Errorf("%w: %q", domain.ErrUnknownAlgorithm, opts.Algorithm)
	}
	opts.ExcludeSchemata = queryList(r, "exclude_schema")
	opts.ExcludeEntityIDs = queryList(r, "exclude_entity_ids")
	return opts, nil
}

func (s *Server) knownAlgorithm(name string) bool {
	if name == "" {
		return true
	}
	return slices.ContainsFunc(s.ports.Matcher.Algorithms(), func(a domain.AlgorithmInfo) bool {
		return a.Name == name
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	opts := domain.SearchOptions{
		Scope:     r.PathValue("dataset"),
		Schema:    r.URL.Query().Get("schema"),
		Countries: queryList(r, "countries"),
		Topics:    queryList(r, "topics"),
		Datasets:  queryList(r, "datasets"),
		Facets:    queryList(r, "facets"),
		Limit:     limit,
		Offset:    offset,
	}
	resp, err := s.ports.Search.Search(r.Context(), r.URL.Query().Get("q"), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEntity returns one entity. Former ids redirect to the entity
// they were merged into.
func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entity, err := s.ports.Search.Entity(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entity.ID != id {
		http.Redirect(w, r, "/entities/"+url.PathEscape(entity.ID), http.StatusPermanentRedirect)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// handleAdjacent returns an entity with the entities linked to it. The
// prop path value narrows the answer to one property.
func (s *Server) handleAdjacent(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.ports.Search.Adjacent(r.Context(), r.PathValue("id"), domain.AdjacentOptions{
		Scope:    r.URL.Query().Get("dataset"),
		Property: r.PathValue("prop"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
