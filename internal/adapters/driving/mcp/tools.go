package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// MatchInput is the input schema for the match_entity tool.
type MatchInput struct {
	Schema     string              `json:"schema" jsonschema:"entity type of the example, such as Person, Company, Organization or Vessel"`
	Properties map[string][]string `json:"properties" jsonschema:"property values of the example keyed by property name, such as name, birthDate, nationality or registrationNumber"`
	Dataset    string              `json:"dataset,omitempty" jsonschema:"dataset or collection to screen against (default: every indexed dataset)"`
	Algorithm  string              `json:"algorithm,omitempty" jsonschema:"scoring algorithm: logic-v1, name-based or ofac-249"`
	Limit      int                 `json:"limit,omitempty" jsonschema:"maximum number of candidates to return"`
	Threshold  *float64            `json:"threshold,omitempty" jsonschema:"score at or above which a candidate counts as a match"`
	Fuzzy      bool                `json:"fuzzy,omitempty" jsonschema:"also retrieve candidates by address and free text"`
}

// MatchOutput is the output schema for the match_entity tool.
type MatchOutput struct {
	Results   []MatchResultOutput `json:"results"`
	Total     int                 `json:"total"`
	Algorithm string              `json:"algorithm"`
}

// MatchResultOutput represents a single scored candidate.
type MatchResultOutput struct {
	Entity EntityOutput `json:"entity"`
	Score  float64      `json:"score"`
	Match  bool         `json:"match"`
}

// SearchInput is the input schema for the search_entities tool.
type SearchInput struct {
	Query     string   `json:"query" jsonschema:"words that must all appear in the entity, empty lists entities"`
	Dataset   string   `json:"dataset,omitempty" jsonschema:"dataset or collection to search in"`
	Schema    string   `json:"schema,omitempty" jsonschema:"restrict results to this entity type and its sub-types"`
	Countries []string `json:"countries,omitempty" jsonschema:"restrict results to entities linked to these country codes"`
	Topics    []string `json:"topics,omitempty" jsonschema:"restrict results to entities tagged with these topics, e.g. sanction or role.pep"`
	Limit     int      `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
}

// SearchOutput is the output schema for the search_entities tool.
type SearchOutput struct {
	Results []EntityOutput `json:"results"`
	Total   int            `json:"total"`
}

// EntityInput is the input schema for the get_entity tool.
type EntityInput struct {
	ID string `json:"id" jsonschema:"entity id, former ids resolve to the current entity"`
}

// EntityOutput is a compact entity rendering.
type EntityOutput struct {
	ID         string              `json:"id"`
	Schema     string              `json:"schema"`
	Caption    string              `json:"caption"`
	Datasets   []string            `json:"datasets"`
	Properties map[string][]string `json:"properties"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "match_entity",
		Description: "Screen an example entity against sanctions and watch lists and return ranked candidates",
	}, s.handleMatch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_entities",
		Description: "Full-text search over the indexed entities",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_entity",
		Description: "Fetch one entity by id, merged across the datasets publishing it",
	}, s.handleEntity)
}

// handleMatch handles the match_entity tool invocation.
func (s *Server) handleMatch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input MatchInput,
) (*mcp.CallToolResult, MatchOutput, error) {
	opts := s.ports.Matcher.DefaultOptions()
	opts.Scope = input.Dataset
	opts.Fuzzy = input.Fuzzy
	if input.Algorithm != "" {
		opts.Algorithm = input.Algorithm
	}
	if input.Limit > 0 {
		opts.Limit = input.Limit
	}
	if input.Threshold != nil {
		opts.Threshold = *input.Threshold
	}

	query := domain.Entity{ID: "query", Schema: input.Schema}
	for prop, values := range input.Properties {
		query.Add(prop, values...)
	}

	result, err := s.ports.Matcher.Match(ctx, query, opts)
	if err != nil {
		return nil, MatchOutput{}, fmt.Errorf("match: %w", err)
	}

	output := MatchOutput{
		Results:   make([]MatchResultOutput, len(result.Results)),
		Total:     result.Total,
		Algorithm: result.Algorithm,
	}
	for i := range result.Results {
		r := &result.Results[i]
		output.Results[i] = MatchResultOutput{
			Entity: toEntityOutput(&r.Entity),
			Score:  r.Score,
			Match:  r.Match,
		}
	}

	return nil, output, nil
}

// handleSearch handles the search_entities tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	opts := domain.SearchOptions{
		Scope:     input.Dataset,
		Schema:    input.Schema,
		Countries: input.Countries,
		Topics:    input.Topics,
		Facets:    []string{},
		Limit:     limit,
	}
	resp, err := s.ports.Search.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, fmt.Errorf("search: %w", err)
	}

	output := SearchOutput{
		Results: make([]EntityOutput, len(resp.Results)),
		Total:   resp.Total,
	}
	for i := range resp.Results {
		output.Results[i] = toEntityOutput(&resp.Results[i].Entity)
	}

	return nil, output, nil
}

// handleEntity handles the get_entity tool invocation.
func (s *Server) handleEntity(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input EntityInput,
) (*mcp.CallToolResult, EntityOutput, error) {
	entity, err := s.ports.Search.Entity(ctx, input.ID)
	if err != nil {
		return nil, EntityOutput{}, fmt.Errorf("entity %s: %w", input.ID, err)
	}
	return nil, toEntityOutput(entity), nil
}

func toEntityOutput(e *domain.Entity) EntityOutput {
	caption := e.Caption
	if caption == "" {
		caption = e.First("name")
	}
	return EntityOutput{
		ID:         e.ID,
		Schema:     e.Schema,
		Caption:    caption,
		Datasets:   e.Datasets,
		Properties: e.Properties,
	}
}
