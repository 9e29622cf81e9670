package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for sercha-match resources.
	uriScheme = "sercha-match://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		URI:         uriScheme + "catalog",
		Name:        "catalog",
		Description: "Datasets with their upstream and indexed versions",
		MIMEType:    "application/json",
	}, s.handleCatalogResource)

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "entities/{entityId}",
		Name:        "entity",
		Description: "A single entity merged across datasets",
		MIMEType:    "application/json",
	}, s.handleEntityResource)
}

// handleCatalogResource returns the catalog freshness report.
func (s *Server) handleCatalogResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Status == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	status, err := s.ports.Status.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog status: %w", err)
	}
	return jsonContents(req.Params.URI, status)
}

// handleEntityResource returns one entity.
func (s *Server) handleEntityResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract entityId from URI: sercha-match://entities/{entityId}
	id := extractEntityID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	entity, err := s.ports.Search.Entity(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("entity %s: %w", id, err)
	}
	return jsonContents(req.Params.URI, entity)
}

func jsonContents(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractEntityID extracts the entity ID from a URI like sercha-match://entities/{entityId}.
func extractEntityID(uri string) string {
	const prefix = uriScheme + "entities/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	return strings.TrimPrefix(uri, prefix)
}
