// Package mcp exposes the query side of the engine over the Model Context
// Protocol: a search_code tool for ranked snippets and an index_status tool
// for health checks. This is the surface a conversational agent consumes.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quarrylabs/quarry/internal/engine"
	"github.com/quarrylabs/quarry/internal/search"
	"github.com/quarrylabs/quarry/pkg/version"
)

// SearchInput are the arguments of the search_code tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the code search query to execute"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Dir   string `json:"dir,omitempty" jsonschema:"restrict results to this directory prefix"`
}

// SearchOutput is the structured result of the search_code tool.
type SearchOutput struct {
	Results []search.Result `json:"results"`
	// Confidence is "semantic", or "lexical" when the engine served the
	// degraded keyword fallback.
	Confidence string `json:"confidence"`
}

// IndexStatusInput has no arguments.
type IndexStatusInput struct{}

// IndexStatusOutput is the structured result of the index_status tool.
type IndexStatusOutput struct {
	Status engine.Status `json:"status"`
	Ready  bool          `json:"ready"`
}

// Server wraps an engine behind an MCP server.
type Server struct {
	engine *engine.Engine
	mcp    *mcp.Server
}

// NewServer creates an MCP server over an opened engine.
func NewServer(eng *engine.Engine) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}

	s := &Server{engine: eng}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "Quarry",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code",
		Description: "Search the indexed codebase by meaning. Returns ranked snippets with file paths and line ranges. Results are tagged lexical when the embedding provider is unavailable.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report index health: file and point counts, pending and failed paths, embedder and backend availability.",
	}, s.statusHandler)
}

// searchHandler runs the search_code tool.
func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	results, err := s.engine.Search(ctx, input.Query, input.Limit, input.Dir)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{Results: results, Confidence: search.ConfidenceSemantic}
	if len(results) > 0 {
		out.Confidence = results[0].Confidence
	}
	return nil, out, nil
}

// statusHandler runs the index_status tool.
func (s *Server) statusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	status := s.engine.Status(ctx)
	return nil, IndexStatusOutput{
		Status: status,
		Ready:  !status.Paused && status.Pending == 0,
	}, nil
}

// Serve runs the server over the given transport until ctx is cancelled.
// Only stdio is supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	switch transport {
	case "stdio":
		slog.Info("mcp_server_started", slog.String("transport", transport))
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
