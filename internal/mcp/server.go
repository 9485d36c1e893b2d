package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/triad/internal/config"
	"github.com/dshills/triad/internal/engine"
	"github.com/dshills/triad/internal/pipeline"
)

// Server exposes the review pipeline as MCP tools.
type Server struct {
	engine  *engine.Engine
	cfg     config.Config
	version string
}

// NewServer creates the MCP server wrapper. cfg is the base configuration;
// per-call arguments are applied to a copy.
func NewServer(eng *engine.Engine, cfg config.Config, version string) *Server {
	return &Server{engine: eng, cfg: cfg, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("triad", s.version, server.WithToolCapabilities(true))
	srv.AddTool(s.reviewCodeTool())
	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// review_code
func (s *Server) reviewCodeTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_code",
		mcp.WithDescription("Review source code or a diff with three agents: a senior developer (quality), a security engineer (OWASP-backed), and a tech lead who makes the merge decision. Returns JSON with the summary metrics, the decision, the parsed reviewer findings, and each stage's raw output."),
		mcp.WithString("code", mcp.Required(), mcp.Description("Source code or unified diff to review")),
		mcp.WithString("model", mcp.Description("Model as provider/name, e.g. gemini/gemini-2.0-flash (default: configured model)")),
		mcp.WithString("source", mcp.Description("File name or label for the code, used in logs and the report")),
	)
	return tool, s.handleReviewCode
}

func (s *Server) handleReviewCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: code"), nil
	}

	cfg := s.cfg
	if m := request.GetString("model", ""); m != "" {
		switched, err := cfg.WithModel(m)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid model: %v", err)), nil
		}
		cfg = switched
	}

	req := pipeline.Request{Code: code, Source: request.GetString("source", "mcp")}
	report, err := s.engine.Review(ctx, cfg, req, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review failed: %v", err)), nil
	}

	data, err := json.Marshal(report)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal report: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
