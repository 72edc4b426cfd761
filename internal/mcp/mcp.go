// Package mcp implements the Model Context Protocol server for glassbox.
//
// The MCP server exposes question answering and run inspection as MCP
// tools and resources, so MCP-compatible AI agents can use the same
// pipeline the HTTP API drives.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/glassbox-ai/glassbox/internal/model"
	"github.com/glassbox-ai/glassbox/internal/pipeline"
	"github.com/glassbox-ai/glassbox/internal/storage"
	"github.com/glassbox-ai/glassbox/internal/stream"
)

// Server wraps the MCP server around the pipeline and run store.
type Server struct {
	mcpServer *mcpserver.MCPServer
	pipeline  *pipeline.Pipeline
	store     storage.RunStore
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
func New(p *pipeline.Pipeline, store storage.RunStore, logger *slog.Logger) *Server {
	s := &Server{
		pipeline: p,
		store:    store,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"glassbox",
		"0.1.0",
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// glassbox://runs/recent — most recent question-answering runs.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"glassbox://runs/recent",
			"Recent Runs",
			mcplib.WithResourceDescription("Most recent question-answering runs with their traces"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRunsRecent,
	)
}

func (s *Server) registerTools() {
	// glassbox_ask — run the full question-answering pipeline.
	s.mcpServer.AddTool(
		mcplib.NewTool("glassbox_ask",
			mcplib.WithDescription("Answer a question from the knowledge base and return the answer with sources and run ID"),
			mcplib.WithString("question", mcplib.Description("The question to answer"), mcplib.Required()),
			mcplib.WithNumber("topk", mcplib.Description("Maximum source chunks to retrieve (1-20)")),
			mcplib.WithNumber("threshold", mcplib.Description("Minimum similarity threshold (0.0-1.0)")),
		),
		s.handleAsk,
	)

	// glassbox_get_run — fetch the full trace of a past run.
	s.mcpServer.AddTool(
		mcplib.NewTool("glassbox_get_run",
			mcplib.WithDescription("Fetch the full persisted trace of a past run by ID"),
			mcplib.WithString("run_id", mcplib.Description("Run UUID"), mcplib.Required()),
		),
		s.handleGetRun,
	)
}

func (s *Server) handleRunsRecent(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	runs, total, err := s.store.ListRuns(ctx, 1, 10)
	if err != nil {
		return nil, fmt.Errorf("mcp: recent runs: %w", err)
	}

	data, err := json.MarshalIndent(map[string]any{
		"runs":  runs,
		"total": total,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal runs: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "glassbox://runs/recent",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleAsk(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	question := request.GetString("question", "")
	if question == "" {
		return errorResult("question is required"), nil
	}

	req := model.AskRequest{Question: question}
	if topk := request.GetInt("topk", 0); topk > 0 {
		req.TopK = &topk
	}
	if threshold := request.GetFloat("threshold", -1); threshold >= 0 {
		req.Threshold = &threshold
	}

	// MCP has no incremental channel here; collect events and return
	// the final state in one shot.
	col := &stream.Collector{}
	rec := s.pipeline.Run(ctx, req, col)

	answer := ""
	if rec.Answer != nil {
		answer = *rec.Answer
	}

	resultData, _ := json.MarshalIndent(map[string]any{
		"run_id":        rec.ID,
		"answer":        answer,
		"sources":       rec.Sources,
		"matched_count": rec.MatchedCount,
		"steps":         rec.Steps,
		"duration_ms":   rec.DurationMs,
	}, "", "  ")

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func (s *Server) handleGetRun(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := model.ParseRunID(request.GetString("run_id", ""))
	if err != nil {
		return errorResult("run_id must be a valid UUID"), nil
	}

	rec, err := s.store.GetRun(ctx, id)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to get run: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(rec, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
