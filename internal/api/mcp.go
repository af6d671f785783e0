package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/relay/internal/dispatch"
	"github.com/kalambet/relay/internal/memory"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Dispatcher *dispatch.Dispatcher
	Memory     *memory.Store
}

// NewMCPServer creates an MCP server exposing the dispatcher and session
// memory as tools, plus a sessions resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"relay",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("relay — prompt dispatcher with session memory over a hosted or local model backend."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Send a prompt to the configured model backend, optionally continuing a remembered session."),
			mcp.WithString("prompt", mcp.Description("The prompt text"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session to continue; history is prepended and the new turn recorded")),
		),
		mcpChat(deps),
	)

	s.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("Search remembered turns by semantic similarity. Available only when vector memory is active."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRecall(deps),
	)

	s.AddTool(
		mcp.NewTool("session_history",
			mcp.WithDescription("Return every recorded turn of a session."),
			mcp.WithString("session_id", mcp.Description("Session to read"), mcp.Required()),
		),
		mcpSessionHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("clear_session",
			mcp.WithDescription("Delete a session's remembered turns."),
			mcp.WithString("session_id", mcp.Description("Session to clear"), mcp.Required()),
		),
		mcpClearSession(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"relay://sessions",
			"Sessions",
			mcp.WithResourceDescription("Known sessions with turn counts"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSessions(deps),
	)

	return s
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcpError("prompt is required"), nil
		}
		sessionID := req.GetString("session_id", "")
		if sessionID != "" && !memory.ValidSessionID(sessionID) {
			return mcpError("invalid session_id"), nil
		}

		reply, err := deps.Dispatcher.Dispatch(ctx, dispatch.Request{
			Prompt:    prompt,
			SessionID: sessionID,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("dispatch failed: %v", err)), nil
		}
		return mcpText(reply.Text), nil
	}
}

func mcpRecall(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		turns := deps.Memory.RetrieveSimilar(ctx, query, limit)
		b, err := json.Marshal(renderTurns(turns))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSessionHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		if !memory.ValidSessionID(sessionID) {
			return mcpError("invalid session_id"), nil
		}

		turns, err := deps.Memory.History(ctx, sessionID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read session: %v", err)), nil
		}

		b, err := json.Marshal(renderTurns(turns))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal turns: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpClearSession(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		if !memory.ValidSessionID(sessionID) {
			return mcpError("invalid session_id"), nil
		}

		if err := deps.Memory.Clear(ctx, sessionID); err != nil {
			return mcpError(fmt.Sprintf("failed to clear session: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Cleared session %s", sessionID)), nil
	}
}

func mcpResourceSessions(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		infos, err := deps.Memory.Sessions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}

		type session struct {
			ID    string `json:"id"`
			Turns int    `json:"turns"`
		}
		sessions := make([]session, 0, len(infos))
		for _, info := range infos {
			sessions = append(sessions, session{ID: info.ID, Turns: info.Turns})
		}

		b, err := json.Marshal(sessions)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sessions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
