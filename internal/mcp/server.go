// Package mcp implements the MCP tool surface shared by Core A (work item
// tracking) and Core B (retrieval): a real mark3labs/mcp-go server exposing
// retrieval_query, list_work_items, and tracker_comment, superseding the
// hand-rolled JSON-RPC dispatcher this package used to carry.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/loomwork/loom/pkg/retrieval"
	"github.com/loomwork/loom/pkg/sdk"
	"github.com/loomwork/loom/pkg/tracker"
)

// Server wraps a Retrieval Engine and, optionally, a work item Tracker to
// provide MCP tool access over stdio. A nil tracker simply omits the
// tracker-backed tools, which is how loom-ingest (no tracker) exposes a
// retrieval-only server.
type Server struct {
	engine  *retrieval.Engine
	tracker tracker.Tracker
	server  *server.MCPServer
}

// NewServer builds an MCP server exposing retrieval_query over engine, and
// list_work_items/tracker_comment over trk when trk is non-nil.
func NewServer(engine *retrieval.Engine, trk tracker.Tracker) *Server {
	s := &Server{engine: engine, tracker: trk}

	mcpServer := server.NewMCPServer(
		"loom",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)
	s.server = mcpServer
	return s
}

// NewRetrievalServer builds an MCP server exposing only the retrieval
// tools, for callers with no work item tracker to attach (loom-ingest).
func NewRetrievalServer(engine *retrieval.Engine) *Server {
	return NewServer(engine, nil)
}

// ServeStdio runs the MCP server over stdin/stdout until the client
// disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.server)
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("retrieval_query",
			mcp.WithDescription("Query the ingested document corpus. Modes: simple (near-text over chunks), "+
				"summary (near-text over section summaries), hierarchical (summaries then chunks within their "+
				"sections), auto (routes between simple and hierarchical based on query phrasing)."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
			mcp.WithString("mode", mcp.Description("simple | summary | hierarchical | auto (default: auto)")),
			mcp.WithNumber("limit", mcp.Description("Maximum results (default: 10)")),
			mcp.WithString("author", mcp.Description("Filter by work author")),
			mcp.WithString("work", mcp.Description("Filter by work title")),
			mcp.WithString("language", mcp.Description("Filter by language code")),
		),
		s.handleRetrievalQuery,
	)

	if s.tracker == nil {
		return
	}

	mcpServer.AddTool(
		mcp.NewTool("list_work_items",
			mcp.WithDescription("List all tracked work items and their current status."),
		),
		s.handleListWorkItems,
	)

	mcpServer.AddTool(
		mcp.NewTool("tracker_comment",
			mcp.WithDescription("Append a comment to a tracked work item."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Work item ID")),
			mcp.WithString("body", mcp.Required(), mcp.Description("Comment text")),
			mcp.WithString("author", mcp.Description("Comment author (default: driver)")),
		),
		s.handleTrackerComment,
	)
}

func (s *Server) handleRetrievalQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	mode := request.GetString("mode", "auto")
	limit := request.GetInt("limit", 10)
	filters := retrieval.Filters{
		Author:   request.GetString("author", ""),
		Work:     request.GetString("work", ""),
		Language: request.GetString("language", ""),
	}

	var resp retrieval.Response
	switch mode {
	case "simple":
		resp = s.engine.Simple(ctx, query, limit, filters)
	case "summary":
		resp = s.engine.Summary(ctx, query, limit, filters)
	case "hierarchical":
		resp = s.engine.Hierarchical(ctx, query, limit, 3, 5, filters)
	default:
		resp = s.engine.Auto(ctx, query, limit, filters)
	}

	if !resp.OK {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", resp.Kind, resp.Message)), nil
	}
	data, err := json.Marshal(resp.Results)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleListWorkItems(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items := s.tracker.List()
	data, err := json.Marshal(items)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal work items: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleTrackerComment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("id", "")
	body := request.GetString("body", "")
	if id == "" || body == "" {
		return mcp.NewToolResultError("id and body parameters are required"), nil
	}
	author := request.GetString("author", "driver")

	if err := s.tracker.AddComment(id, body, author); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("add comment: %v", err)), nil
	}
	item, _ := s.tracker.Get(id)
	return mcp.NewToolResultText(fmt.Sprintf("comment added to %s", itemTitle(item))), nil
}

func itemTitle(item *sdk.WorkItem) string {
	if item == nil {
		return "unknown item"
	}
	return item.ID + " (" + item.Title + ")"
}
