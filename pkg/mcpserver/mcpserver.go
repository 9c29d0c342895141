// Package mcpserver exposes the controller's operations as MCP tools, so a
// running daemon can be driven by an MCP client instead of only the cobra
// CLI, grounded on the teacher's pkg/mcp (same mcp.NewTool/s.AddTool/
// server.ServeStdio idiom, rewired from vault note tools to miner control
// tools).
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/atomicobject/fsminer/pkg/miner"
	"github.com/atomicobject/fsminer/pkg/miner/engine"
	"github.com/atomicobject/fsminer/pkg/uri"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// StatusResponse is the JSON payload returned by miner_status.
type StatusResponse struct {
	Phase    string      `json:"phase"`
	Crawl    miner.Stats `json:"crawl"`
	Lifetime miner.Stats `json:"lifetime"`
}

// RegisterAll registers every miner control tool on s.
func RegisterAll(s *server.MCPServer, ctl *engine.Controller) {
	s.AddTool(mcp.NewTool("miner_status",
		mcp.WithDescription("Report the controller's current phase and crawl/lifetime statistics."),
	), StatusTool(ctl))

	s.AddTool(mcp.NewTool("miner_add_root",
		mcp.WithDescription("Add a filesystem root for the miner to crawl and monitor."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path to the root directory")),
		mcp.WithBoolean("recurse", mcp.Description("Recurse into subdirectories (default true)")),
		mcp.WithBoolean("monitor", mcp.Description("Install a live filesystem watch on this root (default true)")),
	), AddRootTool(ctl))

	s.AddTool(mcp.NewTool("miner_remove_root",
		mcp.WithDescription("Remove a previously added root: purges queued work and cancels in-flight extraction under it."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path to the root directory")),
	), RemoveRootTool(ctl))

	s.AddTool(mcp.NewTool("miner_pause",
		mcp.WithDescription("Pause crawling and dispatch."),
	), PauseTool(ctl))

	s.AddTool(mcp.NewTool("miner_resume",
		mcp.WithDescription("Resume a paused controller."),
	), ResumeTool(ctl))

	s.AddTool(mcp.NewTool("miner_stop",
		mcp.WithDescription("Cancel in-flight extractions and clear queued work under every configured root, and stop the crawler."),
	), StopTool(ctl))
}

// StatusTool reports phase and stats as JSON.
func StatusTool(ctl *engine.Controller) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		crawl, lifetime := ctl.Stats()
		resp := StatusResponse{Phase: ctl.Phase().String(), Crawl: crawl, Lifetime: lifetime}
		encoded, err := json.Marshal(resp)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("error marshaling status: %s", err)), nil
		}
		return mcp.NewToolResultText(string(encoded)), nil
	}
}

// AddRootTool adds a crawl/monitor root to the controller.
func AddRootTool(ctl *engine.Controller) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		path, _ := args["path"].(string)
		if path == "" {
			return mcp.NewToolResultError("path parameter is required"), nil
		}
		recurse := true
		if v, ok := args["recurse"].(bool); ok {
			recurse = v
		}
		monitor := true
		if v, ok := args["monitor"].(bool); ok {
			monitor = v
		}
		ctl.AddRoot(miner.Root{URI: uri.New(path), Recurse: recurse, Flags: miner.RootFlags{Monitor: monitor}})
		return mcp.NewToolResultText(fmt.Sprintf("root added: %s", path)), nil
	}
}

// RemoveRootTool removes a previously added root.
func RemoveRootTool(ctl *engine.Controller) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		path, _ := args["path"].(string)
		if path == "" {
			return mcp.NewToolResultError("path parameter is required"), nil
		}
		ctl.RemoveRoot(uri.New(path))
		return mcp.NewToolResultText(fmt.Sprintf("root removed: %s", path)), nil
	}
}

// PauseTool pauses the controller.
func PauseTool(ctl *engine.Controller) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctl.Pause()
		return mcp.NewToolResultText("paused"), nil
	}
}

// ResumeTool resumes a paused controller.
func ResumeTool(ctl *engine.Controller) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctl.Resume()
		return mcp.NewToolResultText("resumed"), nil
	}
}

// StopTool stops the controller.
func StopTool(ctl *engine.Controller) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctl.Stop()
		return mcp.NewToolResultText("stopped"), nil
	}
}

// Serve runs the MCP server over stdio, blocking until the client
// disconnects or the process is signaled, matching the teacher's
// server.ServeStdio(s) call in cmd/mcp.go.
func Serve(ctl *engine.Controller) error {
	s := server.NewMCPServer("fsminer", "v0.1.0", server.WithToolCapabilities(false))
	RegisterAll(s, ctl)
	return server.ServeStdio(s)
}
