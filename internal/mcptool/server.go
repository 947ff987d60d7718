// Package mcptool exposes the aggregator's query surface as MCP tools so an
// AI assistant can pull the debug timeline over stdio.
package mcptool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"webtap/internal/symbols"
)

// Version of the tool surface.
const Version = "1.0.0"

// Client queries the local aggregator.
type Client struct {
	base string
	http *http.Client
}

// NewClient points at the aggregator's query address, e.g.
// "http://127.0.0.1:7223".
func NewClient(base string) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("aggregator unreachable: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("aggregator returned %d: %s", resp.StatusCode, body)
	}
	return string(body), nil
}

// NewServer builds the MCP server with the query tools registered. A non-nil
// engine additionally exposes the symbol-indexing subprocess.
func NewServer(client *Client, engine *symbols.Engine) *server.MCPServer {
	s := server.NewMCPServer(
		"webtap",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("get_errors",
		mcp.WithDescription("Fetch the captured browser console errors and exceptions as JSON."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return fetch(ctx, client, "/errors")
	})

	s.AddTool(mcp.NewTool("get_network",
		mcp.WithDescription("Fetch the captured network request/response/failure events as JSON."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return fetch(ctx, client, "/network")
	})

	s.AddTool(mcp.NewTool("get_summary",
		mcp.WithDescription("Fetch a bounded human-readable report of recent errors and network activity."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return fetch(ctx, client, "/summary")
	})

	s.AddTool(mcp.NewTool("clear_events",
		mcp.WithDescription("Clear the captured error and network buffers."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return fetch(ctx, client, "/clear")
	})

	if engine != nil {
		s.AddTool(mcp.NewTool("index_symbols",
			mcp.WithDescription("Run the symbol-indexing engine against a project and return its JSON output."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project root directory to index")),
			mcp.WithString("action", mcp.Description("Engine action to run (default: index)")),
		), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			project := req.GetString("project", "")
			if project == "" {
				return mcp.NewToolResultError("project is required"), nil
			}
			action := req.GetString("action", "index")
			out, err := engine.Run(ctx, project, action)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(string(out)), nil
		})
	}

	return s
}

func fetch(ctx context.Context, client *Client, path string) (*mcp.CallToolResult, error) {
	out, err := client.get(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out), nil
}

// ServeStdio runs the MCP server on stdin/stdout.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
