package syncmcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerPathEnv overrides the sync-mcp-server binary the client starts.
const ServerPathEnv = "SYNC_MCP_SERVER_PATH"

// Client calls the sync tools of a sync-mcp-server.
type Client struct {
	client  *mcp.Client
	session *mcp.ClientSession
}

func NewClient() *Client {
	return &Client{client: mcp.NewClient(&mcp.Implementation{
		Name:    "omochi-sync-client",
		Version: "1.0.0",
	}, nil)}
}

// Connect starts the server binary as a subprocess and talks to it over stdio.
func (c *Client) Connect(ctx context.Context) error {
	serverPath := "./sync-mcp-server"
	if p := os.Getenv(ServerPathEnv); p != "" {
		serverPath = p
	}
	cmd := exec.CommandContext(ctx, serverPath)
	cmd.Env = os.Environ()
	return c.ConnectTransport(ctx, mcp.NewCommandTransport(cmd))
}

func (c *Client) ConnectTransport(ctx context.Context, t mcp.Transport) error {
	session, err := c.client.Connect(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to connect to sync MCP server: %w", err)
	}
	c.session = session
	return nil
}

func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

// Call invokes tool and returns its text output. A tool-level failure is
// returned as an error carrying that text.
func (c *Client) Call(ctx context.Context, tool string, args map[string]any) (string, error) {
	if c.session == nil {
		return "", fmt.Errorf("MCP session not connected")
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("MCP error: %w", err)
	}
	var b strings.Builder
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	if result.IsError {
		return "", fmt.Errorf("%s: %s", tool, b.String())
	}
	return b.String(), nil
}
