package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"
	"github.com/wricardo/webpad/pad/session"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"webpad",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`webpad - MCP Interface

Administrative view of a virtual gamepad server. Each browser connection
drives one virtual controller and is identified by its player number.

AVAILABLE TOOLS:
- list_sessions: List connected controllers
- get_session: Details for one player
- disconnect_session: Close a player's connection and release their controller
- server_health: Server status and driver`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all connected controller sessions ordered by player number",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of one controller session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"player": map[string]interface{}{
					"type":        "integer",
					"description": "Player number to retrieve",
				},
			},
			Required: []string{"player"},
		},
	}, c.handleGetSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "disconnect_session",
		Description: "Close a player's connection. Their controller is reset and released.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"player": map[string]interface{}{
					"type":        "integer",
					"description": "Player number to disconnect",
				},
			},
			Required: []string{"player"},
		},
	}, c.handleDisconnectSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "server_health",
		Description: "Report server status, device driver and session count",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleHealth)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func playerArg(request mcp.CallToolRequest) (int, error) {
	raw, ok := request.GetArguments()["player"]
	if !ok {
		return 0, fmt.Errorf("player is required")
	}
	player, err := cast.ToIntE(raw)
	if err != nil || player < 1 {
		return 0, fmt.Errorf("invalid player %v", raw)
	}
	return player, nil
}

// Tool handlers

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int            `json:"count"`
		Sessions []session.Info `json:"sessions"`
	}

	err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if response.Count == 0 {
		return mcp.NewToolResultText("No controllers connected.\n"), nil
	}

	result := fmt.Sprintf("Connected Controllers (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		result += fmt.Sprintf("- Player %d (%s, connected %s, %d commands)\n",
			s.Player, s.Identity, s.ConnectedAt.Format("15:04:05"), s.Commands)
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	player, err := playerArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var info session.Info
	err = c.apiCall(ctx, "GET", fmt.Sprintf("/api/sessions/%d", player), nil, &info)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&info)), nil
}

func (c *Client) handleDisconnectSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	player, err := playerArg(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var response map[string]string
	err = c.apiCall(ctx, "DELETE", fmt.Sprintf("/api/sessions/%d", player), nil, &response)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(response["message"] + "\n"), nil
}

func (c *Client) handleHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var health struct {
		Status     string `json:"status"`
		Driver     string `json:"driver"`
		Sessions   int    `json:"sessions"`
		LastPlayer int    `json:"last_player"`
		Uptime     string `json:"uptime"`
	}

	err := c.apiCall(ctx, "GET", "/api/health", nil, &health)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Status: %s\n", health.Status)
	fmt.Fprintf(&b, "Driver: %s\n", health.Driver)
	fmt.Fprintf(&b, "Sessions: %d\n", health.Sessions)
	fmt.Fprintf(&b, "Players assigned: %d\n", health.LastPlayer)
	fmt.Fprintf(&b, "Uptime: %s\n", health.Uptime)
	return mcp.NewToolResultText(b.String()), nil
}

func formatSessionInfo(info *session.Info) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Player: %d\n", info.Player)
	fmt.Fprintf(&b, "Identity: %s\n", info.Identity)
	fmt.Fprintf(&b, "Connected: %s\n", info.ConnectedAt.Format(time.RFC3339))
	if info.LastInputAt != nil {
		fmt.Fprintf(&b, "Last input: %s\n", info.LastInputAt.Format(time.RFC3339))
	} else {
		b.WriteString("Last input: none\n")
	}
	fmt.Fprintf(&b, "Commands: %d\n", info.Commands)
	return b.String()
}
