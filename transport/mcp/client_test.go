package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/webpad/api"
	"github.com/wricardo/webpad/pad/device"
	"github.com/wricardo/webpad/pad/session"
)

func toolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

// newAPIServer runs the real REST API over a memory-backed registry.
func newAPIServer(t *testing.T) (*httptest.Server, *session.Registry) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	registry := session.NewRegistry(device.NewMemoryBinding(), logger)
	srv := httptest.NewServer(api.NewServer(registry, nil, api.Options{Driver: "memory"}, logger))
	t.Cleanup(srv.Close)
	return srv, registry
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/")

	assert.Equal(t, "http://localhost:8080", client.baseURL)
	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.GetMCPServer())
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "healthy"})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var response map[string]interface{}
	require.NoError(t, client.apiCall(context.Background(), "GET", "/api/health", nil, &response))
	assert.Equal(t, "healthy", response["status"])
}

func TestClient_apiCall_Error(t *testing.T) {
	client := NewClient("http://invalid-url-that-does-not-exist:9999")

	err := client.apiCall(context.Background(), "GET", "/api/health", nil, nil)
	assert.Error(t, err)
}

func TestClient_apiCall_HTTPError(t *testing.T) {
	t.Run("plain body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Internal Server Error"))
		}))
		defer server.Close()

		err := NewClient(server.URL).apiCall(context.Background(), "GET", "/api/health", nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API error")
	})

	t.Run("json error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "session not found"})
		}))
		defer server.Close()

		err := NewClient(server.URL).apiCall(context.Background(), "GET", "/api/sessions/3", nil, nil)
		require.Error(t, err)
		assert.Equal(t, "session not found", err.Error())
	})
}

func TestClient_ListSessions(t *testing.T) {
	srv, registry := newAPIServer(t)
	client := NewClient(srv.URL)
	ctx := context.Background()

	result, err := client.handleListSessions(ctx, toolRequest("list_sessions", nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No controllers connected")

	_, err = registry.Create("192.0.2.1:7000", nil)
	require.NoError(t, err)

	result, err = client.handleListSessions(ctx, toolRequest("list_sessions", nil))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Connected Controllers (1)")
	assert.Contains(t, text, "Player 1 (192.0.2.1:7000")
}

func TestClient_GetSession(t *testing.T) {
	srv, registry := newAPIServer(t)
	client := NewClient(srv.URL)
	ctx := context.Background()

	sess, err := registry.Create("192.0.2.2:7000", nil)
	require.NoError(t, err)
	require.NoError(t, sess.Receive([]byte(`{"type":"trigger","id":"lt","value":1}`)))

	tests := []struct {
		name    string
		args    map[string]interface{}
		isError bool
		want    string
	}{
		{"number", map[string]interface{}{"player": float64(1)}, false, "Identity: 192.0.2.2:7000"},
		{"numeric string", map[string]interface{}{"player": "1"}, false, "Commands: 1"},
		{"unknown", map[string]interface{}{"player": 5}, true, "session not found"},
		{"missing", map[string]interface{}{}, true, "player is required"},
		{"invalid", map[string]interface{}{"player": "first"}, true, "invalid player"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := client.handleGetSession(ctx, toolRequest("get_session", tt.args))
			require.NoError(t, err)
			assert.Equal(t, tt.isError, result.IsError)
			assert.Contains(t, resultText(t, result), tt.want)
		})
	}
}

func TestClient_DisconnectSession(t *testing.T) {
	srv, registry := newAPIServer(t)
	client := NewClient(srv.URL)

	var sess *session.Session
	sess, err := registry.Create("192.0.2.3:7000", func() { go sess.Teardown() })
	require.NoError(t, err)

	result, err := client.handleDisconnectSession(context.Background(),
		toolRequest("disconnect_session", map[string]interface{}{"player": 1}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Player 1 disconnected")

	require.Eventually(t, func() bool { return registry.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestClient_Health(t *testing.T) {
	srv, _ := newAPIServer(t)
	client := NewClient(srv.URL)

	result, err := client.handleHealth(context.Background(), toolRequest("server_health", nil))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Status: healthy")
	assert.Contains(t, text, "Driver: memory")
	assert.Contains(t, text, "Sessions: 0")
}

func TestFormatSessionInfo(t *testing.T) {
	connected := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	info := session.Info{Identity: "a:1", Player: 3, ConnectedAt: connected, Commands: 0}

	text := formatSessionInfo(&info)
	assert.Contains(t, text, "Player: 3")
	assert.Contains(t, text, "Connected: 2024-05-01T12:00:00Z")
	assert.Contains(t, text, "Last input: none")
}
