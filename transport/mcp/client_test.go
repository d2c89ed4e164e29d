package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/wricardo/mcp-training/wsecho/api"
	"github.com/wricardo/mcp-training/wsecho/session"
	"github.com/wricardo/mcp-training/wsecho/transport/websocket"
)

// newEchoServer runs the real HTTP surface with a gorilla WebSocket handler.
func newEchoServer(t *testing.T) (*httptest.Server, *session.Stats) {
	t.Helper()

	stats := session.NewStats()
	ws := websocket.NewHandler(websocket.Options{Session: session.Options{Observer: stats}})
	server := httptest.NewServer(api.NewServer(api.Options{WebSocket: ws, Stats: stats}))
	t.Cleanup(server.Close)
	return server, stats
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	if result == nil {
		t.Fatal("Expected result, got nil")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text
}

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:7878"
	client := NewClient(baseURL + "/")

	if client.baseURL != baseURL {
		t.Errorf("Expected baseURL %s, got %s", baseURL, client.baseURL)
	}
	if client.wsPath != "/ws" {
		t.Errorf("Expected default ws path /ws, got %s", client.wsPath)
	}
	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if client.mcpServer == nil {
		t.Error("Expected MCP server to be initialized")
	}

	client = NewClient(baseURL, WithWebSocketPath("/socket"))
	if client.wsPath != "/socket" {
		t.Errorf("Expected ws path /socket, got %s", client.wsPath)
	}
}

func TestClient_wsURL(t *testing.T) {
	tests := []struct {
		baseURL string
		want    string
		wantErr bool
	}{
		{"http://127.0.0.1:7878", "ws://127.0.0.1:7878/ws", false},
		{"https://example.ngrok.app/", "wss://example.ngrok.app/ws", false},
		{"ftp://example.com", "", true},
	}

	for _, tt := range tests {
		got, err := NewClient(tt.baseURL).wsURL()
		if (err != nil) != tt.wantErr {
			t.Errorf("wsURL(%s) error = %v, wantErr %v", tt.baseURL, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("wsURL(%s): expected %s, got %s", tt.baseURL, tt.want, got)
		}
	}
}

func TestClient_apiCall_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.apiCall(context.Background(), "GET", "/api", nil, nil)
	if err == nil {
		t.Fatal("Expected error for HTTP 500 response")
	}
	if !strings.Contains(err.Error(), "API error") {
		t.Errorf("Expected 'API error' in error message, got: %v", err)
	}
}

func TestClient_apiCall_Error(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")

	if err := client.apiCall(context.Background(), "GET", "/api", nil, nil); err == nil {
		t.Error("Expected error for unreachable server")
	}
}

func TestClient_Tools(t *testing.T) {
	server, _ := newEchoServer(t)
	client := NewClient(server.URL)
	ctx := context.Background()

	tests := []struct {
		name     string
		args     map[string]interface{}
		handler  func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		expected []string
		isError  bool
	}{
		{"health", nil, client.handleHealth, []string{"Status: ok"}, false},
		{"ping", nil, client.handlePing, []string{"pong"}, false},
		{"server_time", nil, client.handleServerTime, []string{"Unix: ", "UTC: "}, false},
		{"echo", map[string]interface{}{"text": "hello there"}, client.handleEcho, []string{"hello there"}, false},
		{"echo missing text", map[string]interface{}{}, client.handleEcho, []string{"text is required"}, true},
		{"echo_json", map[string]interface{}{"json": `{"k":[1,2]}`}, client.handleEchoJSON, []string{`"k": [`}, false},
		{"echo_json invalid", map[string]interface{}{"json": `{"k":`}, client.handleEchoJSON, []string{"not a valid JSON"}, true},
		{"session_stats", nil, client.handleSessionStats, []string{"Active sessions: 0", "Total sessions: 0"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler(ctx, callRequest(tt.name, tt.args))
			if err != nil {
				t.Fatalf("%s failed: %v", tt.name, err)
			}
			if result.IsError != tt.isError {
				t.Errorf("Expected IsError %v, got %v", tt.isError, result.IsError)
			}
			text := resultText(t, result)
			for _, want := range tt.expected {
				if !strings.Contains(text, want) {
					t.Errorf("Expected '%s' in result, got: %s", want, text)
				}
			}
		})
	}
}

func TestClient_WSRoundtrip(t *testing.T) {
	server, stats := newEchoServer(t)
	client := NewClient(server.URL)

	result, err := client.handleWSRoundtrip(context.Background(), callRequest("ws_roundtrip", map[string]interface{}{"text": "over the wire"}))
	if err != nil {
		t.Fatalf("ws_roundtrip failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("Unexpected tool error: %s", resultText(t, result))
	}

	text := resultText(t, result)
	expected := []string{
		`Welcome: {"server_method":"system","data":{"message":"Connected to WebSocket server."}}`,
		"Reply: Echo: over the wire",
		"Close: 1000 done",
	}
	for _, want := range expected {
		if !strings.Contains(text, want) {
			t.Errorf("Expected '%s' in result, got: %s", want, text)
		}
	}

	if stats.Snapshot().Total != 1 {
		t.Errorf("Expected one session, got %d", stats.Snapshot().Total)
	}
}

func TestClient_HTTPHandler(t *testing.T) {
	server, _ := newEchoServer(t)
	client := NewClient(server.URL)
	handler := client.HTTPHandler()

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ping","arguments":{}}}`
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/mcp", strings.NewReader(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !strings.Contains(w.Body.String(), "pong") {
		t.Errorf("Expected pong in response, got %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/mcp", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestFormatStats(t *testing.T) {
	result := formatStats(session.StatsSnapshot{Active: 1, Total: 4, Closed: 2, Exhausted: 1})

	for _, field := range []string{"Active sessions: 1", "Total sessions: 4", "Ended by close: 2", "Ended by disconnect: 1", "Ended by receive error: 0"} {
		if !strings.Contains(result, field) {
			t.Errorf("Expected field '%s' in formatted output, got: %s", field, result)
		}
	}
}
