package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/mcp-training/wsecho/session"
)

// Client is a thin MCP client that proxies to the HTTP API and the
// WebSocket endpoint
type Client struct {
	baseURL    string
	wsPath     string
	httpClient *http.Client
	dialer     *websocket.Dialer
	mcpServer  *server.MCPServer
}

// Option customizes a Client.
type Option func(*Client)

// WithWebSocketPath sets the path ws_roundtrip dials. Defaults to /ws.
func WithWebSocketPath(path string) Option {
	return func(c *Client) {
		c.wsPath = path
	}
}

// NewClient creates a new MCP client that calls the server at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		wsPath:  "/ws",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"wsecho",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`wsecho - MCP Interface

This is a thin client that proxies every tool call to a running wsecho server.

AVAILABLE TOOLS:
- health: Check that the server is up
- ping: Call GET /api/ping
- server_time: Get the server clock as unix seconds
- echo: Send text to POST /echo and return it
- echo_json: Send a JSON document to POST /api/echo-json and return it
- session_stats: Get WebSocket session counters
- ws_roundtrip: Open a WebSocket session, send one text message and report the welcome and the reply`),
	)

	// Register all tools
	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	empty := mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]interface{}{},
	}

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "health",
		Description: "Check server health",
		InputSchema: empty,
	}, c.handleHealth)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "ping",
		Description: "Ping the API",
		InputSchema: empty,
	}, c.handlePing)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "server_time",
		Description: "Get the server time",
		InputSchema: empty,
	}, c.handleServerTime)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "echo",
		Description: "Echo plain text through POST /echo",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text to echo",
				},
			},
			Required: []string{"text"},
		},
	}, c.handleEcho)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "echo_json",
		Description: "Echo a JSON document through POST /api/echo-json",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"json": map[string]interface{}{
					"type":        "string",
					"description": "JSON document, as a string",
				},
			},
			Required: []string{"json"},
		},
	}, c.handleEchoJSON)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "session_stats",
		Description: "Get WebSocket session counters",
		InputSchema: empty,
	}, c.handleSessionStats)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "ws_roundtrip",
		Description: "Open a WebSocket session, send one text message, then close the session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text message to send",
				},
			},
			Required: []string{"text"},
		},
	}, c.handleWSRoundtrip)
}

// GetMCPServer returns the underlying MCP server
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// HTTPHandler serves single JSON-RPC messages over HTTP POST.
func (c *Client) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := c.mcpServer.HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})
}

// apiCall makes a JSON API call
func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
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

// textCall posts a plain-text body and returns the plain-text response.
func (c *Client) textCall(ctx context.Context, path, text string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, strings.NewReader(text))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("API error: %d", resp.StatusCode)
	}
	return string(data), nil
}

func stringArg(request mcp.CallToolRequest, name string) (string, bool) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	v, ok := args[name].(string)
	return v, ok
}

func (c *Client) handleHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var resp map[string]string
	if err := c.apiCall(ctx, "GET", "/health", nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Status: %s", resp["status"])), nil
}

func (c *Client) handlePing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var resp map[string]string
	if err := c.apiCall(ctx, "GET", "/api/ping", nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(resp["message"]), nil
}

func (c *Client) handleServerTime(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var resp struct {
		Unix int64 `json:"unix"`
	}
	if err := c.apiCall(ctx, "GET", "/api/time", nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Unix: %d\nUTC: %s", resp.Unix, time.Unix(resp.Unix, 0).UTC().Format(time.RFC3339))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleEcho(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, ok := stringArg(request, "text")
	if !ok {
		return mcp.NewToolResultError("text is required"), nil
	}

	echoed, err := c.textCall(ctx, "/echo", text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(echoed), nil
}

func (c *Client) handleEchoJSON(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, ok := stringArg(request, "json")
	if !ok {
		return mcp.NewToolResultError("json is required"), nil
	}
	if !json.Valid([]byte(doc)) {
		return mcp.NewToolResultError("json is not a valid JSON document"), nil
	}

	var echoed json.RawMessage
	if err := c.apiCall(ctx, "POST", "/api/echo-json", json.RawMessage(doc), &echoed); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, echoed, "", "  "); err != nil {
		return mcp.NewToolResultText(string(echoed)), nil
	}
	return mcp.NewToolResultText(pretty.String()), nil
}

func (c *Client) handleSessionStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats session.StatsSnapshot
	if err := c.apiCall(ctx, "GET", "/api/stats", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatStats(stats)), nil
}

func (c *Client) handleWSRoundtrip(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, ok := stringArg(request, "text")
	if !ok {
		return mcp.NewToolResultError("text is required"), nil
	}

	result, err := c.wsRoundtrip(ctx, text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(result.String()), nil
}

// roundtrip is what one WebSocket session looked like from the client.
type roundtrip struct {
	URL     string
	Welcome string
	Reply   string
	Close   string
}

func (r roundtrip) String() string {
	return fmt.Sprintf("URL: %s\nWelcome: %s\nReply: %s\nClose: %s\n", r.URL, r.Welcome, r.Reply, r.Close)
}

// wsURL maps the HTTP base URL onto the WebSocket endpoint.
func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + c.wsPath
	return u.String(), nil
}

func (c *Client) wsRoundtrip(ctx context.Context, text string) (roundtrip, error) {
	target, err := c.wsURL()
	if err != nil {
		return roundtrip{}, err
	}
	result := roundtrip{URL: target}

	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return result, fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.httpClient.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)

	_, welcome, err := conn.ReadMessage()
	if err != nil {
		return result, fmt.Errorf("read welcome: %w", err)
	}
	result.Welcome = string(welcome)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return result, fmt.Errorf("send text: %w", err)
	}
	_, reply, err := conn.ReadMessage()
	if err != nil {
		return result, fmt.Errorf("read reply: %w", err)
	}
	result.Reply = string(reply)

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	if err := conn.WriteControl(websocket.CloseMessage, closeMsg, deadline); err != nil {
		return result, fmt.Errorf("send close: %w", err)
	}
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return result, fmt.Errorf("expected close reply, got %v", err)
	}
	result.Close = fmt.Sprintf("%d %s", ce.Code, ce.Text)
	return result, nil
}

func formatStats(s session.StatsSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Active sessions: %d\n", s.Active)
	fmt.Fprintf(&b, "Total sessions: %d\n", s.Total)
	fmt.Fprintf(&b, "Ended by close: %d\n", s.Closed)
	fmt.Fprintf(&b, "Ended by disconnect: %d\n", s.Exhausted)
	fmt.Fprintf(&b, "Ended by receive error: %d\n", s.ReceiveErrors)
	return b.String()
}
