// Package mcp exposes the echo server to Model Context Protocol clients.
//
// The Client is a thin proxy: every tool calls a running server over HTTP
// or, for ws_roundtrip, opens a real WebSocket session against it.
//
// MCP Tools:
//   - health: GET /health
//   - ping: GET /api/ping
//   - server_time: GET /api/time
//   - echo: POST /echo
//   - echo_json: POST /api/echo-json
//   - session_stats: GET /api/stats
//   - ws_roundtrip: welcome, one text echo and a close handshake over /ws
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: client.HTTPHandler() mounted at POST /mcp
package mcp
