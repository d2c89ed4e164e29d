// Package api provides the HTTP surface of the echo server.
//
// Endpoints:
//
//   - GET /            - plain-text banner listing the routes
//   - GET /health      - {"status":"ok"}
//   - GET /api/ping    - {"message":"pong"}
//   - GET /api/time    - {"unix":<seconds>}
//   - GET /api/stats   - session counters
//   - POST /api/echo-json - echoes a JSON body; 400 on invalid JSON
//   - POST /echo       - echoes the raw body as text
//   - GET /ws          - WebSocket echo session (path configurable)
//   - POST /mcp        - MCP JSON-RPC endpoint, when enabled
//
// Requests under /api are logged by logging.RequestLogger; the other
// routes are not.
package api
