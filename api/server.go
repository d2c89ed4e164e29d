package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/wricardo/mcp-training/wsecho/logging"
	"github.com/wricardo/mcp-training/wsecho/session"
)

// maxBodyBytes bounds the bodies read by the echo endpoints.
const maxBodyBytes = 1 << 20

// StatsSource reports session counters.
type StatsSource interface {
	Snapshot() session.StatsSnapshot
}

// Options configures a Server.
type Options struct {
	// WebSocketPath is where WebSocket is mounted. Defaults to /ws.
	WebSocketPath string
	WebSocket     http.Handler

	// MCP, when set, is mounted at POST /mcp.
	MCP http.Handler

	Stats  StatsSource
	Logger *zerolog.Logger

	// Now is used by /api/time. Defaults to time.Now.
	Now func() time.Time
}

// Server represents the HTTP server's router.
type Server struct {
	opts   Options
	router *mux.Router
	log    zerolog.Logger
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.WebSocketPath == "" {
		opts.WebSocketPath = "/ws"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	s := &Server{
		opts:   opts,
		router: mux.NewRouter(),
		log:    log,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all routes. Only /api/* goes through the request
// logger.
func (s *Server) setupRoutes() {
	// A method mismatch on /api/* answers 405.
	logged := logging.RequestLogger(s.log)
	api := func(path string, h http.HandlerFunc, method string) {
		s.router.Handle("/api"+path, logged(h)).Methods(method)
	}

	api("/ping", s.handlePing, "GET")
	api("/time", s.handleTime, "GET")
	api("/echo-json", s.handleEchoJSON, "POST")
	api("/stats", s.handleStats, "GET")

	s.router.HandleFunc("/", s.handleRoot).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/echo", s.handleEcho).Methods("POST")

	if s.opts.WebSocket != nil {
		s.router.Handle(s.opts.WebSocketPath, s.opts.WebSocket).Methods("GET")
	}
	if s.opts.MCP != nil {
		s.router.Handle("/mcp", s.opts.MCP).Methods("POST")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("wsecho server is running.\nTry:\n")
	for _, route := range []string{
		"GET /health",
		"GET /api/ping",
		"GET /api/time",
		"GET /api/stats",
		"POST /api/echo-json",
		"POST /echo",
		"WS " + s.opts.WebSocketPath,
	} {
		fmt.Fprintf(&b, "- %s\n", route)
	}
	if s.opts.MCP != nil {
		b.WriteString("- POST /mcp\n")
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, b.String())
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "pong",
	})
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int64{
		"unix": s.opts.Now().Unix(),
	})
}

func (s *Server) handleEchoJSON(w http.ResponseWriter, r *http.Request) {
	var payload interface{}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if dec.More() {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	respondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(body)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.opts.Stats == nil {
		respondError(w, http.StatusServiceUnavailable, "Session stats are not enabled")
		return
	}
	respondJSON(w, http.StatusOK, s.opts.Stats.Snapshot())
}
