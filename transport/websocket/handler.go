package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/wricardo/mcp-training/wsecho/session"
	"github.com/wricardo/mcp-training/wsecho/transport"
)

// Name identifies this transport in configuration and logs.
const Name = "gorilla"

// Options configures a Handler.
type Options struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64
	WriteWait       time.Duration

	// AllowedOrigins restricts browser origins; empty allows all.
	AllowedOrigins []string

	// Session is the template for every session started by the handler.
	Session session.Options
}

// Handler upgrades HTTP requests and runs one session per connection.
type Handler struct {
	upgrader websocket.Upgrader
	opts     Options
	log      zerolog.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(opts Options) *Handler {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = 1024
	}
	if opts.WriteBufferSize <= 0 {
		opts.WriteBufferSize = 1024
	}
	if opts.MaxMessageSize == 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}

	log := zerolog.Nop()
	if opts.Session.Logger != nil {
		log = *opts.Session.Logger
	}

	h := &Handler{
		opts: opts,
		log:  log.With().Str("transport", Name).Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  opts.ReadBufferSize,
		WriteBufferSize: opts.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return transport.OriginAllowed(r, opts.AllowedOrigins)
		},
	}
	return h
}

// ServeHTTP handles WebSocket requests from clients.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.With().Str("remote_addr", r.RemoteAddr).Logger()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	conn := NewConn(ws, h.opts.WriteWait, h.opts.MaxMessageSize)
	defer conn.Close()

	opts := h.opts.Session
	opts.Logger = &log
	if err := session.Serve(r.Context(), conn, opts); err != nil {
		log.Debug().Err(err).Msg("Session ended with error")
	}
}
