package gobwas

import (
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"
	"github.com/wricardo/mcp-training/wsecho/session"
	"github.com/wricardo/mcp-training/wsecho/transport"
)

// Name identifies this transport in configuration and logs.
const Name = "gobwas"

const defaultMaxMessageSize = 64 * 1024

// Options configures a Handler.
type Options struct {
	MaxMessageSize int64
	WriteWait      time.Duration

	// AllowedOrigins restricts browser origins; empty allows all.
	AllowedOrigins []string

	// Session is the template for every session started by the handler.
	Session session.Options
}

// Handler upgrades HTTP requests and runs one session per connection.
type Handler struct {
	opts Options
	log  zerolog.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(opts Options) *Handler {
	if opts.MaxMessageSize == 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}

	log := zerolog.Nop()
	if opts.Session.Logger != nil {
		log = *opts.Session.Logger
	}
	return &Handler{
		opts: opts,
		log:  log.With().Str("transport", Name).Logger(),
	}
}

// ServeHTTP handles WebSocket requests from clients.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.With().Str("remote_addr", r.RemoteAddr).Logger()

	if !transport.OriginAllowed(r, h.opts.AllowedOrigins) {
		log.Warn().Str("origin", r.Header.Get("Origin")).Msg("WebSocket origin rejected")
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	nc, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	// Deadlines set by the HTTP server no longer apply after the hijack.
	nc.SetDeadline(time.Time{})

	conn := NewConn(nc, rw, h.opts.WriteWait, h.opts.MaxMessageSize)
	defer conn.Close()

	opts := h.opts.Session
	opts.Logger = &log
	if err := session.Serve(r.Context(), conn, opts); err != nil {
		log.Debug().Err(err).Msg("Session ended with error")
	}
}
