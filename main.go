// Command wsecho starts the WebSocket echo server.
//
// It supports two modes:
//  1. "serve" (default) - runs the HTTP server exposing the JSON API, the
//     WebSocket echo endpoint and an /mcp HTTP endpoint
//  2. "stdio-mcp" - runs an MCP stdio server and spins up an internal HTTP
//     server if none is reachable
//
// Settings come from a TOML file, a .env file, WSECHO_* environment
// variables and flags, in that order. Optional ngrok tunneling gives easy
// external access during development.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/mcp-training/wsecho/api"
	"github.com/wricardo/mcp-training/wsecho/config"
	"github.com/wricardo/mcp-training/wsecho/logging"
	"github.com/wricardo/mcp-training/wsecho/session"
	"github.com/wricardo/mcp-training/wsecho/transport/gobwas"
	"github.com/wricardo/mcp-training/wsecho/transport/mcp"
	"github.com/wricardo/mcp-training/wsecho/transport/websocket"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "wsecho"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// newCommand builds the CLI. Flags are declared on the root command and
// inherited by every subcommand.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    AppName,
		Usage:   "WebSocket echo server",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "TOML config file (or " + config.EnvConfigPath + ")"},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: ".env file to load if present"},
			&cli.StringFlag{Name: "host", Usage: "HTTP server host"},
			&cli.IntFlag{Name: "port", Usage: "HTTP server port"},
			&cli.StringFlag{Name: "ws-path", Usage: "WebSocket endpoint path"},
			&cli.StringFlag{Name: "transport", Usage: "WebSocket implementation: gorilla or gobwas"},
			&cli.StringFlag{Name: "write-mode", Usage: "write arbiter: lock or queue"},
			&cli.StringFlag{Name: "welcome", Usage: "welcome notification text"},
			&cli.StringSliceFlag{Name: "allowed-origin", Usage: "allowed browser origin (repeatable)"},
			&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn, error or off"},
			&cli.StringFlag{Name: "log-format", Usage: "console or json"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
			&cli.BoolFlag{Name: "ngrok", Usage: "enable ngrok tunnel"},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token (or use NGROK_AUTHTOKEN env var)"},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain (optional)"},
		},
		Action: runServe,
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server", "http"},
				Usage:   "run the HTTP server with API, WebSocket and MCP endpoint (default)",
				Action:  runServe,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "run an MCP stdio server backed by a running or internal HTTP server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "api-url", Usage: "server to proxy to (default: the configured address)"},
				},
				Action: runStdioMCP,
			},
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintf(cmd.Root().Writer, "%s v%s\n", AppName, Version)
					return nil
				},
			},
		},
	}
}

// loadConfig layers defaults, the config file, .env, the environment and
// flags, then validates the result.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	if err := config.LoadDotEnv(cmd.String("env-file")); err != nil {
		return config.Config{}, err
	}

	path := cmd.String("config")
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return config.Config{}, err
	}
	applyFlags(cmd, &cfg)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func applyFlags(cmd *cli.Command, cfg *config.Config) {
	if cmd.IsSet("host") {
		cfg.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Server.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("ws-path") {
		cfg.WebSocket.Path = cmd.String("ws-path")
	}
	if cmd.IsSet("transport") {
		cfg.WebSocket.Transport = cmd.String("transport")
	}
	if cmd.IsSet("write-mode") {
		cfg.WebSocket.WriteMode = cmd.String("write-mode")
	}
	if cmd.IsSet("welcome") {
		cfg.WebSocket.WelcomeMessage = cmd.String("welcome")
	}
	if cmd.IsSet("allowed-origin") {
		cfg.WebSocket.AllowedOrigins = cmd.StringSlice("allowed-origin")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.Bool("debug") {
		cfg.Log.Level = "debug"
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}
	if cmd.Bool("ngrok") {
		cfg.Ngrok.Enabled = true
	}
	if cmd.IsSet("ngrok-auth") {
		cfg.Ngrok.AuthToken = cmd.String("ngrok-auth")
	}
	if cmd.IsSet("ngrok-domain") {
		cfg.Ngrok.Domain = cmd.String("ngrok-domain")
	}
}

func newLogger(cfg config.Config) (zerolog.Logger, error) {
	return logging.New(logging.Config{
		App:     AppName,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		NoColor: cfg.Log.NoColor,
	})
}

// newWebSocketHandler returns the upgrade handler of the configured
// transport.
func newWebSocketHandler(cfg config.WebSocketConfig, logger zerolog.Logger, observer session.Observer) (http.Handler, error) {
	sessionOpts := session.Options{
		WelcomeMessage: cfg.WelcomeMessage,
		WriteMode:      session.WriteMode(cfg.WriteMode),
		QueueSize:      cfg.QueueSize,
		Logger:         &logger,
		Observer:       observer,
	}

	switch cfg.Transport {
	case websocket.Name:
		return websocket.NewHandler(websocket.Options{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			MaxMessageSize:  cfg.MaxMessageSize,
			WriteWait:       cfg.WriteWait.Duration,
			AllowedOrigins:  cfg.AllowedOrigins,
			Session:         sessionOpts,
		}), nil
	case gobwas.Name:
		return gobwas.NewHandler(gobwas.Options{
			MaxMessageSize: cfg.MaxMessageSize,
			WriteWait:      cfg.WriteWait.Duration,
			AllowedOrigins: cfg.AllowedOrigins,
			Session:        sessionOpts,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", config.ErrInvalidConfig, cfg.Transport)
	}
}

// newHandler wires the HTTP surface. mcpHandler may be nil.
func newHandler(cfg config.Config, logger zerolog.Logger, stats *session.Stats, mcpHandler http.Handler) (http.Handler, error) {
	ws, err := newWebSocketHandler(cfg.WebSocket, logger, stats)
	if err != nil {
		return nil, err
	}
	return api.NewServer(api.Options{
		WebSocketPath: cfg.WebSocket.Path,
		WebSocket:     ws,
		MCP:           mcpHandler,
		Stats:         stats,
		Logger:        &logger,
	}), nil
}

// runServe starts the HTTP server, plus an ngrok tunnel when enabled, and
// shuts both down on SIGINT or SIGTERM.
func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr(), err)
	}

	logger.Info().Str("version", Version).Str("transport", cfg.WebSocket.Transport).Str("write_mode", cfg.WebSocket.WriteMode).Msg("Starting server")
	return serve(ctx, cfg, logger, ln)
}

// serve runs until ctx is done or a listener fails. ln is closed on return.
func serve(ctx context.Context, cfg config.Config, logger zerolog.Logger, ln net.Listener) error {
	addr := ln.Addr().String()
	baseURL := "http://" + addr

	stats := session.NewStats()
	mcpClient := mcp.NewClient(baseURL, mcp.WithWebSocketPath(cfg.WebSocket.Path))
	handler, err := newHandler(cfg, logger, stats, mcpClient.HTTPHandler())
	if err != nil {
		ln.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
		// Sessions end when the server stops.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		logger.Info().
			Str("addr", addr).
			Str("api", baseURL+"/api").
			Str("websocket", "ws://"+addr+cfg.WebSocket.Path).
			Str("mcp", baseURL+"/mcp").
			Msg("HTTP server listening")

		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	if cfg.Ngrok.Enabled {
		g.Go(func() error {
			return runNgrok(gctx, cfg, logger, handler)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	snap := stats.Snapshot()
	logger.Info().Int64("sessions", snap.Total).Int64("active", snap.Active).Msg("Server stopped")
	return err
}

// runNgrok serves handler through an ngrok tunnel until ctx is done. A
// tunnel that cannot be established is logged and does not stop the server.
func runNgrok(ctx context.Context, cfg config.Config, logger zerolog.Logger, handler http.Handler) error {
	logger.Info().Msg("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if cfg.Ngrok.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Ngrok.Domain))
		logger.Info().Str("domain", cfg.Ngrok.Domain).Msg("Using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.Ngrok.AuthToken))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start ngrok tunnel")
		return nil
	}
	stop := context.AfterFunc(ctx, func() {
		if err := tun.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close ngrok tunnel")
		}
	})
	defer stop()

	ngrokURL := tun.URL()
	logger.Info().
		Str("url", ngrokURL).
		Str("websocket", wsURL(ngrokURL)+cfg.WebSocket.Path).
		Str("mcp", ngrokURL+"/mcp").
		Msg("Ngrok tunnel established")

	tunnelServer := &http.Server{
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	if err := tunnelServer.Serve(tun); err != nil && ctx.Err() == nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("Ngrok server error")
	}
	logger.Info().Msg("Ngrok tunnel closed")
	return nil
}

// wsURL swaps an http(s) URL scheme for ws(s).
func wsURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}

// runStdioMCP runs an MCP stdio server. It reuses a server already
// listening at --api-url (default: the configured address); if none
// answers, it starts an internal HTTP server on a random loopback port and
// targets that.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Logs go to stderr; stdout carries the protocol.
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	externalURL := cmd.String("api-url")
	if externalURL == "" {
		externalURL = "http://" + cfg.Server.Addr()
	}

	baseURL, cleanup, err := resolveAPI(ctx, cfg, logger, externalURL)
	if err != nil {
		return err
	}
	defer cleanup()

	mcpClient := mcp.NewClient(baseURL, mcp.WithWebSocketPath(cfg.WebSocket.Path))
	logger.Info().Str("api", baseURL).Msg("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// resolveAPI returns externalURL when it answers /health, otherwise the URL
// of a newly started internal server. cleanup stops the internal server.
func resolveAPI(ctx context.Context, cfg config.Config, logger zerolog.Logger, externalURL string) (string, func(), error) {
	logger.Info().Str("url", externalURL).Msg("Checking for external server")

	if apiReachable(ctx, externalURL) {
		logger.Info().Str("url", externalURL).Msg("External server found, using it for MCP")
		return externalURL, func() {}, nil
	}

	logger.Info().Msg("No external server found, starting internal HTTP server")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("failed to get available port: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	internal := cfg
	internal.Ngrok.Enabled = false

	done := make(chan error, 1)
	go func() { done <- serve(ctx, internal, logger, ln) }()

	cleanup := func() {
		cancel()
		if err := <-done; err != nil {
			logger.Warn().Err(err).Msg("Internal HTTP server error")
		}
	}
	return "http://" + ln.Addr().String(), cleanup, nil
}

func apiReachable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}
