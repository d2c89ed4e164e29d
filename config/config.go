package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrInvalidConfig is wrapped by the errors Load and Validate report.
var ErrInvalidConfig = errors.New("invalid configuration")

// Transports and write modes accepted by Validate.
const (
	TransportGorilla = "gorilla"
	TransportGobwas  = "gobwas"

	WriteModeLock  = "lock"
	WriteModeQueue = "queue"
)

// Duration is a time.Duration written as a string ("10s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds every setting of the server.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	WebSocket WebSocketConfig `toml:"websocket"`
	Log       LogConfig       `toml:"log"`
	Ngrok     NgrokConfig     `toml:"ngrok"`
}

// ServerConfig is the [server] section: listener address and HTTP timeouts.
type ServerConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	IdleTimeout     Duration `toml:"idle_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// WebSocketConfig is the [websocket] section.
type WebSocketConfig struct {
	Path            string   `toml:"path"`
	Transport       string   `toml:"transport"`
	WriteMode       string   `toml:"write_mode"`
	QueueSize       int      `toml:"queue_size"`
	ReadBufferSize  int      `toml:"read_buffer_size"`
	WriteBufferSize int      `toml:"write_buffer_size"`
	MaxMessageSize  int64    `toml:"max_message_size"`
	WriteWait       Duration `toml:"write_wait"`
	WelcomeMessage  string   `toml:"welcome_message"`
	AllowedOrigins  []string `toml:"allowed_origins"`
}

// LogConfig is the [log] section.
type LogConfig struct {
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	NoColor bool   `toml:"no_color"`
}

// NgrokConfig is the [ngrok] section. The tunnel needs an auth token.
type NgrokConfig struct {
	Enabled   bool   `toml:"enabled"`
	AuthToken string `toml:"authtoken"`
	Domain    string `toml:"domain"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            7878,
			ReadTimeout:     Duration{15 * time.Second},
			WriteTimeout:    Duration{15 * time.Second},
			IdleTimeout:     Duration{60 * time.Second},
			ShutdownTimeout: Duration{10 * time.Second},
		},
		WebSocket: WebSocketConfig{
			Path:            "/ws",
			Transport:       TransportGorilla,
			WriteMode:       WriteModeLock,
			QueueSize:       16,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			MaxMessageSize:  64 * 1024,
			WriteWait:       Duration{10 * time.Second},
			WelcomeMessage:  "Connected to WebSocket server.",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a TOML file over the defaults. Keys missing from the file keep
// their default value; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalidConfig, path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Errors wrap ErrInvalidConfig.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add("server.port %d out of range", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration < 0 {
		add("server.shutdown_timeout must not be negative")
	}

	ws := c.WebSocket
	if !strings.HasPrefix(ws.Path, "/") {
		add("websocket.path %q must start with /", ws.Path)
	}
	switch ws.Transport {
	case TransportGorilla, TransportGobwas:
	default:
		add("websocket.transport %q is not one of %s, %s", ws.Transport, TransportGorilla, TransportGobwas)
	}
	switch ws.WriteMode {
	case WriteModeLock, WriteModeQueue:
	default:
		add("websocket.write_mode %q is not one of %s, %s", ws.WriteMode, WriteModeLock, WriteModeQueue)
	}
	if ws.QueueSize < 0 {
		add("websocket.queue_size must not be negative")
	}
	if ws.ReadBufferSize < 0 || ws.WriteBufferSize < 0 {
		add("websocket buffer sizes must not be negative")
	}
	if ws.MaxMessageSize < 0 {
		add("websocket.max_message_size must not be negative")
	}
	if ws.WriteWait.Duration < 0 {
		add("websocket.write_wait must not be negative")
	}

	if c.Ngrok.Enabled && c.Ngrok.AuthToken == "" {
		add("ngrok.authtoken is required when ngrok is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
