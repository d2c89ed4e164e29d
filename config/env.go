package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvConfigPath names the config file when no flag is given.
const EnvConfigPath = "WSECHO_CONFIG"

// LoadDotEnv loads variables from the given .env files (default ".env")
// into the process environment. Missing files are ignored and variables
// already set are not overridden.
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// ApplyEnv overrides c from the process environment.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str("WSECHO_HOST", &c.Server.Host)
	e.int("WSECHO_PORT", &c.Server.Port)
	e.duration("WSECHO_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)

	e.str("WSECHO_WS_PATH", &c.WebSocket.Path)
	e.str("WSECHO_TRANSPORT", &c.WebSocket.Transport)
	e.str("WSECHO_WRITE_MODE", &c.WebSocket.WriteMode)
	e.int("WSECHO_QUEUE_SIZE", &c.WebSocket.QueueSize)
	e.int64("WSECHO_MAX_MESSAGE_SIZE", &c.WebSocket.MaxMessageSize)
	e.duration("WSECHO_WRITE_WAIT", &c.WebSocket.WriteWait)
	e.str("WSECHO_WELCOME_MESSAGE", &c.WebSocket.WelcomeMessage)
	if v, ok := e.get("WSECHO_ALLOWED_ORIGINS"); ok {
		c.WebSocket.AllowedOrigins = splitList(v)
	}

	e.str("WSECHO_LOG_LEVEL", &c.Log.Level)
	e.str("WSECHO_LOG_FORMAT", &c.Log.Format)
	e.bool("WSECHO_LOG_NOCOLOR", &c.Log.NoColor)

	e.bool("NGROK_ENABLED", &c.Ngrok.Enabled)
	e.str("NGROK_AUTHTOKEN", &c.Ngrok.AuthToken)
	if c.Ngrok.AuthToken == "" {
		// Also support underscore version
		e.str("NGROK_AUTH_TOKEN", &c.Ngrok.AuthToken)
	}
	e.str("NGROK_DOMAIN", &c.Ngrok.Domain)

	return e.err()
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []string
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) fail(key, v string, err error) {
	e.errs = append(e.errs, fmt.Sprintf("%s=%q: %v", key, v, err))
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) int64(key string, dst *int64) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) bool(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		dst.Duration = d
	}
}

func (e *envReader) err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(e.errs, "; "))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
