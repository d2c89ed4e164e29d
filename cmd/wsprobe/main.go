// Command wsprobe connects to a running wsecho server and checks every
// reaction of an echo session: the welcome notification, text and binary
// echoes, ping/pong and the close handshake. It exits non-zero when any
// step does not match.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"
)

const defaultURL = "ws://127.0.0.1:7878/ws"

// probeConfig describes one probe run.
type probeConfig struct {
	URL     string
	Text    string
	Timeout time.Duration
}

// step is the outcome of one check.
type step struct {
	Name string
	OK   bool
	Note string
}

// notification is the welcome sent by the server.
type notification struct {
	ServerMethod string `json:"server_method"`
	Data         struct {
		Message string `json:"message"`
	} `json:"data"`
}

var errProbeFailed = errors.New("probe failed")

func main() {
	cmd := &cli.Command{
		Name:  "wsprobe",
		Usage: "exercise a wsecho WebSocket endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: defaultURL, Usage: "WebSocket endpoint"},
			&cli.StringFlag{Name: "text", Value: "Hello", Usage: "text message to echo"},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Second, Usage: "overall deadline"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := probeConfig{
				URL:     cmd.String("url"),
				Text:    cmd.String("text"),
				Timeout: cmd.Duration("timeout"),
			}
			steps, err := probe(ctx, cfg)
			report(cmd.Root().Writer, steps)
			return err
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "wsprobe: %v\n", err)
		os.Exit(1)
	}
}

func report(w io.Writer, steps []step) {
	for _, s := range steps {
		mark := "ok  "
		if !s.OK {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "%s %-8s %s\n", mark, s.Name, s.Note)
	}
}

// probe runs every check in order. It stops at the first transport error;
// mismatched replies are recorded and the run continues.
func probe(ctx context.Context, cfg probeConfig) ([]step, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var steps []step
	record := func(name string, ok bool, format string, args ...interface{}) {
		steps = append(steps, step{Name: name, OK: ok, Note: fmt.Sprintf(format, args...)})
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return steps, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)

	pongs := make(chan []byte, 1)
	conn.SetPongHandler(func(appData string) error {
		select {
		case pongs <- []byte(appData):
		default:
		}
		return nil
	})

	// welcome
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return steps, fmt.Errorf("read welcome: %w", err)
	}
	var welcome notification
	ok := messageType == websocket.TextMessage && json.Unmarshal(data, &welcome) == nil && welcome.ServerMethod == "system"
	record("welcome", ok, "%s", data)

	// text
	if err := conn.WriteMessage(websocket.TextMessage, []byte(cfg.Text)); err != nil {
		return steps, fmt.Errorf("send text: %w", err)
	}
	messageType, data, err = conn.ReadMessage()
	if err != nil {
		return steps, fmt.Errorf("read text echo: %w", err)
	}
	want := "Echo: " + cfg.Text
	record("text", messageType == websocket.TextMessage && string(data) == want, "%q", data)

	// binary
	payload := []byte{0x00, 0x01, 0xFE, 0xFF}
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return steps, fmt.Errorf("send binary: %w", err)
	}
	messageType, data, err = conn.ReadMessage()
	if err != nil {
		return steps, fmt.Errorf("read binary echo: %w", err)
	}
	record("binary", messageType == websocket.BinaryMessage && bytes.Equal(data, payload), "%x", data)

	// ping: the pong arrives before the echo of the text that follows it.
	pingData := []byte("wsprobe")
	if err := conn.WriteControl(websocket.PingMessage, pingData, deadline); err != nil {
		return steps, fmt.Errorf("send ping: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("after ping")); err != nil {
		return steps, fmt.Errorf("send text: %w", err)
	}
	if _, _, err := conn.ReadMessage(); err != nil {
		return steps, fmt.Errorf("read after ping: %w", err)
	}
	select {
	case got := <-pongs:
		record("ping", bytes.Equal(got, pingData), "pong %q", got)
	default:
		record("ping", false, "no pong before next message")
	}

	// close
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "probe done")
	if err := conn.WriteControl(websocket.CloseMessage, closeMsg, deadline); err != nil {
		return steps, fmt.Errorf("send close: %w", err)
	}
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		record("close", ce.Code == websocket.CloseNormalClosure && ce.Text == "probe done", "%d %q", ce.Code, ce.Text)
	} else {
		record("close", false, "expected close frame, got %v", err)
	}

	for _, s := range steps {
		if !s.OK {
			return steps, errProbeFailed
		}
	}
	return steps, nil
}
