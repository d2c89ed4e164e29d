package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/mcp-training/wsecho/session"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Maximum message size allowed from peer.
	defaultMaxMessageSize = 64 * 1024
)

type inbound struct {
	msg session.Message
	err error
}

// Conn adapts a gorilla connection to session.Conn.
type Conn struct {
	conn      *websocket.Conn
	writeWait time.Duration

	inbound   chan inbound
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps conn and starts its read pump. Close must be called to stop
// the pump.
func NewConn(conn *websocket.Conn, writeWait time.Duration, maxMessageSize int64) *Conn {
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	if maxMessageSize > 0 {
		conn.SetReadLimit(maxMessageSize)
	}

	c := &Conn{
		conn:      conn,
		writeWait: writeWait,
		inbound:   make(chan inbound),
		done:      make(chan struct{}),
	}

	conn.SetPingHandler(func(appData string) error {
		c.deliver(inbound{msg: session.Ping([]byte(appData))})
		return nil
	})
	conn.SetPongHandler(func(appData string) error {
		c.deliver(inbound{msg: session.Pong([]byte(appData))})
		return nil
	})
	// The session acknowledges close frames itself.
	conn.SetCloseHandler(func(int, string) error { return nil })

	go c.readPump()
	return c
}

// deliver hands r to Receive. It returns false once the connection is closed.
func (c *Conn) deliver(r inbound) bool {
	select {
	case c.inbound <- r:
		return true
	case <-c.done:
		return false
	}
}

// readPump pumps messages from the WebSocket connection to Receive.
func (c *Conn) readPump() {
	defer close(c.inbound)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.deliver(readResult(err))
			return
		}

		var msg session.Message
		switch messageType {
		case websocket.TextMessage:
			msg = session.Text(string(data))
		case websocket.BinaryMessage:
			msg = session.Binary(data)
		default:
			continue
		}
		if !c.deliver(inbound{msg: msg}) {
			return
		}
	}
}

// readResult classifies a gorilla read error. A close frame from the peer
// becomes a close message and an abnormal closure (the TCP connection went
// away without a close frame) becomes io.EOF.
func readResult(err error) inbound {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return inbound{err: err}
	}
	switch ce.Code {
	case websocket.CloseAbnormalClosure:
		return inbound{err: io.EOF}
	case websocket.CloseNoStatusReceived:
		return inbound{msg: session.Close(nil)}
	default:
		return inbound{msg: session.Close(&session.CloseInfo{
			Code:   uint16(ce.Code),
			Reason: ce.Text,
		})}
	}
}

// Receive returns the next message read by the pump.
func (c *Conn) Receive(ctx context.Context) (session.Message, error) {
	select {
	case r, ok := <-c.inbound:
		if !ok {
			return session.Message{}, io.EOF
		}
		return r.msg, r.err
	case <-ctx.Done():
		return session.Message{}, ctx.Err()
	}
}

// Send writes m as a single frame. It is not safe for concurrent use.
func (c *Conn) Send(ctx context.Context, m session.Message) error {
	deadline := time.Now().Add(c.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	switch m.Kind {
	case session.KindText:
		c.conn.SetWriteDeadline(deadline)
		return c.conn.WriteMessage(websocket.TextMessage, []byte(m.Text))
	case session.KindBinary:
		c.conn.SetWriteDeadline(deadline)
		return c.conn.WriteMessage(websocket.BinaryMessage, m.Data)
	case session.KindPing:
		return c.conn.WriteControl(websocket.PingMessage, m.Data, deadline)
	case session.KindPong:
		return c.conn.WriteControl(websocket.PongMessage, m.Data, deadline)
	case session.KindClose:
		payload := []byte{}
		if m.Close != nil {
			payload = websocket.FormatCloseMessage(int(m.Close.Code), m.Close.Reason)
		}
		return c.conn.WriteControl(websocket.CloseMessage, payload, deadline)
	default:
		return fmt.Errorf("%w: %s", session.ErrUnknownKind, m.Kind)
	}
}

// Close stops the read pump and closes the underlying connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
