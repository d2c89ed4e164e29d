package gobwas

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/wricardo/mcp-training/wsecho/session"
)

const defaultWriteWait = 10 * time.Second

var (
	// ErrMessageTooLarge is returned when a data message exceeds the
	// configured size limit.
	ErrMessageTooLarge = errors.New("message exceeds size limit")

	// ErrInvalidClosePayload is returned for a close frame whose payload is
	// too short to carry a status code.
	ErrInvalidClosePayload = errors.New("invalid close frame payload")

	// errIntermediate stops a fragmented read so that a control frame can be
	// delivered before the rest of the message arrives.
	errIntermediate = errors.New("control frame between fragments")
)

// Conn adapts a hijacked connection speaking RFC 6455 framing to
// session.Conn. Fragmented messages are reassembled. A control frame
// interleaved between fragments is returned as soon as it is read and the
// interrupted message resumes on the next Receive.
type Conn struct {
	conn           net.Conn
	reader         *wsutil.Reader
	writeWait      time.Duration
	maxMessageSize int64

	// State of a data message that is still being reassembled.
	inMessage bool
	op        ws.OpCode
	partial   bytes.Buffer

	// control is set by the intermediate frame handler.
	control *session.Message
}

// NewConn wraps the server side of an upgraded connection. rw may carry
// bytes the HTTP server read ahead of the handshake and may be nil.
func NewConn(conn net.Conn, rw *bufio.ReadWriter, writeWait time.Duration, maxMessageSize int64) *Conn {
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}

	var src io.Reader = conn
	if rw != nil && rw.Reader.Buffered() > 0 {
		src = rw.Reader
	}

	c := &Conn{
		conn:           conn,
		writeWait:      writeWait,
		maxMessageSize: maxMessageSize,
	}
	c.reader = &wsutil.Reader{
		Source:    src,
		State:     ws.StateServerSide,
		CheckUTF8: true,
		OnIntermediate: func(hdr ws.Header, r io.Reader) error {
			payload, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			msg, err := controlMessage(hdr.OpCode, payload)
			if err != nil {
				return err
			}
			c.control = &msg
			return errIntermediate
		},
	}
	return c
}

// Receive reads the next message. It is not safe for concurrent use.
func (c *Conn) Receive(ctx context.Context) (session.Message, error) {
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	msg, err := c.next()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return session.Message{}, ctxErr
		}
		return session.Message{}, err
	}
	return msg, nil
}

// next reads one control frame or one complete data message. A data message
// interrupted by a control frame is continued by the following call.
func (c *Conn) next() (session.Message, error) {
	if !c.inMessage {
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return session.Message{}, err
		}

		if hdr.OpCode.IsControl() {
			payload, err := io.ReadAll(c.reader)
			if err != nil {
				return session.Message{}, err
			}
			return controlMessage(hdr.OpCode, payload)
		}

		if c.maxMessageSize > 0 && hdr.Length > c.maxMessageSize {
			return session.Message{}, ErrMessageTooLarge
		}
		c.inMessage = true
		c.op = hdr.OpCode
		c.partial.Reset()
	}

	var src io.Reader = c.reader
	if c.maxMessageSize > 0 {
		src = io.LimitReader(c.reader, c.maxMessageSize+1-int64(c.partial.Len()))
	}
	_, err := c.partial.ReadFrom(src)
	if errors.Is(err, errIntermediate) && c.control != nil {
		msg := *c.control
		c.control = nil
		return msg, nil
	}
	c.inMessage = false
	if err != nil {
		return session.Message{}, err
	}
	if c.maxMessageSize > 0 && int64(c.partial.Len()) > c.maxMessageSize {
		return session.Message{}, ErrMessageTooLarge
	}

	switch c.op {
	case ws.OpText:
		return session.Text(c.partial.String()), nil
	case ws.OpBinary:
		return session.Binary(bytes.Clone(c.partial.Bytes())), nil
	default:
		return session.Message{}, fmt.Errorf("unexpected opcode %#x", byte(c.op))
	}
}

// controlMessage converts a control frame payload to a message.
func controlMessage(op ws.OpCode, payload []byte) (session.Message, error) {
	switch op {
	case ws.OpPing:
		return session.Ping(payload), nil
	case ws.OpPong:
		return session.Pong(payload), nil
	case ws.OpClose:
		if len(payload) == 0 {
			return session.Close(nil), nil
		}
		code, reason := ws.ParseCloseFrameData(payload)
		if code.Empty() {
			return session.Message{}, ErrInvalidClosePayload
		}
		if err := ws.CheckCloseFrameData(code, reason); err != nil {
			return session.Message{}, err
		}
		return session.Close(&session.CloseInfo{Code: uint16(code), Reason: reason}), nil
	default:
		return session.Message{}, fmt.Errorf("unexpected control opcode %#x", byte(op))
	}
}

// Send writes m as a single unfragmented frame. It is not safe for
// concurrent use.
func (c *Conn) Send(ctx context.Context, m session.Message) error {
	deadline := time.Now().Add(c.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)

	switch m.Kind {
	case session.KindText:
		return wsutil.WriteServerMessage(c.conn, ws.OpText, []byte(m.Text))
	case session.KindBinary:
		return wsutil.WriteServerMessage(c.conn, ws.OpBinary, m.Data)
	case session.KindPing:
		return wsutil.WriteServerMessage(c.conn, ws.OpPing, m.Data)
	case session.KindPong:
		return wsutil.WriteServerMessage(c.conn, ws.OpPong, m.Data)
	case session.KindClose:
		var payload []byte
		if m.Close != nil {
			payload = ws.NewCloseFrameBody(ws.StatusCode(m.Close.Code), m.Close.Reason)
		}
		return wsutil.WriteServerMessage(c.conn, ws.OpClose, payload)
	default:
		return fmt.Errorf("%w: %s", session.ErrUnknownKind, m.Kind)
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
