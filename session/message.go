package session

import (
	"fmt"
)

// Kind identifies the type of a WebSocket message unit.
type Kind int

// Message kinds. The zero Kind is invalid.
const (
	KindText Kind = iota + 1
	KindBinary
	KindPing
	KindPong
	KindClose
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindClose:
		return "close"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// CloseInfo is the status code and reason carried by a close frame.
// It is echoed back verbatim and never interpreted.
type CloseInfo struct {
	Code   uint16 `json:"code"`
	Reason string `json:"reason"`
}

// Message is one logical WebSocket message, already reassembled from any
// wire-level fragmentation by the transport.
type Message struct {
	Kind Kind

	// Text holds the payload of a text message.
	Text string

	// Data holds the payload of binary, ping and pong messages.
	Data []byte

	// Close is the close info of a close message; nil means the close
	// frame carried no status code.
	Close *CloseInfo
}

// Text returns a text message.
func Text(s string) Message {
	return Message{Kind: KindText, Text: s}
}

// Binary returns a binary message.
func Binary(b []byte) Message {
	return Message{Kind: KindBinary, Data: b}
}

// Ping returns a ping control message.
func Ping(p []byte) Message {
	return Message{Kind: KindPing, Data: p}
}

// Pong returns a pong control message.
func Pong(p []byte) Message {
	return Message{Kind: KindPong, Data: p}
}

// Close returns a close control message. A nil info produces an empty
// close frame.
func Close(info *CloseInfo) Message {
	return Message{Kind: KindClose, Close: info}
}

// Size returns the payload length in bytes.
func (m Message) Size() int {
	switch m.Kind {
	case KindText:
		return len(m.Text)
	case KindClose:
		if m.Close == nil {
			return 0
		}
		return 2 + len(m.Close.Reason)
	default:
		return len(m.Data)
	}
}

func (m Message) String() string {
	if m.Kind == KindClose && m.Close != nil {
		return fmt.Sprintf("close(%d %q)", m.Close.Code, m.Close.Reason)
	}
	return fmt.Sprintf("%s(%d bytes)", m.Kind, m.Size())
}
