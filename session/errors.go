package session

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned for a message whose Kind is not one of the
	// five defined kinds.
	ErrUnknownKind = errors.New("unknown message kind")

	// ErrWriterClosed is returned by Writer.Send once the writer is closed.
	ErrWriterClosed = errors.New("writer is closed")
)

// SendError reports a failed write to the outbound half of a connection.
type SendError struct {
	Kind Kind  // kind of the message that failed to send
	Err  error // underlying transport error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ReceiveError reports a failed read from the inbound half of a connection.
// It always ends the session.
type ReceiveError struct {
	Err error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("receive: %v", e.Err)
}

func (e *ReceiveError) Unwrap() error { return e.Err }
