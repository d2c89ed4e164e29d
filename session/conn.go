package session

import (
	"context"
)

// Inbound is the receive half of a connection.
//
// Receive blocks until the next message arrives. It returns io.EOF once the
// peer has gone away without a close frame; any other error means the
// connection can no longer be read.
type Inbound interface {
	Receive(ctx context.Context) (Message, error)
}

// Outbound is the send half of a connection. Implementations provided by
// transports are not safe for concurrent use; wrap them in a Guard or a
// Writer.
type Outbound interface {
	Send(ctx context.Context, m Message) error
}

// Conn is a duplex message connection handed to a session by a transport.
type Conn interface {
	Inbound
	Outbound
}
