package session

import (
	"context"
	"io"
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// step is one scripted Receive result.
type step struct {
	msg Message
	err error
}

// fakeConn replays a script of inbound messages and records every send.
// When the script runs out, Receive returns io.EOF unless block is set, in
// which case it waits for ctx to be done.
type fakeConn struct {
	mu       sync.Mutex
	script   []step
	block    bool
	receives int
	sent     []Message

	// sendErr, when set, decides the outcome of each send.
	sendErr func(n int, m Message) error
	// onReceive runs before each scripted Receive result is returned.
	onReceive func()
}

func newFakeConn(msgs ...Message) *fakeConn {
	c := &fakeConn{}
	for _, m := range msgs {
		c.script = append(c.script, step{msg: m})
	}
	return c
}

func (c *fakeConn) Receive(ctx context.Context) (Message, error) {
	c.mu.Lock()
	c.receives++
	if len(c.script) == 0 {
		block := c.block
		c.mu.Unlock()
		if block {
			<-ctx.Done()
			return Message{}, ctx.Err()
		}
		return Message{}, io.EOF
	}
	next := c.script[0]
	c.script = c.script[1:]
	hook := c.onReceive
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
	return next.msg, next.err
}

func (c *fakeConn) Send(ctx context.Context, m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.sent)
	c.sent = append(c.sent, m)
	if c.sendErr != nil {
		return c.sendErr(n, m)
	}
	return nil
}

func (c *fakeConn) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.sent...)
}

func (c *fakeConn) Receives() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receives
}

// recordingObserver remembers lifecycle notifications.
type recordingObserver struct {
	mu      sync.Mutex
	started []string
	ended   []EndReason
}

func (o *recordingObserver) SessionStarted(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, id)
}

func (o *recordingObserver) SessionEnded(id string, reason EndReason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = append(o.ended, reason)
}
