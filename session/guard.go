package session

import (
	"context"
)

// Guard serializes writes to an Outbound so that concurrent callers never
// interleave frames. Access is released on every exit path, so a failed
// write leaves the guard usable.
type Guard struct {
	out  Outbound
	slot chan struct{}
}

// NewGuard wraps out in a write guard.
func NewGuard(out Outbound) *Guard {
	return &Guard{
		out:  out,
		slot: make(chan struct{}, 1),
	}
}

// Send waits for exclusive access to the connection, writes m and releases
// access. It gives up waiting when ctx is done.
func (g *Guard) Send(ctx context.Context, m Message) error {
	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return &SendError{Kind: m.Kind, Err: ctx.Err()}
	}
	defer func() { <-g.slot }()

	if err := g.out.Send(ctx, m); err != nil {
		return &SendError{Kind: m.Kind, Err: err}
	}
	return nil
}
