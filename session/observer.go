package session

import (
	"sync/atomic"
)

// EndReason describes why a session's receive loop terminated.
type EndReason int

const (
	// EndClosed means the peer sent a close frame.
	EndClosed EndReason = iota
	// EndExhausted means the stream ended without a close frame.
	EndExhausted
	// EndReceiveError means the transport failed to deliver the next message.
	EndReceiveError
)

func (r EndReason) String() string {
	switch r {
	case EndClosed:
		return "closed"
	case EndExhausted:
		return "exhausted"
	case EndReceiveError:
		return "receive_error"
	default:
		return "unknown"
	}
}

// Observer is notified when sessions start and end.
type Observer interface {
	SessionStarted(id string)
	SessionEnded(id string, reason EndReason)
}

type nopObserver struct{}

func (nopObserver) SessionStarted(string)          {}
func (nopObserver) SessionEnded(string, EndReason) {}

// Stats counts sessions. It keeps no reference to any connection.
type Stats struct {
	active        atomic.Int64
	total         atomic.Int64
	closed        atomic.Int64
	exhausted     atomic.Int64
	receiveErrors atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Active        int64 `json:"active"`
	Total         int64 `json:"total"`
	Closed        int64 `json:"closed"`
	Exhausted     int64 `json:"exhausted"`
	ReceiveErrors int64 `json:"receive_errors"`
}

// NewStats returns zeroed session counters.
func NewStats() *Stats {
	return &Stats{}
}

// SessionStarted counts a new active session.
func (s *Stats) SessionStarted(string) {
	s.active.Add(1)
	s.total.Add(1)
}

// SessionEnded moves a session from active to its end reason.
func (s *Stats) SessionEnded(_ string, reason EndReason) {
	s.active.Add(-1)
	switch reason {
	case EndClosed:
		s.closed.Add(1)
	case EndExhausted:
		s.exhausted.Add(1)
	case EndReceiveError:
		s.receiveErrors.Add(1)
	}
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Active:        s.active.Load(),
		Total:         s.total.Load(),
		Closed:        s.closed.Load(),
		Exhausted:     s.exhausted.Load(),
		ReceiveErrors: s.receiveErrors.Load(),
	}
}
