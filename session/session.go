package session

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of a session.
type State int32

const (
	// StateStarting covers the welcome notification.
	StateStarting State = iota
	// StateActive means the session is receiving and replying.
	StateActive
	// StateClosing means a close frame was received and is being acknowledged.
	StateClosing
	// StateClosed means teardown has run.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// WriteMode selects the write arbiter used by a session.
type WriteMode string

const (
	// WriteModeLock serializes writes with a Guard.
	WriteModeLock WriteMode = "lock"
	// WriteModeQueue serializes writes through a dedicated Writer goroutine.
	WriteModeQueue WriteMode = "queue"
)

// Options configures a session.
type Options struct {
	// ID identifies the session in logs; a random UUID is used when empty.
	ID string

	// WelcomeMessage is the text of the welcome notification.
	WelcomeMessage string

	WriteMode WriteMode
	QueueSize int

	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger

	// Observer defaults to a no-op observer.
	Observer Observer
}

// Session is the state of one accepted connection. It is driven by a single
// goroutine: messages are handled strictly in arrival order and the reply to
// one message is attempted before the next one is read.
type Session struct {
	id       string
	welcome  string
	in       Inbound
	out      Outbound
	writer   *Writer
	log      zerolog.Logger
	observer Observer

	state     atomic.Int32
	startedAt time.Time
	received  int
	sent      int
}

// New prepares a session for conn. Nothing is sent until Run is called.
func New(conn Conn, opts Options) *Session {
	s := &Session{
		id:       opts.ID,
		welcome:  opts.WelcomeMessage,
		in:       conn,
		observer: opts.Observer,
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.welcome == "" {
		s.welcome = DefaultWelcomeMessage
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	s.log = logger.With().Str("session_id", s.id).Logger()

	switch opts.WriteMode {
	case WriteModeQueue:
		s.writer = NewWriter(conn, opts.QueueSize)
		s.out = s.writer
	default:
		s.out = NewGuard(conn)
	}

	return s
}

// Serve runs a session for conn until the peer closes, the stream ends, or a
// receive error occurs. It is called once per accepted connection.
func Serve(ctx context.Context, conn Conn, opts Options) error {
	return New(conn, opts).Run(ctx)
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Run sends the welcome notification and then services inbound messages.
// It returns nil when the session ends with a close frame or the end of the
// stream, and a *ReceiveError when the transport fails.
func (s *Session) Run(ctx context.Context) (err error) {
	s.startedAt = time.Now()
	s.observer.SessionStarted(s.id)
	s.log.Info().Msg("Session started")

	reason := EndExhausted
	defer func() { s.end(reason, err) }()

	s.start(ctx)
	s.setState(StateActive)

	for {
		msg, rerr := s.in.Receive(ctx)
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				reason = EndExhausted
				return nil
			}
			reason = EndReceiveError
			return &ReceiveError{Err: rerr}
		}
		s.received++

		if s.dispatch(ctx, msg) {
			reason = EndClosed
			return nil
		}
	}
}

// dispatch applies the reaction for msg and reports whether the session
// must end.
func (s *Session) dispatch(ctx context.Context, msg Message) bool {
	if msg.Kind == KindText {
		s.log.Debug().Str("text", msg.Text).Msg("Received")
	} else {
		s.log.Debug().Stringer("message", msg).Msg("Received")
	}

	reaction, err := React(msg)
	if err != nil {
		s.log.Warn().Err(err).Msg("Dropping message")
		return false
	}
	if reaction.End {
		s.setState(StateClosing)
	}

	if reaction.Reply != nil {
		if err := s.out.Send(ctx, *reaction.Reply); err != nil {
			s.log.Warn().Err(err).Stringer("reply", *reaction.Reply).Msg("Failed to send reply")
		} else {
			s.sent++
		}
	}

	return reaction.End
}

// end runs once when the receive loop exits.
func (s *Session) end(reason EndReason, err error) {
	s.setState(StateClosed)
	if s.writer != nil {
		s.writer.Close()
	}

	event := s.log.Info()
	if err != nil {
		event = s.log.Warn().Err(err)
	}
	event.
		Str("reason", reason.String()).
		Int("received", s.received).
		Int("sent", s.sent).
		Dur("duration", time.Since(s.startedAt)).
		Msg("Session ended")

	s.observer.SessionEnded(s.id, reason)
}
