package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func welcomeMessage(t *testing.T) Message {
	t.Helper()
	msg, err := Welcome(DefaultWelcomeMessage)
	if err != nil {
		t.Fatalf("Welcome() error = %v", err)
	}
	return msg
}

func TestServe_Scenarios(t *testing.T) {
	tests := []struct {
		name string
		in   Message
		want Message
	}{
		{"A text", Text("Hello"), Text("Echo: Hello")},
		{"B ping", Ping([]byte{0x01, 0x02}), Pong([]byte{0x01, 0x02})},
		{"C close", Close(&CloseInfo{Code: 1000, Reason: "bye"}), Close(&CloseInfo{Code: 1000, Reason: "bye"})},
		{"D binary", Binary([]byte{0xDE, 0xAD, 0xBE, 0xEF}), Binary([]byte{0xDE, 0xAD, 0xBE, 0xEF})},
	}

	for _, mode := range []WriteMode{WriteModeLock, WriteModeQueue} {
		for _, tt := range tests {
			t.Run(string(mode)+"/"+tt.name, func(t *testing.T) {
				conn := newFakeConn(tt.in)

				if err := Serve(context.Background(), conn, Options{WriteMode: mode}); err != nil {
					t.Fatalf("Serve() error = %v", err)
				}

				sent := conn.Sent()
				if len(sent) != 2 {
					t.Fatalf("Expected 2 frames (welcome + reply), got %d", len(sent))
				}
				assertMessage(t, welcomeMessage(t), sent[0])
				assertMessage(t, tt.want, sent[1])
			})
		}
	}
}

func TestServe_WelcomeSentOnceAndFirst(t *testing.T) {
	conn := newFakeConn(Text("one"), Ping(nil), Binary([]byte("two")), Text("three"))

	if err := Serve(context.Background(), conn, Options{}); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	sent := conn.Sent()
	welcome := welcomeMessage(t)
	assertMessage(t, welcome, sent[0])

	count := 0
	for _, m := range sent {
		if m.Kind == KindText && m.Text == welcome.Text {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected exactly 1 welcome, got %d", count)
	}
}

func TestServe_CustomWelcome(t *testing.T) {
	conn := newFakeConn()

	if err := Serve(context.Background(), conn, Options{WelcomeMessage: "hi there"}); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	want := `{"server_method":"system","data":{"message":"hi there"}}`
	if sent := conn.Sent(); len(sent) != 1 || sent[0].Text != want {
		t.Errorf("Expected welcome %s, got %+v", want, sent)
	}
}

func TestServe_RepliesInArrivalOrder(t *testing.T) {
	conn := newFakeConn(Text("1"), Pong(nil), Text("2"), Binary([]byte{3}), Ping([]byte{4}), Text("5"))

	if err := Serve(context.Background(), conn, Options{}); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	want := []Message{
		welcomeMessage(t),
		Text("Echo: 1"),
		Text("Echo: 2"),
		Binary([]byte{3}),
		Pong([]byte{4}),
		Text("Echo: 5"),
	}
	sent := conn.Sent()
	if len(sent) != len(want) {
		t.Fatalf("Expected %d frames, got %d", len(want), len(sent))
	}
	for i := range want {
		assertMessage(t, want[i], sent[i])
	}
}

func TestServe_CloseEndsSession(t *testing.T) {
	conn := newFakeConn(
		Close(&CloseInfo{Code: 1000, Reason: "bye"}),
		Text("never read"),
	)
	observer := &recordingObserver{}

	if err := Serve(context.Background(), conn, Options{Observer: observer}); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	if conn.Receives() != 1 {
		t.Errorf("Expected 1 receive, got %d", conn.Receives())
	}
	sent := conn.Sent()
	if len(sent) != 2 {
		t.Fatalf("Expected welcome + close, got %d frames", len(sent))
	}
	assertMessage(t, Close(&CloseInfo{Code: 1000, Reason: "bye"}), sent[1])

	if len(observer.ended) != 1 || observer.ended[0] != EndClosed {
		t.Errorf("Expected end reason closed, got %v", observer.ended)
	}
}

func TestServe_EmptyClose(t *testing.T) {
	conn := newFakeConn(Close(nil))

	if err := Serve(context.Background(), conn, Options{}); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	sent := conn.Sent()
	if len(sent) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(sent))
	}
	assertMessage(t, Close(nil), sent[1])
}

func TestServe_CloseAckFailureStillEnds(t *testing.T) {
	conn := newFakeConn(Close(&CloseInfo{Code: 1001, Reason: "away"}), Text("never read"))
	conn.sendErr = func(n int, m Message) error {
		if m.Kind == KindClose {
			return io.ErrClosedPipe
		}
		return nil
	}

	if err := Serve(context.Background(), conn, Options{}); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if conn.Receives() != 1 {
		t.Errorf("Expected the session to stop after close, got %d receives", conn.Receives())
	}
}

func TestServe_ReceiveErrorEndsWithoutReply(t *testing.T) {
	boom := errors.New("malformed frame")
	conn := newFakeConn(Text("before"))
	conn.script = append(conn.script, step{err: boom}, step{msg: Text("after")})
	observer := &recordingObserver{}

	err := Serve(context.Background(), conn, Options{Observer: observer})

	var recvErr *ReceiveError
	if !errors.As(err, &recvErr) {
		t.Fatalf("Expected *ReceiveError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("Expected error to wrap %v, got %v", boom, err)
	}

	sent := conn.Sent()
	if len(sent) != 2 {
		t.Fatalf("Expected welcome + one echo, got %d frames", len(sent))
	}
	assertMessage(t, Text("Echo: before"), sent[1])
	if conn.Receives() != 2 {
		t.Errorf("Expected 2 receives, got %d", conn.Receives())
	}
	if len(observer.ended) != 1 || observer.ended[0] != EndReceiveError {
		t.Errorf("Expected end reason receive_error, got %v", observer.ended)
	}
}

func TestServe_StreamExhausted(t *testing.T) {
	conn := newFakeConn(Text("only"))
	observer := &recordingObserver{}

	if err := Serve(context.Background(), conn, Options{Observer: observer}); err != nil {
		t.Fatalf("Expected nil error on exhaustion, got %v", err)
	}
	if len(observer.ended) != 1 || observer.ended[0] != EndExhausted {
		t.Errorf("Expected end reason exhausted, got %v", observer.ended)
	}
}

func TestServe_WelcomeFailureIsNotFatal(t *testing.T) {
	conn := newFakeConn(Text("still here"))
	conn.sendErr = func(n int, m Message) error {
		if n == 0 {
			return io.ErrClosedPipe
		}
		return nil
	}

	if err := Serve(context.Background(), conn, Options{}); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	sent := conn.Sent()
	if len(sent) != 2 {
		t.Fatalf("Expected welcome attempt + echo, got %d frames", len(sent))
	}
	assertMessage(t, Text("Echo: still here"), sent[1])
}

func TestServe_SendFailuresAreIgnored(t *testing.T) {
	for _, mode := range []WriteMode{WriteModeLock, WriteModeQueue} {
		t.Run(string(mode), func(t *testing.T) {
			conn := newFakeConn(Text("a"), Binary([]byte{1}), Ping([]byte{2}), Text("b"))
			conn.sendErr = func(int, Message) error { return io.ErrClosedPipe }

			if err := Serve(context.Background(), conn, Options{WriteMode: mode}); err != nil {
				t.Fatalf("Serve() error = %v", err)
			}

			// 4 messages plus the final io.EOF.
			if conn.Receives() != 5 {
				t.Errorf("Expected 5 receives, got %d", conn.Receives())
			}
			if len(conn.Sent()) != 5 {
				t.Errorf("Expected 5 send attempts, got %d", len(conn.Sent()))
			}
		})
	}
}

func TestServe_ContextCanceled(t *testing.T) {
	conn := newFakeConn(Text("x"))
	conn.block = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, conn, Options{WriteMode: WriteModeQueue}) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestSession_States(t *testing.T) {
	conn := newFakeConn(Text("x"), Close(nil))
	s := New(conn, Options{ID: "state-test"})

	if s.ID() != "state-test" {
		t.Errorf("Expected ID 'state-test', got %s", s.ID())
	}
	if s.State() != StateStarting {
		t.Errorf("Expected state starting, got %s", s.State())
	}

	var seen []State
	conn.onReceive = func() { seen = append(seen, s.State()) }

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(seen) != 2 || seen[0] != StateActive || seen[1] != StateActive {
		t.Errorf("Expected active while receiving, got %v", seen)
	}
	if s.State() != StateClosed {
		t.Errorf("Expected state closed, got %s", s.State())
	}
}

func TestSession_GeneratedID(t *testing.T) {
	a := New(newFakeConn(), Options{})
	b := New(newFakeConn(), Options{})

	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("Expected distinct generated IDs, got %q and %q", a.ID(), b.ID())
	}
}

func TestStats(t *testing.T) {
	stats := NewStats()

	for _, script := range [][]step{
		{{msg: Close(nil)}},
		{},
		{{err: errors.New("reset")}},
	} {
		Serve(context.Background(), &fakeConn{script: script}, Options{Observer: stats})
	}

	snap := stats.Snapshot()
	want := StatsSnapshot{Active: 0, Total: 3, Closed: 1, Exhausted: 1, ReceiveErrors: 1}
	if snap != want {
		t.Errorf("Expected %+v, got %+v", want, snap)
	}
}

func TestStats_ActiveWhileRunning(t *testing.T) {
	stats := NewStats()
	conn := newFakeConn(Text("x"))

	var active int64
	conn.onReceive = func() { active = stats.Snapshot().Active }

	Serve(context.Background(), conn, Options{Observer: stats})

	if active != 1 {
		t.Errorf("Expected 1 active session while running, got %d", active)
	}
	if stats.Snapshot().Active != 0 {
		t.Errorf("Expected 0 active sessions after end, got %d", stats.Snapshot().Active)
	}
}

func TestEndReasonString(t *testing.T) {
	reasons := map[EndReason]string{
		EndClosed:       "closed",
		EndExhausted:    "exhausted",
		EndReceiveError: "receive_error",
		EndReason(99):   "unknown",
	}
	for reason, want := range reasons {
		if reason.String() != want {
			t.Errorf("Expected %s, got %s", want, reason.String())
		}
	}
}
