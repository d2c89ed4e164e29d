package session

import (
	"context"
	"sync"
)

// DefaultQueueSize is the number of sends a Writer buffers before producers
// block.
const DefaultQueueSize = 16

type writeRequest struct {
	ctx  context.Context
	msg  Message
	done chan error
}

// Writer owns an Outbound and performs every write on a single goroutine fed
// by a queue. Producers wait for the result of their own write, so send
// errors still reach the caller.
type Writer struct {
	out     Outbound
	queue   chan writeRequest
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewWriter starts a writer goroutine for out. Close must be called to stop it.
func NewWriter(out Outbound, size int) *Writer {
	if size <= 0 {
		size = DefaultQueueSize
	}
	w := &Writer{
		out:     out,
		queue:   make(chan writeRequest, size),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.writePump()
	return w
}

// writePump drains the queue in order until the writer is closed.
func (w *Writer) writePump() {
	defer close(w.stopped)

	for {
		select {
		case req := <-w.queue:
			if err := req.ctx.Err(); err != nil {
				req.done <- err
				continue
			}
			req.done <- w.out.Send(req.ctx, req.msg)

		case <-w.quit:
			return
		}
	}
}

// Send enqueues m and waits until it has been written.
func (w *Writer) Send(ctx context.Context, m Message) error {
	req := writeRequest{ctx: ctx, msg: m, done: make(chan error, 1)}

	select {
	case w.queue <- req:
	case <-w.quit:
		return &SendError{Kind: m.Kind, Err: ErrWriterClosed}
	case <-ctx.Done():
		return &SendError{Kind: m.Kind, Err: ctx.Err()}
	}

	var err error
	select {
	case err = <-req.done:
	case <-w.stopped:
		select {
		case err = <-req.done:
		default:
			err = ErrWriterClosed
		}
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		return &SendError{Kind: m.Kind, Err: err}
	}
	return nil
}

// Close stops the writer goroutine and waits for it to exit. Queued sends
// that were not written fail with ErrWriterClosed.
func (w *Writer) Close() error {
	w.once.Do(func() { close(w.quit) })
	<-w.stopped
	return nil
}
