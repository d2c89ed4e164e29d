// Package session implements the per-connection WebSocket session handler.
//
// The session package implements:
//   - The inbound/outbound message model (text, binary, ping, pong, close)
//   - A write arbiter that serializes every write to a connection
//   - The welcome notification sent when a session starts
//   - The receive loop that dispatches each inbound message to its reaction
//   - Session teardown and lifecycle observation
//
// Architecture:
//
// A transport (see transport/websocket and transport/gobwas) upgrades the HTTP
// request and hands the session a Conn: a receive half and a send half of the
// same connection. Serve runs the whole lifecycle on the calling goroutine:
//
//  1. The welcome notification is sent through the write arbiter
//  2. Messages are received and dispatched strictly in arrival order
//  3. The loop ends on the first close frame, receive error, or end of stream
//  4. Teardown runs once and reports the end reason to the Observer
//
// Reactions:
//
//	Text(t)      -> Text("Echo: " + t)
//	Binary(b)    -> Binary(b)
//	Ping(p)      -> Pong(p)
//	Pong(_)      -> nothing
//	Close(info)  -> Close(info), then the session ends
//
// Write arbitration:
//
// Every write goes through an Outbound that admits one write at a time. Guard
// does this with a one-slot semaphore; Writer does it with a dedicated writer
// goroutine fed by a queue. Both report the transport's send error back to
// the caller.
//
// Usage:
//
//	err := session.Serve(ctx, conn, session.Options{
//		Logger:   logger,
//		Observer: stats,
//	})
package session
