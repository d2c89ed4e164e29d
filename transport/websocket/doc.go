// Package websocket provides the gorilla/websocket transport for echo sessions.
//
// The websocket package implements:
//   - HTTP upgrade handling with origin checks
//   - A session.Conn adapter over a gorilla connection
//   - Delivery of ping, pong and close frames to the session as messages
//   - Write deadlines on every outbound frame
//
// Architecture:
//
// Gorilla answers control frames itself unless handlers are installed. The
// adapter installs ping, pong and close handlers that forward each frame to
// the session instead, so the session decides the reply. A read pump
// goroutine owns all reads and hands messages to Receive over an unbuffered
// channel, which keeps control frames in arrival order relative to data
// messages.
//
// Usage:
//
//	handler := websocket.NewHandler(websocket.Options{
//		Session: session.Options{Logger: &logger, Observer: stats},
//	})
//	router.Handle("/ws", handler)
//
// Connection Lifecycle:
//
// 1. Client connects and the request is upgraded
// 2. The session sends its welcome notification
// 3. Each inbound message is answered in order
// 4. A close frame, a read error, or a dropped TCP connection ends the session
// 5. The handler closes the connection and the read pump exits
package websocket
