// Package gobwas serves echo sessions over github.com/gobwas/ws.
//
// Unlike the gorilla transport it works at frame level on the hijacked
// connection: there is no read pump goroutine, control frames are never
// answered by the library, and a blocked read is cancelled through a
// read deadline when the session context ends.
package gobwas
