// Package config loads server settings.
//
// Values are layered, later layers winning:
//
//   - built-in defaults (Default)
//   - a TOML file (Load)
//   - a .env file and the process environment (ApplyEnv)
//   - command-line flags, applied by the caller
//
// Validate should run after the last layer.
//
// Example file:
//
//	[server]
//	host = "0.0.0.0"
//	port = 8080
//
//	[websocket]
//	transport = "gobwas"
//	write_mode = "queue"
//	write_wait = "5s"
//
//	[log]
//	level = "debug"
//	format = "json"
package config
