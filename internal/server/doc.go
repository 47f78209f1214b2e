// Package server implements the scenebridge command server.
//
// Clients connect over TCP and write JSON commands with no framing:
//
//	{"type": "create_object", "params": {"type": "CUBE", "location": [0, 0, 0]}}
//
// Bytes are buffered per connection until a complete JSON value is
// available, so a command may arrive split across many reads and several
// commands may arrive in one. Each command is resolved by the router, run on
// the executor's owner context and answered with exactly one response on the
// same connection:
//
//	{"status": "success", "result": {"name": "Cube", "type": "MESH"}}
//	{"status": "error", "message": "Object 'Cube' not found"}
//
// A connection has at most one command in flight. Malformed JSON and
// commands without a "type" are answered with an error and the connection
// stays open; a client that exceeds the receive buffer limit is disconnected.
//
// # Lifecycle
//
// A Server moves Idle → Starting → Running → Stopping → Idle. Start on a
// running server returns ErrAlreadyRunning; Stop on an idle server is a
// logged no-op. Stop closes the listener and live connections, fails queued
// commands with "server shutting down" and waits a bounded time for the
// accept loop, so a stopped server can be started again on the same port.
//
// # Side Listener
//
// When Config.HTTPAddr is set a second listener serves Prometheus metrics
// on /metrics, a JSON status document on /healthz and a WebSocket gateway
// on /ws where each text message is one command. Only pages from localhost
// origins may open the gateway.
package server
