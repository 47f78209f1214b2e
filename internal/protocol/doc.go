// Package protocol implements the scenebridge wire format.
//
// Clients send JSON objects over a plain TCP stream. The stream carries no
// length prefix or delimiter, so a single read may hold part of a command,
// exactly one command, or several commands back to back. Decoder buffers the
// bytes of one connection and yields commands as they become complete.
//
// # Commands
//
//	{"type": "create_object", "params": {"type": "CUBE", "location": [0, 0, 0]}}
//
// "type" is required. "params" may be omitted and defaults to an empty object.
//
// # Responses
//
// Every command gets exactly one response on the connection it arrived on:
//
//	{"status": "success", "result": {"name": "Cube", "type": "MESH"}}
//	{"status": "error", "message": "Object 'Cube' not found"}
//
// # Framing Errors
//
// Decode distinguishes a value that is merely truncated (ErrIncomplete, keep
// reading) from bytes that can never parse (*MalformedError). A connection
// answers malformed input with an error response and drops the buffered bytes
// rather than waiting forever for a value that cannot complete.
package protocol
