// Package logging provides structured logging for scenebridge.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used throughout the server: connection lifecycle, command
// processing and raw byte dumps for framing problems.
//
// # Log Levels
//
//   - Debug: Raw receive buffers, route lookups, executor queue activity
//   - Info: Connections, processed commands, lifecycle transitions
//   - Warn: Malformed input, dropped connections, failed reloads
//   - Error: Bind failures, handler panics
//
// # Silent By Default
//
// Logging is silent unless a level is passed to Initialize or the
// SCENEBRIDGE_LOG_LEVEL environment variable is set. The level can be changed
// afterwards with SetLevel, which the config watcher uses for hot reload.
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
//	logging.LogConnection(connID, remoteAddr, "accepted")
//	logging.LogCommand(connID, "create_object", "success", 0.42)
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
