// Package ui renders terminal output for the scenebridge CLI.
//
// Components follow a "print once and exit" pattern built on Lipgloss:
//
//   - Header: banner for long running commands such as serve
//   - Result: success/failure boxes for a command response or a
//     transport error, with troubleshooting hints
//   - Table: aligned columns for history and discover output
//   - Confirm: typed confirmation before a risky action
//
// When stdout is not a terminal (see IsTerminal) the CLI prints raw JSON
// instead, so output stays scriptable.
//
// # Logging Integration
//
// This package expects logging to be controlled via the SCENEBRIDGE_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent, allowing
// the rendered output to be displayed cleanly.
package ui
