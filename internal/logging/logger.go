package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "SCENEBRIDGE_LOG_LEVEL"

// Initialize creates a new logger with the specified level.
// If level is empty, it checks SCENEBRIDGE_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
//
// Output goes to stdout unless outputPaths are given. The MCP bridge passes
// "stderr" because stdout carries the protocol.
func Initialize(lvl string, outputPaths ...string) error {
	// If no level provided, check environment variable
	if lvl == "" {
		lvl = os.Getenv(LogLevelEnvVar)
	}

	// If still no level, use silent mode (nop logger)
	if lvl == "" {
		logger = zap.NewNop()
		return nil
	}

	level.SetLevel(ParseLevel(lvl))

	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	config := zap.Config{
		Level:            level,
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	// Customize encoder for better readability
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var err error
	logger, err = config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	return nil
}

// InitializeFromEnv initializes the logger from the SCENEBRIDGE_LOG_LEVEL
// environment variable. This is the recommended way to initialize logging
// for CLI commands that want silent mode by default.
func InitializeFromEnv() error {
	return Initialize("")
}

// ParseLevel maps a level name to a zap level. Unknown names map to info.
func ParseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLevel changes the level of an initialized logger in place.
// It has no effect in silent mode.
func SetLevel(lvl string) {
	level.SetLevel(ParseLevel(lvl))
}

// Level returns the current level name.
func Level() string {
	return level.Level().String()
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		// Fallback to silent logger if not initialized
		// This ensures no unexpected log output in CLI commands
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogConnection logs a connection event
func LogConnection(connID string, remoteAddr string, event string) {
	Info("Connection event",
		zap.String("conn_id", connID),
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

// LogCommand logs a processed command
func LogCommand(connID string, cmdType string, status string, durationMs float64) {
	Info("Command processed",
		zap.String("conn_id", connID),
		zap.String("type", cmdType),
		zap.String("status", status),
		zap.Float64("duration_ms", durationMs),
	)
}

// LogRawBytes logs raw bytes (useful for debugging framing issues)
func LogRawBytes(label string, data []byte) {
	if !GetLogger().Core().Enabled(zapcore.DebugLevel) {
		return
	}
	Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
		zap.String("ascii", asciiDump(data)),
	)
}

func hexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	// Limit to first 256 bytes for logging
	if len(data) > 256 {
		return hex.EncodeToString(data[:256]) + "..."
	}
	return hex.EncodeToString(data)
}

func asciiDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	// Limit to first 256 bytes
	if len(data) > 256 {
		data = data[:256]
	}

	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
