// Package logger provides structured logging for corekv
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with corekv-specific functionality
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	// Set global log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Pretty printing for development
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	// Create logger
	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "corekv").
		Logger()

	// Add caller information if requested
	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Info logs an info message
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) *zerolog.Event {
	return l.zlog.Fatal().Str("msg", msg)
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// RecoveryLogger returns a logger for the recovery manager's
// analysis/redo/undo passes.
func (l *Logger) RecoveryLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "recovery").Logger()}
}

// CheckpointLogger returns a logger for the checkpoint manager.
func (l *Logger) CheckpointLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "checkpoint").Logger()}
}

// CompactionLogger returns a logger for the LSM tree's background
// flush/merge threads.
func (l *Logger) CompactionLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "lsm").Logger()}
}

// AdminRPCLogger returns a logger for admin RPC calls.
func (l *Logger) AdminRPCLogger(method string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "adminrpc").
			Str("method", method).
			Logger(),
	}
}

// LogRecoveryPass logs the start or completion of one of recovery's
// three passes (analysis, redo, undo).
func (l *Logger) LogRecoveryPass(pass string, duration time.Duration, err error) {
	event := l.zlog.Info().
		Str("component", "recovery").
		Str("pass", pass).
		Dur("duration_ms", duration)
	if err != nil {
		event = l.zlog.Error().
			Str("component", "recovery").
			Str("pass", pass).
			Dur("duration_ms", duration).
			Err(err)
	}
	event.Msg("recovery pass completed")
}

// LogCheckpoint logs a fuzzy checkpoint's begin/end LSNs and the size
// of the dirty-page and active-transaction tables it captured.
func (l *Logger) LogCheckpoint(beginLSN, endLSN uint64, dptSize, attSize int, duration time.Duration) {
	l.zlog.Info().
		Str("component", "checkpoint").
		Uint64("begin_lsn", beginLSN).
		Uint64("end_lsn", endLSN).
		Int("dpt_size", dptSize).
		Int("att_size", attSize).
		Dur("duration_ms", duration).
		Msg("checkpoint completed")
}

// LogCompaction logs an LSM tree flush or sorted-run merge.
func (l *Logger) LogCompaction(kind string, runsIn, runsOut int, duration time.Duration, err error) {
	event := l.zlog.Info().
		Str("component", "lsm").
		Str("kind", kind).
		Int("runs_in", runsIn).
		Int("runs_out", runsOut).
		Dur("duration_ms", duration)
	if err != nil {
		event = l.zlog.Error().
			Str("component", "lsm").
			Str("kind", kind).
			Err(err)
	}
	event.Msg("lsm compaction completed")
}

// LogServerStart logs server startup
func (l *Logger) LogServerStart(port int, dbPath string) {
	l.zlog.Info().
		Str("event", "server_start").
		Int("port", port).
		Str("database", dbPath).
		Msg("corekv server starting")
}

// LogServerReady logs when server is ready
func (l *Logger) LogServerReady(port int) {
	l.zlog.Info().
		Str("event", "server_ready").
		Int("port", port).
		Msg("corekv server ready to accept connections")
}

// LogServerShutdown logs server shutdown
func (l *Logger) LogServerShutdown() {
	l.zlog.Info().
		Str("event", "server_shutdown").
		Msg("corekv server shutting down")
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		// Initialize with defaults if not set
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
