package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity of the log message
type LogLevel int

const (
	// DEBUG level for detailed information (mostly useful for development)
	DEBUG LogLevel = iota
	// INFO level for general operational information
	INFO
	// WARN level for non-critical issues that might need attention
	WARN
	// ERROR level for error events that might still allow the application to continue
	ERROR
	// FATAL level for critical errors that prevent features from working
	FATAL
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// zerologLevel maps the level onto the zerolog backend
func (l LogLevel) zerologLevel() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case INFO:
		return zerolog.InfoLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger represents a logger instance
type Logger struct {
	level     LogLevel
	output    io.Writer
	prefix    string
	useColors bool
	zl        zerolog.Logger
	mu        sync.RWMutex
}

// LoggerOption is a function that configures a Logger
type LoggerOption func(*Logger)

// NewLogger creates a new logger with the specified options
func NewLogger(options ...LoggerOption) *Logger {
	// Default configuration
	logger := &Logger{
		level:     INFO,
		output:    os.Stdout,
		prefix:    "",
		useColors: false,
	}

	// Apply options
	for _, option := range options {
		option(logger)
	}

	logger.zl = logger.build()
	return logger
}

// build creates the zerolog backend from the current configuration
func (l *Logger) build() zerolog.Logger {
	out := l.output
	if l.useColors {
		out = zerolog.ConsoleWriter{
			Out:        l.output,
			TimeFormat: "2006-01-02 15:04:05.000",
		}
	}

	ctx := zerolog.New(out).Level(l.level.zerologLevel()).With().Timestamp()
	if l.prefix != "" {
		ctx = ctx.Str("service", l.prefix)
	}
	return ctx.Logger()
}

// WithLevel sets the minimum log level
func WithLevel(level LogLevel) LoggerOption {
	return func(l *Logger) {
		l.level = level
	}
}

// WithOutput sets the output writer
func WithOutput(output io.Writer) LoggerOption {
	return func(l *Logger) {
		l.output = output
	}
}

// WithPrefix sets the service name attached to every log line
func WithPrefix(prefix string) LoggerOption {
	return func(l *Logger) {
		l.prefix = prefix
	}
}

// WithColors enables human readable console output
func WithColors(useColors bool) LoggerOption {
	return func(l *Logger) {
		l.useColors = useColors
	}
}

// SetLevel changes the logger's minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.zl = l.zl.Level(level.zerologLevel())
}

// With returns a child logger that adds a field to every line
func (l *Logger) With(key string, value interface{}) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return &Logger{
		level:     l.level,
		output:    l.output,
		prefix:    l.prefix,
		useColors: l.useColors,
		zl:        l.zl.With().Interface(key, value).Logger(),
	}
}

// log logs a message with the specified level and optional formatting arguments
func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	l.mu.RLock()
	if level < l.level {
		l.mu.RUnlock()
		return
	}
	zl := l.zl
	l.mu.RUnlock()

	var event *zerolog.Event
	switch level {
	case DEBUG:
		event = zl.Debug()
	case INFO:
		event = zl.Info()
	case WARN:
		event = zl.Warn()
	case ERROR:
		event = zl.Error()
	default:
		// WithLevel writes at fatal severity without exiting; Fatal() exits afterwards
		event = zl.WithLevel(zerolog.FatalLevel)
	}
	if event == nil {
		return
	}

	// Skip log() and the public wrapper
	event = event.Caller(2)

	if len(args) > 0 {
		event.Msg(fmt.Sprintf(format, args...))
	} else {
		event.Msg(format)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

// Fatal logs a fatal message
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(FATAL, format, args...)
	os.Exit(1)
}

// ParseLevel parses a string into a LogLevel
func ParseLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Nop returns a logger that discards everything, handy for tests
func Nop() *Logger {
	return NewLogger(WithOutput(io.Discard), WithLevel(FATAL))
}

// Default logger instance
var DefaultLogger = NewLogger()

// SetDefaultLogger sets the default logger
func SetDefaultLogger(logger *Logger) {
	DefaultLogger = logger
}

// Helper functions that use the default logger

// Debug logs a debug message to the default logger
func Debug(format string, args ...interface{}) {
	DefaultLogger.Debug(format, args...)
}

// Info logs an info message to the default logger
func Info(format string, args ...interface{}) {
	DefaultLogger.Info(format, args...)
}

// Warn logs a warning message to the default logger
func Warn(format string, args ...interface{}) {
	DefaultLogger.Warn(format, args...)
}

// Error logs an error message to the default logger
func Error(format string, args ...interface{}) {
	DefaultLogger.Error(format, args...)
}

// Fatal logs a fatal message to the default logger and exits
func Fatal(format string, args ...interface{}) {
	DefaultLogger.Fatal(format, args...)
}
