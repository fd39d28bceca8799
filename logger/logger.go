package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger represents a structured logger
type Logger struct {
	logger zerolog.Logger
}

var (
	// Default is the default logger instance
	Default *Logger
)

// Init initializes the default console logger. The level comes from
// LOG_LEVEL, else from INVENTORY_ENVIRONMENT.
func Init() {
	level := getLogLevel()

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)

	Default = newConsole(os.Stdout, level)

	Default.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}

// newConsole creates a human readable logger writing to w
func newConsole(w io.Writer, level zerolog.Level) *Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    w != os.Stdout,
	}
	return &Logger{logger: zerolog.New(output).Level(level).With().Timestamp().Logger()}
}

// getLogLevel returns the log level from environment variable
func getLogLevel() zerolog.Level {
	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		if os.Getenv("INVENTORY_ENVIRONMENT") == "production" {
			return zerolog.InfoLevel
		}
		return zerolog.DebugLevel
	}

	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// WithField creates a new logger with a single field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// Debug returns a debug event
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info returns an info event
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn returns a warn event
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error returns an error event
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// component returns a child of the default logger tagged with a component
func component(name string) *Logger {
	if Default == nil {
		Init()
	}
	return Default.WithField("component", name)
}

// ForCrawler creates a logger for a crawl stage such as discovery or detail
func ForCrawler(stage string) *Logger {
	return component("crawler").WithField("stage", stage)
}

// ForBrowser creates a logger for a browsing session
func ForBrowser(mode string) *Logger {
	return component("browser").WithField("mode", mode)
}

// ForStore creates a logger for the snapshot store
func ForStore() *Logger {
	return component("store")
}

// ForWorker creates a logger for the worker
func ForWorker() *Logger {
	return component("worker")
}

// ForPublisher creates a logger for the publisher
func ForPublisher() *Logger {
	return component("publisher")
}

// ForCache creates a logger for the cache
func ForCache() *Logger {
	return component("cache")
}
