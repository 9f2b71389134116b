package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Options controls how Init builds the global logger.
type Options struct {
	Level  string // debug | info | warn | error
	Format string // console | json
	Output io.Writer
}

func Init(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if !strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(out).
		Level(ParseLevel(opts.Level)).
		With().Timestamp().Str("service", "newsbot").
		Logger()
	return Logger
}

func ParseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Error(msg string, err error) {
	Logger.Error().Err(err).Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

// CronLogger adapts a zerolog.Logger to the cron.Logger interface.
type CronLogger struct {
	Log zerolog.Logger
}

// Info logs cron's chatty lifecycle events at debug level. "skip" comes from
// SkipIfStillRunning and is promoted to warn.
func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		c.Log.Warn().Fields(keysAndValues).Msg("cron tick skipped: previous run still in progress")
		return
	}
	c.Log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.Log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
