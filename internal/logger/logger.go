// Package logger provides process-wide structured logging backed by zerolog.
//
// Calls take a message followed by key/value pairs:
//
//	logger.Info("transport opened", "component", "realtime", "url", url)
//
// The level comes from LOG_LEVEL at startup and can be changed with Configure.
// Console output is used when stderr is a terminal, JSON otherwise.
package logger

import (
	"io"
	"os"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var current atomic.Pointer[zerolog.Logger]

func init() {
	Configure(os.Getenv("LOG_LEVEL"), os.Getenv("TUTORVOICE_LOG_FORMAT"), os.Stderr)
}

// Configure replaces the global logger. An empty format selects console
// output for terminals and JSON otherwise.
func Configure(level string, format string, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	if format == "" {
		format = FormatJSON
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			format = FormatConsole
		}
	}

	out := w
	if strings.EqualFold(format, FormatConsole) {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	l := zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Logger()
	current.Store(&l)
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// SetVerbose switches between debug and info without touching the output.
func SetVerbose(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	l := current.Load().Level(level)
	current.Store(&l)
}

// Logger returns the current global logger.
func Logger() *zerolog.Logger {
	return current.Load()
}

func Debug(msg string, args ...any) {
	emit(current.Load().Debug(), msg, args)
}

func Info(msg string, args ...any) {
	emit(current.Load().Info(), msg, args)
}

func Warn(msg string, args ...any) {
	emit(current.Load().Warn(), msg, args)
}

func Error(msg string, args ...any) {
	emit(current.Load().Error(), msg, args)
}

// Component logs with a fixed component field.
type Component struct {
	name string
}

// With returns a logger that tags every entry with component.
func With(component string) Component {
	return Component{name: component}
}

func (c Component) Debug(msg string, args ...any) {
	emit(current.Load().Debug().Str("component", c.name), msg, args)
}

func (c Component) Info(msg string, args ...any) {
	emit(current.Load().Info().Str("component", c.name), msg, args)
}

func (c Component) Warn(msg string, args ...any) {
	emit(current.Load().Warn().Str("component", c.name), msg, args)
}

func (c Component) Error(msg string, args ...any) {
	emit(current.Load().Error().Str("component", c.name), msg, args)
}

func emit(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}
	if len(args)%2 == 1 {
		args = append(args, "(MISSING)")
	}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "!BADKEY"
		}
		switch v := args[i+1].(type) {
		case error:
			event = event.AnErr(key, v)
		case string:
			event = event.Str(key, RedactSensitiveData(v))
		default:
			event = event.Interface(key, v)
		}
	}
	event.Msg(msg)
}

var apiKeyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9_-]{16,}`),
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),
	regexp.MustCompile(`(?i)(api[_-]?key=)[^&\s]+`),
}

// RedactSensitiveData masks API keys and bearer tokens, keeping a short
// prefix for debugging.
func RedactSensitiveData(input string) string {
	out := input
	for _, pattern := range apiKeyPatterns {
		out = pattern.ReplaceAllStringFunc(out, func(match string) string {
			switch {
			case strings.HasPrefix(match, "sk-"):
				return match[:4] + "...[REDACTED]"
			case strings.HasPrefix(match, "Bearer"):
				return "Bearer [REDACTED]"
			default:
				if idx := strings.Index(match, "="); idx >= 0 {
					return match[:idx+1] + "[REDACTED]"
				}
				return "[REDACTED]"
			}
		})
	}
	return out
}
