// Package logging configures the process-wide zerolog logger and adapts it
// to the logger interfaces expected by watermill and retryablehttp.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Settings controls level, output format and caller annotation.
type Settings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Caller bool   `mapstructure:"caller"`
}

func DefaultSettings() Settings {
	return Settings{Level: "info", Format: "auto"}
}

// ParseLevel converts a string level into zerolog.Level with a safe default.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init installs the global logger on stderr.
func Init(s Settings) error {
	logger, err := New(s, os.Stderr)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(ParseLevel(s.Level))
	log.Logger = logger
	return nil
}

// New builds a logger writing to w. Format is one of auto, console or json;
// auto picks console output when w is a terminal.
func New(s Settings, w io.Writer) (zerolog.Logger, error) {
	var out io.Writer
	switch strings.ToLower(s.Format) {
	case "", "auto":
		out = w
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
		}
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: !isTerminal(w)}
	case "json":
		out = w
	default:
		return zerolog.Nop(), errors.Errorf("unknown log format %q", s.Format)
	}
	ctx := zerolog.New(out).Level(ParseLevel(s.Level)).With().Timestamp()
	if s.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
