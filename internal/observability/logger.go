// Package observability configures structured logging for the kcidb tools
package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerConfig configures NewLogger
type LoggerConfig struct {
	Level     string
	File      string    // rotated log file, in addition to Output
	Output    io.Writer // defaults to os.Stderr
	Console   *bool     // force or disable human-readable output; TTY detection otherwise
	Component string
	Version   string
}

// Logger wraps a zerolog logger together with the file it may write to
type Logger struct {
	zerolog.Logger
	file *lumberjack.Logger
}

// Close flushes and closes the rotated log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// NewLogger builds a logger writing to stderr, as colored console lines on
// a terminal and as JSON otherwise. When File is set every entry is also
// appended, as JSON, to a size-rotated file.
func NewLogger(config LoggerConfig) (*Logger, error) {
	level, err := LevelFromString(config.Level)
	if err != nil {
		return nil, err
	}

	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	console := isTerminal(out)
	if config.Console != nil {
		console = *config.Console
	}
	if console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	result := &Logger{}
	writer := out
	if config.File != "" {
		result.file = &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		writer = zerolog.MultiLevelWriter(out, result.file)
	}

	ctx := zerolog.New(writer).Level(level).With().Timestamp()
	if config.Component != "" {
		ctx = ctx.Str("component", config.Component)
	}
	if config.Version != "" {
		ctx = ctx.Str("version", config.Version)
	}
	result.Logger = ctx.Logger()
	return result, nil
}

// LevelFromString parses a log level name; empty means info
func LevelFromString(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
	return parsed, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
