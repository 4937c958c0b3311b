// Package xlog is a thin structured-logging wrapper, modeled on the
// teacher's log/compat.go shim: every package in this module logs
// through one leveled, structured interface rather than reaching for
// fmt.Println or the stdlib log package directly.
package xlog

import (
	"log/slog"
	"os"

	luxlog "github.com/luxfi/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logging capability the rest of this module
// depends on. github.com/luxfi/log's root logger satisfies it directly.
type Logger interface {
	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)
}

// Options configures the root logger.
type Options struct {
	// Level is one of "trace", "debug", "info", "warn", "error", "crit".
	Level string
	// FilePath, if set, rotates logs through lumberjack instead of
	// writing to stderr.
	FilePath string
}

// New builds a logger per opts. With no file path it defers entirely to
// github.com/luxfi/log's default handler; with a file path it builds a
// slog-backed logger writing through a rotating file, since luxfi/log's
// own handler is stderr-oriented.
func New(opts Options) Logger {
	if opts.FilePath == "" {
		return luxlog.Root()
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	level, err := luxlog.ToLevel(orDefault(opts.Level, "info"))
	if err != nil {
		level = luxlog.LevelInfo
	}
	handler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: slog.Level(level)})
	return &slogLogger{slog.New(handler)}
}

// SetDefault installs l as the package-wide default logger that
// luxfi/log's global Info/Warn/... helpers delegate to.
func SetDefault(l Logger) {
	if ll, ok := l.(luxlog.Logger); ok {
		luxlog.SetDefault(ll)
		return
	}
	os.Stderr.WriteString("xlog: SetDefault given a non-luxfi/log logger; global helpers will not use it\n")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// slogLogger adapts a stdlib *slog.Logger to the Logger interface, used
// when log output is redirected to a rotating file.
type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Trace(msg string, ctx ...any) { s.l.Debug(msg, ctx...) }
func (s *slogLogger) Debug(msg string, ctx ...any) { s.l.Debug(msg, ctx...) }
func (s *slogLogger) Info(msg string, ctx ...any)  { s.l.Info(msg, ctx...) }
func (s *slogLogger) Warn(msg string, ctx ...any)  { s.l.Warn(msg, ctx...) }
func (s *slogLogger) Error(msg string, ctx ...any) { s.l.Error(msg, ctx...) }
func (s *slogLogger) Crit(msg string, ctx ...any)  { s.l.Error(msg, append(ctx, "level", "crit")...) }
