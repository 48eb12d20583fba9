// Package logging builds the zap loggers shared by the supervisor, its workers
// and the CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Config selects the level and encoding of a logger.
type Config struct {
	Level string
	// Format is one of auto, json or console. Auto picks console output when
	// the destination is a terminal.
	Format string
}

// New constructs a logger writing to w. A nil writer logs to stderr.
func New(cfg Config, w io.Writer) (*zap.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	level := zapcore.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		if err := level.Set(cfg.Level); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	encoder, err := newEncoder(cfg.Format, w)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller()), nil
}

func newEncoder(format string, w io.Writer) (zapcore.Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "auto":
		if isTerminal(w) {
			return consoleEncoder(), nil
		}
		return jsonEncoder(), nil
	case "json":
		return jsonEncoder(), nil
	case "console":
		return consoleEncoder(), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func jsonEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(cfg)
}

func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
