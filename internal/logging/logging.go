package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

import (
	"gopkg.in/natefinch/lumberjack.v2"
)

import (
	"github.com/nanjiek/pixiu-behaviors/internal/config"
)

// New builds the process logger. A non-empty cfg.File writes to a rotated file
// instead of stdout. The returned closer flushes and closes that file.
func New(cfg config.LogCfg) (*slog.Logger, io.Closer) {
	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if strings.TrimSpace(cfg.File) != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    atLeast(cfg.MaxSizeMB, 100),
			MaxBackups: atLeast(cfg.MaxBackups, 7),
			MaxAge:     atLeast(cfg.MaxAgeDays, 14),
			Compress:   true,
		}
		out, closer = lj, lj
	}
	return NewWithWriter(cfg, out), closer
}

// NewWithWriter builds a logger writing to w.
func NewWithWriter(cfg config.LogCfg, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps debug|info|warn|error to a slog level; unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func atLeast(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
