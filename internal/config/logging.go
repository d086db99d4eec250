package config

import (
	"io"
	"log/slog"

	"github.com/hpv-information-centre/reportcompiler/internal/foundation/normalization"
)

// LogLevel is a normalised log level name.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogFormat selects the slog handler.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

var logLevels = normalization.NewNormalizer(map[string]LogLevel{
	"debug":   LogDebug,
	"info":    LogInfo,
	"warn":    LogWarn,
	"warning": LogWarn,
	"error":   LogError,
}, LogInfo)

var logFormats = normalization.NewNormalizer(map[string]LogFormat{
	"text":    FormatText,
	"console": FormatText,
	"json":    FormatJSON,
}, FormatText)

// Level converts l to a slog level.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w.
func NewLogger(w io.Writer, level LogLevel, format LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level.Level()}
	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
