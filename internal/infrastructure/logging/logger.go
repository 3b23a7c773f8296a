package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/config"
)

// ServiceName is attached to every entry as the "service" field.
const ServiceName = "nvdisplay"

// Logger is a slog.Logger carrying the service and version fields.
// It is safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New creates a logger from the logging section of the config.
//
// It configures:
//   - output encoding (json for the daemon, text for the CLI)
//   - level filtering (debug, info, warn, error)
//   - the service and version fields on every entry
//   - the destination (stdout or stderr)
//
// Parameters:
//   - cfg: level, format and output
//   - version: build version attached to every entry
//
// Returns:
//   - *Logger: ready for use from any goroutine
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, destination(cfg.Output))
}

// NewWithWriter is New with an explicit destination; Output is ignored.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	h := handler(cfg.Format, w, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	return &Logger{Logger: slog.New(h.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	}))}
}

func destination(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// handler picks the encoder; anything but "text" is JSON.
func handler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel maps debug, warn/warning and error; anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a child logger carrying extra fields. The parent is not
// changed.
//
//	worker := logger.With("display", "0:0")
//	worker.Info("vibrance applied") // includes display=0:0
//
// Parameters:
//   - args: alternating keys and values, as for slog
//
// Returns:
//   - *Logger: the child
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component is shorthand for With("component", name).
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the text-to-stderr logger used before the config is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "text", Output: "stderr"}, "dev")
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}
