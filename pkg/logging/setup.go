package logging

import (
	"io"
	"log/slog"
	"os"
)

// Setup installs the default slog handler: text to stderr, or to a
// rotating file when path is non-empty. It returns a closer for the
// file (nil when logging to stderr).
func Setup(level slog.Level, path string) (io.Closer, error) {
	var w io.Writer = os.Stderr
	var closer io.Closer

	if path != "" {
		rf, err := NewRotatingFile(path)
		if err != nil {
			return nil, err
		}
		w = rf
		closer = rf
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return closer, nil
}

// ParseLevel maps a config string onto a slog level, defaulting to
// info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
