package main

import (
	"io"
	"log/slog"
)

func logLevel(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return slog.LevelWarn
	case verbosity == 1:
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// configureLogging installs the process wide logger.
func configureLogging(w io.Writer, verbosity int) {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       logLevel(verbosity),
		ReplaceAttr: dropTimeAttr,
	})
	slog.SetDefault(slog.New(handler))
}

func dropTimeAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && len(groups) == 0 {
		return slog.Attr{}
	}
	return a
}
