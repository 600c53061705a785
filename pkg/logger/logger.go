package logger

import (
	"io"
	"log/slog"
	"os"
)

// SetupGlobal installs the default slog logger on stdout.
func SetupGlobal(debug bool, showSource bool) {
	SetupGlobalTo(os.Stdout, debug, showSource)
}

func SetupGlobalTo(w io.Writer, debug bool, showSource bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: showSource,
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
}
