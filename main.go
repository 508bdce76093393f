package main

import (
	"log/slog"
	"os"

	"github.com/babelcloud/gbox/packages/recorder/cmd"
	"github.com/babelcloud/gbox/packages/recorder/config"
)

func main() {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(config.GetLogLevel())); err != nil {
		level = slog.LevelInfo
	}
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
