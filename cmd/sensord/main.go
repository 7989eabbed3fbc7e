// Package main is the entry point for sensord, the sensorpulse engine
// daemon. "serve" runs the engine behind the HTTP API with its sinks and the
// optional MQTT source; "replay" feeds a recorded event log through an engine
// driven by the log's own timestamps.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"sensorpulse/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	build := config.NewBuildInfo()
	root := &cobra.Command{
		Use:           "sensord",
		Short:         "Streaming sensor analytics and predictive insight engine",
		Version:       build.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newReplayCmd())
	return root
}

// newLogger builds the JSON logger used by every command.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
