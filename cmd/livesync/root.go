package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rickgao/livesync/internal/config"
)

const defaultConfigPath = "configs/livesync.local.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "livesync",
		Short:         "Live-sync client for a learning record store",
		Long:          "livesync keeps a local entity cache and list pages in sync with a learning record store over its live-update websocket.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")

	rootCmd.AddCommand(
		newRunCmd(&configPath),
		newVersionCmd(),
		newSchemasCmd(),
	)

	return rootCmd
}

// newLogger builds the process logger from the log section.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
