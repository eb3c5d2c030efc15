// Package cli wires the daemon and the one-shot maintenance commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/walnutpair/previewd/internal/config"
)

type Dependencies struct {
	ConfigPath string
	Config     config.Config
	Log        *slog.Logger
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "previewd",
		Short: "Camera preview streaming and capture orchestration daemon",
		Long: "previewd connects to a camera backend service, streams live preview\n" +
			"frames over websockets, and exposes the aggregate state over a local\n" +
			"HTTP API and optionally MQTT.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(deps.ConfigPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			deps.Config = cfg
			deps.Log = newLogger(cfg.Log)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&deps.ConfigPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewDevicesCmd(deps))
	rootCmd.AddCommand(NewStartCmd(deps))
	rootCmd.AddCommand(NewStopCmd(deps))
	rootCmd.AddCommand(NewCaptureCmd(deps))

	return rootCmd
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
