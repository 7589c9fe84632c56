package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/scribal-lang/scribal/internal/cli"
	"github.com/scribal-lang/scribal/internal/config"
	"github.com/scribal-lang/scribal/internal/logging"
)

// app bundles what every subcommand needs.
type app struct {
	cfg     config.Config
	palette cli.Palette
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		colorMode  string
		a          app
	)

	root := &cobra.Command{
		Use:           "scribal",
		Short:         "Multiparty protocol analysis toolchain",
		Long:          "scribal builds control-flow graphs from protocol sources, projects per-role state machines, and verifies deadlock-freedom, race-freedom, liveness and safety.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if colorMode != "" {
				cfg.Color = colorMode
			}
			a.cfg = cfg
			a.palette = cli.NewPalette(cfg.Color, os.Stdout)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "configuration file (default .scribal.yaml when present)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&colorMode, "color", "", "colour mode: auto, always, never")

	root.AddCommand(
		newCheckCmd(&a),
		newProjectCmd(&a),
		newGraphCmd(&a),
		newSimCmd(&a),
		newTraceCmd(&a),
		newWatchCmd(&a),
		newVersionCmd(),
	)
	return root
}

func (a *app) logger() (*slog.Logger, error) {
	level, err := logging.ParseLevel(a.cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{Level: level, Service: "scribal"}), nil
}

func newVersionCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cli.PrintVersion(cmd.OutOrStdout(), "scribal", jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON")
	return cmd
}
