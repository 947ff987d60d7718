package main

import (
	"webtap/internal/config"
	"webtap/internal/logger"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "webtap",
		Short:         "Capture and aggregate browser debug events",
		Long:          "webtap attaches to a browser's debugging endpoint, captures console errors and network activity, and serves the aggregated timeline over a local HTTP port.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file path (default: per-user config dir)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override the configured log level")

	cmd.AddCommand(newAgentCmd(flags))
	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newMCPCmd(flags))
	return cmd
}

// loadConfig resolves the config path and builds the logger from it.
func loadConfig(flags *rootFlags) (*config.Config, logger.Logger, error) {
	path := flags.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	l := logger.New(logger.Options{
		Level:  cfg.Log.Level,
		Writer: cfg.Log.Writer,
		File:   cfg.Log.File,
	})
	return cfg, l, nil
}
