package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"webtap/internal/bridge"
	"webtap/internal/session"

	"github.com/spf13/cobra"
)

func newAgentCmd(flags *rootFlags) *cobra.Command {
	var (
		devtools string
		bridgeTo string
		capture  bool
	)
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Attach to the browser and forward captured events to the aggregator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if devtools != "" {
				cfg.DevToolsURL = devtools
			}
			if bridgeTo != "" {
				cfg.BridgeURL = bridgeTo
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sender := bridge.NewSender(cfg.BridgeURL, bridge.Options{
				RetryInterval: time.Duration(cfg.Bridge.ReconnectMS) * time.Millisecond,
				Logger:        l,
			})
			defer sender.Close()

			sup := session.NewSupervisor(cfg, sender, capture, l)
			l.Info("agent starting", "devtools", cfg.DevToolsURL, "bridge", cfg.BridgeURL)
			if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			l.Info("agent stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&devtools, "devtools", "", "browser debugging endpoint (overrides config)")
	cmd.Flags().StringVar(&bridgeTo, "bridge", "", "aggregator bridge websocket URL (overrides config)")
	cmd.Flags().BoolVar(&capture, "capture", false, "start network capture on attach instead of waiting for start_capture")
	return cmd
}
