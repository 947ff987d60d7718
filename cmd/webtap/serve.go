package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"webtap/internal/server"
	"webtap/internal/store"

	"github.com/spf13/cobra"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var (
		listen    string
		noArchive bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the aggregator: ingest bridge events and serve the query surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var archive *store.Archive
			if !noArchive && cfg.Sqlite.Dsn != "" {
				archive, err = store.NewArchive(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, l)
				if err != nil {
					l.Warn("archive unavailable, continuing without it", "error", err)
					archive = nil
				}
			}

			st := store.New(store.Config{
				ConsoleCap:   cfg.Buffers.ConsoleCap,
				NetworkCap:   cfg.Buffers.NetworkCap,
				DedupWindow:  time.Duration(cfg.Buffers.DedupWindowMS) * time.Millisecond,
				DedupPrefix:  cfg.Buffers.DedupPrefix,
				SummaryLimit: cfg.Summary.Limit,
				Archive:      archive,
				Logger:       l,
			})

			srv := &http.Server{
				Addr:    cfg.Listen,
				Handler: server.New(st, l).Handler(),
			}
			errCh := make(chan error, 1)
			go func() {
				l.Info("aggregator listening", "addr", cfg.Listen)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				l.Warn("shutdown incomplete", "error", err)
			}
			l.Info("aggregator stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "query listen address (overrides config)")
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "disable the sqlite event archive")
	return cmd
}
