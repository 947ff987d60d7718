package main

import (
	"webtap/internal/mcptool"
	"webtap/internal/symbols"

	"github.com/spf13/cobra"
)

func newMCPCmd(flags *rootFlags) *cobra.Command {
	var base string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the aggregator's query tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if base == "" {
				base = "http://" + cfg.Listen
			}
			var engine *symbols.Engine
			if cfg.Symbols.Engine != "" {
				engine = symbols.New(cfg.Symbols.Engine, nil)
			}
			return mcptool.ServeStdio(mcptool.NewServer(mcptool.NewClient(base), engine))
		},
	}
	cmd.Flags().StringVar(&base, "aggregator", "", "aggregator base URL (default: http://<listen addr>)")
	return cmd
}
