package main

import (
	"github.com/spf13/cobra"

	"github.com/quantlab/residualscan/internal/config"
	"github.com/quantlab/residualscan/internal/ops"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ops endpoint (/health, /scan/latest, /metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}
			return ops.NewServer(cfg.ListenAddr).ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :9090)")
	return cmd
}
