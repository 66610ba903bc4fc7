package main

import (
	"github.com/spf13/cobra"

	"github.com/quantlab/residualscan/internal/config"
)

func newEvaluateCmd() *cobra.Command {
	var market string

	cmd := &cobra.Command{
		Use:   "evaluate SYMBOL",
		Short: "Evaluate a single symbol without a full scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			scanner := buildScanner(cfg)
			row, bullProb, err := scanner.EvaluateSymbol(cmd.Context(), args[0], market)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"symbol":    row.Symbol,
				"bull_prob": bullProb,
				"row":       row,
			})
		},
	}

	cmd.Flags().StringVar(&market, "market", "auto", "market selector (tw, us, auto)")
	return cmd
}
