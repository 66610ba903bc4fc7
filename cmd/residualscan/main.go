package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const version = "v1.0.0"

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "residualscan",
		Short:   "Residual-momentum equity scanner",
		Version: version,
		Long: `residualscan strips market, sector and regional factor exposure from
daily returns and ranks the surviving idiosyncratic momentum, with
signal-lifecycle scoring and exit-condition flags per symbol.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to scan.yaml")

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newEvaluateCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newServeCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
