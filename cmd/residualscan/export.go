package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantlab/residualscan/internal/config"
	"github.com/quantlab/residualscan/internal/data"
	"github.com/quantlab/residualscan/internal/regime"
	"github.com/quantlab/residualscan/internal/scan"
	"github.com/quantlab/residualscan/internal/store"
)

func newExportCmd() *cobra.Command {
	var (
		date       string
		inverseVol bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run the cross-sectional stage over a day's cached rows",
		Long: `export loads every persisted row for the date, standardizes raw
momentum across the batch (SNDZ), applies the sector cap and pairwise
correlation filter, and emits the ranked table with risk-parity
weights.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if date == "" {
				date = scan.TradeDate(time.Now())
			}
			if inverseVol {
				cfg.Ranking.InverseVol = true
			}

			fileStore := store.NewFileStore(cfg.DataDir)
			symbols := fileStore.ListSymbols(date)
			if len(symbols) == 0 {
				return fmt.Errorf("no cached rows for %s", date)
			}

			rows := make([]*scan.ResultRow, 0, len(symbols))
			for _, symbol := range symbols {
				var row scan.ResultRow
				found, err := fileStore.Load(date, symbol, &row)
				if err != nil {
					log.Warn().Str("symbol", symbol).Err(err).Msg("row load failed")
					continue
				}
				if found {
					row.Symbol = symbol
					rows = append(rows, &row)
				}
			}
			log.Info().Str("date", date).Int("rows", len(rows)).Msg("batch loaded")

			scan.Standardize(rows)

			ctx := cmd.Context()
			provider := data.NewYahooProvider()
			cacheCfg := cfg.Cache
			cacheCfg.RedisKeyDate = date
			cache := data.NewCache(provider, cacheCfg, nil)

			returns := make(map[string][]float64, len(rows))
			var bullProb float64 = 0.5
			for _, row := range rows {
				rets, err := cache.Returns(ctx, scan.ProviderSymbol(row.Symbol, cfg.Market))
				if err != nil {
					continue
				}
				returns[row.Symbol] = rets
			}
			if local, err := cache.Returns(ctx, localIndex(cfg.Market)); err == nil {
				_, bullProb = regime.Detect(local, regime.DefaultConfig())
			}

			ranking := scan.BuildRanking(rows, returns, bullProb, cfg.Ranking)
			return printJSON(ranking)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "trade date YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&inverseVol, "inverse-vol", false, "use inverse-volatility weights instead of HRP")
	return cmd
}

func localIndex(market string) string {
	if scan.IsLocalMarket(market) {
		return scan.LocalIndexSymbol
	}
	return scan.GlobalMarketSymbol
}
