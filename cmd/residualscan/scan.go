package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantlab/residualscan/internal/config"
	"github.com/quantlab/residualscan/internal/data"
	"github.com/quantlab/residualscan/internal/scan"
	"github.com/quantlab/residualscan/internal/store"
)

func newScanCmd() *cobra.Command {
	var (
		market    string
		topN      int
		startFrom string
		force     bool
		symbols   []string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the daily residual-momentum scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if market != "" {
				cfg.Market = market
			}
			if topN > 0 {
				cfg.TopN = topN
			}

			scanner := buildScanner(cfg)
			summary, err := scanner.Run(cmd.Context(), scan.Options{
				Market:    cfg.Market,
				Symbols:   symbols,
				TopN:      cfg.TopN,
				StartFrom: startFrom,
				Force:     force,
			})
			if err != nil {
				return err
			}
			return printJSON(summaryView(summary))
		},
	}

	cmd.Flags().StringVar(&market, "market", "", "market selector (tw, tw_otc, us, us_full)")
	cmd.Flags().IntVar(&topN, "top", 0, "top/bottom slice size")
	cmd.Flags().StringVar(&startFrom, "start-from", "", "resume from this symbol")
	cmd.Flags().BoolVar(&force, "force", false, "re-evaluate symbols already cached for today")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "explicit symbol list, bypasses universe resolution")
	return cmd
}

func buildScanner(cfg config.Config) *scan.Scanner {
	provider := data.NewYahooProvider()
	fileStore := store.NewFileStore(cfg.DataDir)

	opts := []scan.ScannerOption{
		scan.WithConcurrency(cfg.Workers),
		scan.WithCacheConfig(cfg.Cache),
		scan.WithExitConfig(cfg.Exits),
	}
	if cfg.Redis.Addr != "" {
		opts = append(opts, scan.WithRedis(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})))
		log.Info().Str("addr", cfg.Redis.Addr).Msg("warm cache enabled")
	}

	// The stock-list, fundamental and sector-benchmark collaborators
	// are broker-specific; without them explicit --symbols drives the
	// universe and sector stripping falls back to the local index.
	return scan.NewScanner(provider, nil, fileStore, opts...)
}

// summaryView trims the full target rows out of the CLI output; the
// per-symbol detail lives in the JSON cache entries.
func summaryView(s *scan.Summary) map[string]any {
	return map[string]any{
		"run_id":         s.RunID,
		"market":         s.Market,
		"trade_date":     s.TradeDate,
		"regime":         s.Regime,
		"bull_prob":      s.BullProb,
		"hurst":          s.Hurst,
		"scanned":        s.Scanned,
		"qualified":      s.Qualified,
		"saved":          s.Saved,
		"skipped":        s.Skipped,
		"failed":         s.Failed,
		"fundamentals":   s.Merged,
		"top_targets":    s.Top,
		"bottom_targets": s.Bottom,
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
