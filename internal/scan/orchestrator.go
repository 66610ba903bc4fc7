package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantlab/residualscan/internal/data"
	"github.com/quantlab/residualscan/internal/exits"
	"github.com/quantlab/residualscan/internal/factors"
	"github.com/quantlab/residualscan/internal/metrics"
	"github.com/quantlab/residualscan/internal/regime"
)

// Market selectors.
const (
	MarketLocal        = "tw"
	MarketLocalOTC     = "tw_otc"
	MarketRegional     = "us"
	MarketRegionalFull = "us_full"
)

// Concurrency bounds the three pipeline stages independently. The
// evaluation pool stays small to respect market-data rate limits; the
// fundamental provider tolerates more parallel pages.
type Concurrency struct {
	EvalWorkers    int `yaml:"eval_workers"`    // default 3
	FundamentalMax int `yaml:"fundamental_max"` // default 12
	SaveWorkers    int `yaml:"save_workers"`    // default 3
}

// DefaultConcurrency returns the standard stage limits.
func DefaultConcurrency() Concurrency {
	return Concurrency{EvalWorkers: 3, FundamentalMax: 12, SaveWorkers: 3}
}

// Options selects what one scan run covers.
type Options struct {
	Market    string
	Symbols   []string // explicit list, bypasses universe resolution
	TopN      int
	StartFrom string // resume point within the resolved universe
	Force     bool   // re-evaluate symbols already cached for today
}

// Summary is the aggregate outcome of a run.
type Summary struct {
	RunID     string       `json:"run_id"`
	Market    string       `json:"market"`
	TradeDate string       `json:"trade_date"`
	Regime    string       `json:"regime"`
	BullProb  float64      `json:"bull_prob"`
	Hurst     float64      `json:"hurst"`
	Scanned   int          `json:"scanned"`
	Qualified int          `json:"qualified"`
	Saved     int          `json:"saved"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Merged    int          `json:"fundamentals_merged"`
	Targets   []*ResultRow `json:"targets"`
	Top       []*ResultRow `json:"top_targets"`
	Bottom    []*ResultRow `json:"bottom_targets"`
}

// Scanner runs the daily scan against injected collaborators. The
// fundamental, sector and factor providers are optional; a missing one
// degrades the affected fields to nil rather than failing the run.
type Scanner struct {
	provider     data.Provider
	stocks       StockListProvider
	fundamentals FundamentalProvider
	sectors      SectorBenchmarkProvider
	ff3          FactorProvider
	store        CacheStore
	redisClient  *redis.Client

	cacheCfg data.CacheConfig
	workers  Concurrency
	exitCfg  exits.Config
	now      func() time.Time
}

// ScannerOption customizes optional collaborators.
type ScannerOption func(*Scanner)

// WithFundamentals attaches the fundamental-data stream.
func WithFundamentals(p FundamentalProvider) ScannerOption {
	return func(s *Scanner) { s.fundamentals = p }
}

// WithSectorBenchmarks attaches the sector benchmark resolver.
func WithSectorBenchmarks(p SectorBenchmarkProvider) ScannerOption {
	return func(s *Scanner) { s.sectors = p }
}

// WithFactorProvider attaches the regional factor source.
func WithFactorProvider(p FactorProvider) ScannerOption {
	return func(s *Scanner) { s.ff3 = p }
}

// WithRedis attaches a warm return-series cache shared across runs.
func WithRedis(c *redis.Client) ScannerOption {
	return func(s *Scanner) { s.redisClient = c }
}

// WithConcurrency overrides the stage worker limits.
func WithConcurrency(c Concurrency) ScannerOption {
	return func(s *Scanner) { s.workers = c }
}

// WithCacheConfig overrides the data-layer fetch tuning.
func WithCacheConfig(cfg data.CacheConfig) ScannerOption {
	return func(s *Scanner) { s.cacheCfg = cfg }
}

// WithExitConfig overrides the exit rule thresholds.
func WithExitConfig(cfg exits.Config) ScannerOption {
	return func(s *Scanner) { s.exitCfg = cfg }
}

// WithClock overrides the trade-date clock.
func WithClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) { s.now = now }
}

// NewScanner wires a scanner over the required collaborators.
func NewScanner(provider data.Provider, stocks StockListProvider, store CacheStore, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		provider: provider,
		stocks:   stocks,
		store:    store,
		cacheCfg: data.DefaultCacheConfig(),
		workers:  DefaultConcurrency(),
		exitCfg:  exits.DefaultConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TradeDate maps a wall-clock instant to its trading date: runs
// between midnight and 6am belong to the previous session.
func TradeDate(now time.Time) string {
	if now.Hour() < 6 {
		now = now.AddDate(0, 0, -1)
	}
	return now.Format("2006-01-02")
}

// Run executes the full scan state machine: universe resolution,
// factor preload, merged evaluation, incremental persistence and
// aggregation. Per-symbol failures are counted, never fatal.
func (s *Scanner) Run(ctx context.Context, opts Options) (*Summary, error) {
	start := s.now()
	tradeDate := TradeDate(start)
	summary := &Summary{
		RunID:     uuid.NewString(),
		Market:    opts.Market,
		TradeDate: tradeDate,
	}
	logger := log.With().Str("run_id", summary.RunID).Str("market", opts.Market).Logger()

	// RESOLVE_UNIVERSE
	universe, err := s.resolveUniverse(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("resolve universe: %w", err)
	}
	universe = skipForward(universe, opts.StartFrom)
	if !opts.Force {
		var skipped int
		universe, skipped = s.subtractCached(universe, tradeDate)
		summary.Skipped = skipped
		metrics.SymbolsScanned.WithLabelValues(metrics.OutcomeCached).Add(float64(skipped))
	}
	summary.Scanned = len(universe)
	logger.Info().Int("universe", len(universe)).Int("skipped", summary.Skipped).
		Str("trade_date", tradeDate).Msg("universe resolved")

	// PRELOAD_FACTORS
	cacheCfg := s.cacheCfg
	cacheCfg.RedisKeyDate = tradeDate
	cache := data.NewCache(s.provider, cacheCfg, s.redisClient)

	preload, err := s.preloadFactors(ctx, cache, opts.Market)
	if err != nil {
		return nil, fmt.Errorf("preload factors: %w", err)
	}
	_, bullProb := regime.Detect(preload.Local, regime.DefaultConfig())
	summary.BullProb = round(bullProb, 2)
	summary.Regime = regime.Label(bullProb)
	summary.Hurst = s.hurstEstimate(ctx, cache)

	if len(universe) == 0 {
		logger.Info().Msg("nothing to scan")
		return summary, nil
	}

	// MERGED_EVALUATE + INCREMENTAL_PERSIST
	evaluator := NewEvaluator(cache, s.provider, s.sectors, opts.Market, preload, s.exitCfg)
	rows, failed, merged := s.runPipeline(ctx, logger, evaluator, universe, tradeDate)
	summary.Failed = failed
	summary.Merged = merged
	summary.Qualified = len(rows)
	summary.Saved = len(rows)

	// AGGREGATE
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].RawMomentumValue() > rows[j].RawMomentumValue()
	})
	summary.Targets = rows
	if opts.TopN > 0 && len(rows) > 0 {
		n := minInt(opts.TopN, len(rows))
		summary.Top = rows[:n]
		if len(rows) > opts.TopN {
			summary.Bottom = rows[len(rows)-n:]
		}
	}

	metrics.ScanDuration.Observe(s.now().Sub(start).Seconds())
	logger.Info().Int("qualified", summary.Qualified).Int("failed", summary.Failed).
		Int("fundamentals", summary.Merged).Str("regime", summary.Regime).
		Msg("scan complete")
	return summary, nil
}

// EvaluateSymbol runs the per-symbol pipeline for one instrument
// without a full scan. The market defaults by symbol shape: all-digit
// codes are local, alphabetic tickers regional.
func (s *Scanner) EvaluateSymbol(ctx context.Context, symbol, market string) (*ResultRow, float64, error) {
	if market == "" || market == "auto" {
		market = MarketRegional
		if isDigits(NormalizeSymbol(symbol)) {
			market = MarketLocal
		}
	}

	cacheCfg := s.cacheCfg
	cacheCfg.RedisKeyDate = TradeDate(s.now())
	cache := data.NewCache(s.provider, cacheCfg, s.redisClient)

	preload, err := s.preloadFactors(ctx, cache, market)
	if err != nil {
		return nil, 0, err
	}
	_, bullProb := regime.Detect(preload.Local, regime.DefaultConfig())

	evaluator := NewEvaluator(cache, s.provider, s.sectors, market, preload, s.exitCfg)
	row, err := evaluator.Evaluate(ctx, ProviderSymbol(NormalizeSymbol(symbol), market))
	if err != nil {
		return nil, 0, err
	}
	return row, round(bullProb, 2), nil
}

func (s *Scanner) resolveUniverse(ctx context.Context, opts Options) ([]string, error) {
	if len(opts.Symbols) > 0 {
		return opts.Symbols, nil
	}
	if s.stocks == nil {
		return nil, errors.New("no stock list provider and no explicit symbols")
	}

	switch opts.Market {
	case MarketRegionalFull:
		base, err := s.stocks.RegionalStocks(ctx)
		if err != nil {
			return nil, err
		}
		tradable, err := s.stocks.RegionalTradable(ctx)
		if err != nil || len(tradable) == 0 {
			return base, nil
		}
		allowed := make(map[string]struct{}, len(tradable))
		for _, sym := range tradable {
			allowed[sym] = struct{}{}
		}
		filtered := make([]string, 0, len(base))
		for _, sym := range base {
			if _, ok := allowed[sym]; ok {
				filtered = append(filtered, sym)
			}
		}
		// A broker list this much smaller than the base list means a
		// partial response, not a real restriction.
		if len(filtered) < len(base)/2 {
			log.Warn().Int("base", len(base)).Int("filtered", len(filtered)).
				Msg("tradable list abnormally small, keeping base list")
			return base, nil
		}
		return filtered, nil
	case MarketRegional:
		return s.stocks.RegionalStocks(ctx)
	case MarketLocalOTC:
		return s.stocks.AllStocks(ctx, true)
	default:
		return s.stocks.AllStocks(ctx, true)
	}
}

func skipForward(symbols []string, startFrom string) []string {
	if startFrom == "" {
		return symbols
	}
	for i, sym := range symbols {
		if sym == startFrom || NormalizeSymbol(sym) == startFrom {
			log.Info().Str("start_from", startFrom).Int("skipped", i).Msg("resuming scan")
			return symbols[i:]
		}
	}
	log.Warn().Str("start_from", startFrom).Msg("resume point not found, scanning from beginning")
	return symbols
}

func (s *Scanner) subtractCached(symbols []string, tradeDate string) ([]string, int) {
	cached := make(map[string]struct{})
	for _, sym := range s.store.ListSymbols(tradeDate) {
		cached[sym] = struct{}{}
	}
	if len(cached) == 0 {
		return symbols, 0
	}
	remaining := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if _, ok := cached[NormalizeSymbol(sym)]; !ok {
			remaining = append(remaining, sym)
		}
	}
	return remaining, len(symbols) - len(remaining)
}

func (s *Scanner) preloadFactors(ctx context.Context, cache *data.Cache, market string) (FactorPreload, error) {
	localSymbol := LocalIndexSymbol
	if !IsLocalMarket(market) {
		localSymbol = GlobalMarketSymbol
	}

	global, err := cache.Returns(ctx, GlobalMarketSymbol)
	if err != nil {
		return FactorPreload{}, err
	}
	aux, err := cache.Returns(ctx, SemiconductorSymbol)
	if err != nil {
		return FactorPreload{}, err
	}
	local, err := cache.Returns(ctx, localSymbol)
	if err != nil {
		return FactorPreload{}, err
	}
	preload := FactorPreload{Global: global, Aux: aux, Local: local}

	if !IsLocalMarket(market) && s.ff3 != nil {
		mktRF, smb, hml, err := s.ff3.FF3Daily(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("regional factor load failed, degrading to market index stack")
		} else {
			preload.FF3 = &FF3Set{
				MktRF: rescalePercent(mktRF),
				SMB:   rescalePercent(smb),
				HML:   rescalePercent(hml),
			}
			log.Info().Int("days", len(mktRF)).Msg("regional factors loaded")
		}
	}
	return preload, nil
}

// rescalePercent converts factor values quoted in percent to simple
// daily returns.
func rescalePercent(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v / 100
	}
	return out
}

// Trend persistence is always read off the global reference index.
func (s *Scanner) hurstEstimate(ctx context.Context, cache *data.Cache) float64 {
	bars, err := cache.History(ctx, GlobalMarketSymbol)
	if err != nil || len(bars) <= 100 {
		return 0.5
	}
	return round(regime.HurstExponent(data.Closes(bars)), 3)
}

type fundItem struct {
	symbol  string
	summary *FundamentalSummary
}

// runPipeline is the MERGED_EVALUATE stage: two independently-paced
// producers joined by symbol key, with merged rows persisted by a
// bounded save pool as they appear.
func (s *Scanner) runPipeline(ctx context.Context, logger zerolog.Logger, evaluator *Evaluator,
	universe []string, tradeDate string) (rows []*ResultRow, failed, merged int) {

	evalCh := make(chan *ResultRow)
	fundCh := make(chan fundItem)
	mergedCh := make(chan *ResultRow)

	var failMu sync.Mutex

	// Numeric evaluator pool.
	go func() {
		defer close(evalCh)
		jobs := make(chan string)
		var wg sync.WaitGroup
		for i := 0; i < s.workers.EvalWorkers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for symbol := range jobs {
					row, err := evaluator.Evaluate(ctx, ProviderSymbol(symbol, evaluator.market))
					if err != nil {
						if errors.Is(err, factors.ErrInsufficientData) {
							metrics.SymbolsScanned.WithLabelValues(metrics.OutcomeSkipped).Inc()
						} else {
							metrics.SymbolsScanned.WithLabelValues(metrics.OutcomeFailed).Inc()
							failMu.Lock()
							failed++
							failMu.Unlock()
							logger.Warn().Str("symbol", symbol).Err(err).Msg("evaluation failed")
						}
						continue
					}
					metrics.SymbolsScanned.WithLabelValues(metrics.OutcomeQualified).Inc()
					select {
					case evalCh <- row:
					case <-ctx.Done():
						return
					}
				}
			}()
		}
		for _, symbol := range universe {
			select {
			case jobs <- symbol:
			case <-ctx.Done():
				close(jobs)
				wg.Wait()
				return
			}
		}
		close(jobs)
		wg.Wait()
	}()

	// Fundamental stream; the provider paces its own concurrency.
	go func() {
		defer close(fundCh)
		if s.fundamentals == nil {
			return
		}
		err := s.fundamentals.BatchSummaries(ctx, universe, s.workers.FundamentalMax,
			func(symbol string, summary *FundamentalSummary) {
				select {
				case fundCh <- fundItem{symbol: NormalizeSymbol(symbol), summary: summary}:
				case <-ctx.Done():
				}
			})
		if err != nil {
			logger.Warn().Err(err).Msg("fundamental batch ended with error")
		}
	}()

	// Merge by symbol key; final flush emits numeric-only rows.
	go func() {
		defer close(mergedCh)
		evalIn, fundIn := evalCh, fundCh
		pendingEval := make(map[string]*ResultRow)
		pendingFund := make(map[string]*FundamentalSummary)
		evalOpen, fundOpen := true, true

		emit := func(row *ResultRow, summary *FundamentalSummary) {
			row.Fundamentals = BuildFundamentals(summary, row.MarketData.Close)
			select {
			case mergedCh <- row:
			case <-ctx.Done():
			}
		}

		for evalOpen || fundOpen {
			select {
			case row, ok := <-evalIn:
				if !ok {
					evalOpen = false
					evalIn = nil
					continue
				}
				if summary, ok := pendingFund[row.Symbol]; ok {
					delete(pendingFund, row.Symbol)
					emit(row, summary)
				} else {
					pendingEval[row.Symbol] = row
				}
			case item, ok := <-fundIn:
				if !ok {
					fundOpen = false
					fundIn = nil
					continue
				}
				if row, ok := pendingEval[item.symbol]; ok {
					delete(pendingEval, item.symbol)
					emit(row, item.summary)
				} else {
					pendingFund[item.symbol] = item.summary
				}
			case <-ctx.Done():
				return
			}
		}
		for _, row := range pendingEval {
			emit(row, nil)
		}
	}()

	// INCREMENTAL_PERSIST: bounded save pool.
	var (
		saveWg sync.WaitGroup
		rowMu  sync.Mutex
	)
	for i := 0; i < s.workers.SaveWorkers; i++ {
		saveWg.Add(1)
		go func() {
			defer saveWg.Done()
			for row := range mergedCh {
				row.Updated = tradeDate
				if err := s.store.Save(tradeDate, row.Symbol, row); err != nil {
					logger.Error().Str("symbol", row.Symbol).Err(err).Msg("save failed")
					continue
				}
				metrics.RowsPersisted.Inc()
				rowMu.Lock()
				rows = append(rows, row)
				if row.Fundamentals != nil {
					merged++
					metrics.FundamentalsMerged.Inc()
				}
				rowMu.Unlock()
			}
		}()
	}
	saveWg.Wait()
	return rows, failed, merged
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
