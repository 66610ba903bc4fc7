package scan

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/residualscan/internal/data"
	"github.com/quantlab/residualscan/internal/exits"
)

type fakeMarketData struct {
	mu    sync.Mutex
	calls map[string]int
	bars  map[string][]data.Bar
}

func newFakeMarketData(symbols ...string) *fakeMarketData {
	p := &fakeMarketData{
		calls: make(map[string]int),
		bars:  make(map[string][]data.Bar),
	}
	for _, symbol := range symbols {
		p.bars[symbol] = fakeBars(symbol, 130)
	}
	return p
}

func fakeBars(symbol string, n int) []data.Bar {
	var seed int64
	for _, r := range symbol {
		seed = seed*31 + int64(r)
	}
	rng := rand.New(rand.NewSource(seed))

	bars := make([]data.Bar, n)
	price := 50 + rng.Float64()*200
	day := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		price *= 1 + 0.015*rng.NormFloat64()
		if price < 1 {
			price = 1
		}
		bars[i] = data.Bar{
			Date:   day.AddDate(0, 0, i),
			Open:   price * (1 - 0.002*rng.Float64()),
			High:   price * (1 + 0.01*rng.Float64()),
			Low:    price * (1 - 0.01*rng.Float64()),
			Close:  price,
			Volume: 1_000_000 * (1 + rng.Float64()),
		}
	}
	return bars
}

func (p *fakeMarketData) DailyPrices(ctx context.Context, symbol string, days int) ([]data.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[symbol]++
	bars, ok := p.bars[symbol]
	if !ok {
		return nil, errors.New("no data for " + symbol)
	}
	return bars, nil
}

func (p *fakeMarketData) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bars, ok := p.bars[symbol]
	if !ok || len(bars) == 0 {
		return 0, errors.New("no data for " + symbol)
	}
	return bars[len(bars)-1].Close, nil
}

func (p *fakeMarketData) callCount(symbol string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[symbol]
}

type fakeStockList struct {
	local    []string
	regional []string
	tradable []string
}

func (f *fakeStockList) AllStocks(ctx context.Context, includeOTC bool) ([]string, error) {
	return f.local, nil
}

func (f *fakeStockList) RegionalStocks(ctx context.Context) ([]string, error) {
	return f.regional, nil
}

func (f *fakeStockList) RegionalTradable(ctx context.Context) ([]string, error) {
	return f.tradable, nil
}

type fakeFundamentals struct {
	summaries map[string]*FundamentalSummary
}

func (f *fakeFundamentals) BatchSummaries(ctx context.Context, symbols []string, maxConcurrent int,
	onProgress func(string, *FundamentalSummary)) error {
	for _, symbol := range symbols {
		if summary, ok := f.summaries[NormalizeSymbol(symbol)]; ok {
			onProgress(symbol, summary)
		}
	}
	return nil
}

type memoryStore struct {
	mu   sync.Mutex
	rows map[string]map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[string]map[string][]byte)}
}

func (m *memoryStore) Exists(date, symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[date][symbol]
	return ok
}

func (m *memoryStore) Save(date, symbol string, row any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[date] == nil {
		m.rows[date] = make(map[string][]byte)
	}
	m.rows[date][symbol] = []byte("x")
	return nil
}

func (m *memoryStore) Load(date, symbol string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[date][symbol]
	return ok, nil
}

func (m *memoryStore) ListSymbols(date string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.rows[date]))
	for symbol := range m.rows[date] {
		out = append(out, symbol)
	}
	return out
}

func testScanner(provider data.Provider, stocks StockListProvider, store CacheStore, opts ...ScannerOption) *Scanner {
	base := []ScannerOption{
		WithCacheConfig(data.CacheConfig{
			Lookback:    90,
			HistoryDays: 130,
			MaxAttempts: 2,
			BackoffBase: time.Millisecond,
			RatePerSec:  10_000,
			RateBurst:   100,
			RedisTTL:    time.Hour,
		}),
		WithClock(func() time.Time {
			return time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
		}),
	}
	return NewScanner(provider, stocks, store, append(base, opts...)...)
}

func fundamentalsFor(symbols ...string) *fakeFundamentals {
	f := &fakeFundamentals{summaries: make(map[string]*FundamentalSummary)}
	eps := 25.0
	fscore := 7
	for _, symbol := range symbols {
		f.summaries[symbol] = &FundamentalSummary{TTMEPS: &eps, FScore: &fscore}
	}
	return f
}

func TestRunFullScan(t *testing.T) {
	provider := newFakeMarketData(
		GlobalMarketSymbol, SemiconductorSymbol, LocalIndexSymbol,
		"2330.TW", "2317.TW", "1301.TW")
	stocks := &fakeStockList{local: []string{"2330", "2317", "1301"}}
	store := newMemoryStore()

	funds := fundamentalsFor("2330")
	funds.summaries["2317"] = &FundamentalSummary{Err: "page not found"}

	scanner := testScanner(provider, stocks, store, WithFundamentals(funds))
	summary, err := scanner.Run(context.Background(), Options{Market: MarketLocal, TopN: 2})
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, "2026-03-02", summary.TradeDate)
	assert.Equal(t, 3, summary.Scanned)
	assert.Equal(t, 3, summary.Qualified)
	assert.Equal(t, 3, summary.Saved)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 1, summary.Merged, "failed fundamental fetches never merge")
	assert.Contains(t, []string{"bull", "bear", "neutral"}, summary.Regime)
	assert.GreaterOrEqual(t, summary.BullProb, 0.0)
	assert.LessOrEqual(t, summary.BullProb, 1.0)

	// Rows are persisted under normalized symbols.
	for _, symbol := range []string{"2330", "2317", "1301"} {
		assert.True(t, store.Exists("2026-03-02", symbol), symbol)
	}

	require.Len(t, summary.Targets, 3)
	for _, row := range summary.Targets {
		assert.NotNil(t, row.Momentum.RawMomentum, row.Symbol)
		assert.Nil(t, row.Momentum.Momentum,
			"standardized momentum is a cross-sectional output, never filled per symbol")
		assert.Equal(t, "2026-03-02", row.Updated)
		assert.Equal(t, "ols", row.Momentum.ResidualSource)
	}

	// Targets are ranked by raw momentum, best first.
	for i := 1; i < len(summary.Targets); i++ {
		assert.GreaterOrEqual(t,
			summary.Targets[i-1].RawMomentumValue(),
			summary.Targets[i].RawMomentumValue())
	}
	assert.Len(t, summary.Top, 2)
	assert.Len(t, summary.Bottom, 2)

	// The merged fundamentals landed on the right row.
	var withFunds int
	for _, row := range summary.Targets {
		if row.Fundamentals != nil {
			withFunds++
			assert.Equal(t, "2330", row.Symbol)
			require.NotNil(t, row.Fundamentals.PE)
		}
	}
	assert.Equal(t, 1, withFunds)
}

func TestRunIdempotentSecondPass(t *testing.T) {
	provider := newFakeMarketData(
		GlobalMarketSymbol, SemiconductorSymbol, LocalIndexSymbol,
		"2330.TW", "2317.TW")
	stocks := &fakeStockList{local: []string{"2330", "2317"}}
	store := newMemoryStore()

	scanner := testScanner(provider, stocks, store)
	_, err := scanner.Run(context.Background(), Options{Market: MarketLocal})
	require.NoError(t, err)
	require.Equal(t, 1, provider.callCount("2330.TW"))

	second, err := scanner.Run(context.Background(), Options{Market: MarketLocal})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Scanned)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 0, second.Saved)
	// Cached symbols are never re-fetched.
	assert.Equal(t, 1, provider.callCount("2330.TW"))
	assert.Equal(t, 1, provider.callCount("2317.TW"))
}

func TestRunForceRescans(t *testing.T) {
	provider := newFakeMarketData(
		GlobalMarketSymbol, SemiconductorSymbol, LocalIndexSymbol, "2330.TW")
	stocks := &fakeStockList{local: []string{"2330"}}
	store := newMemoryStore()

	scanner := testScanner(provider, stocks, store)
	_, err := scanner.Run(context.Background(), Options{Market: MarketLocal})
	require.NoError(t, err)

	forced, err := scanner.Run(context.Background(), Options{Market: MarketLocal, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, forced.Scanned)
	assert.Equal(t, 1, forced.Saved)
	assert.Equal(t, 2, provider.callCount("2330.TW"))
}

func TestRunIsolatesSymbolFailures(t *testing.T) {
	provider := newFakeMarketData(
		GlobalMarketSymbol, SemiconductorSymbol, LocalIndexSymbol,
		"2330.TW", "2317.TW")
	// "9999" has no data and must not sink the run.
	stocks := &fakeStockList{local: []string{"2330", "9999", "2317"}}
	store := newMemoryStore()

	scanner := testScanner(provider, stocks, store)
	summary, err := scanner.Run(context.Background(), Options{Market: MarketLocal})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Scanned)
	assert.Equal(t, 2, summary.Qualified)
	assert.Equal(t, 1, summary.Failed)
	assert.True(t, store.Exists("2026-03-02", "2330"))
	assert.True(t, store.Exists("2026-03-02", "2317"))
	assert.False(t, store.Exists("2026-03-02", "9999"))
}

func TestRunExplicitSymbolsBypassUniverse(t *testing.T) {
	provider := newFakeMarketData(
		GlobalMarketSymbol, SemiconductorSymbol, LocalIndexSymbol, "2330.TW")
	store := newMemoryStore()

	// No stock list provider at all: explicit symbols drive the run.
	scanner := testScanner(provider, nil, store)
	summary, err := scanner.Run(context.Background(), Options{
		Market:  MarketLocal,
		Symbols: []string{"2330"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Qualified)

	// Without explicit symbols the same scanner cannot resolve a universe.
	_, err = scanner.Run(context.Background(), Options{Market: MarketLocal, Force: true})
	require.Error(t, err)
}

func TestRunEmptyUniverseShortCircuits(t *testing.T) {
	provider := newFakeMarketData(GlobalMarketSymbol, SemiconductorSymbol, LocalIndexSymbol)
	stocks := &fakeStockList{}
	store := newMemoryStore()

	scanner := testScanner(provider, stocks, store)
	summary, err := scanner.Run(context.Background(), Options{Market: MarketLocal})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Qualified)
	assert.Empty(t, summary.Targets)
	assert.NotEmpty(t, summary.Regime, "regime is reported even with nothing to scan")
}

func TestResolveUniverseRegionalTradableFilter(t *testing.T) {
	provider := newFakeMarketData()
	store := newMemoryStore()
	stocks := &fakeStockList{
		regional: []string{"AAPL", "MSFT", "NVDA", "AMD"},
		tradable: []string{"AAPL", "MSFT", "NVDA"},
	}

	scanner := testScanner(provider, stocks, store)
	universe, err := scanner.resolveUniverse(context.Background(), Options{Market: MarketRegionalFull})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, universe)

	// A suspiciously small tradable list is ignored.
	stocks.tradable = []string{"AAPL"}
	universe, err = scanner.resolveUniverse(context.Background(), Options{Market: MarketRegionalFull})
	require.NoError(t, err)
	assert.Equal(t, stocks.regional, universe)
}

func TestSubtractCachedNormalizes(t *testing.T) {
	store := newMemoryStore()
	require.NoError(t, store.Save("2026-03-02", "2330", nil))

	scanner := testScanner(newFakeMarketData(), nil, store)
	remaining, skipped := scanner.subtractCached([]string{"2330.TW", "2317.TW"}, "2026-03-02")
	assert.Equal(t, []string{"2317.TW"}, remaining)
	assert.Equal(t, 1, skipped)
}

func TestEvaluateSymbolAutoMarket(t *testing.T) {
	provider := newFakeMarketData(
		GlobalMarketSymbol, SemiconductorSymbol, LocalIndexSymbol, "2330.TW")
	scanner := testScanner(provider, nil, newMemoryStore())

	row, bullProb, err := scanner.EvaluateSymbol(context.Background(), "2330", "auto")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "2330", row.Symbol)
	assert.NotNil(t, row.Momentum.RawMomentum)
	assert.NotNil(t, row.MarketData.Close)
	assert.GreaterOrEqual(t, bullProb, 0.0)
	assert.LessOrEqual(t, bullProb, 1.0)

	// An all-digit code resolved as local market quotes through .TW.
	assert.Equal(t, 1, provider.callCount("2330.TW"))
	assert.Equal(t, 0, provider.callCount("2330"))
}

func TestWithExitConfig(t *testing.T) {
	// A zero stop-loss threshold trips whenever the close sits below
	// the trailing high; at 0.99 it can never trip. The thresholds
	// from the option must reach the per-symbol stage.
	tight := exits.DefaultConfig()
	tight.StopLossThreshold = 0
	loose := exits.DefaultConfig()
	loose.StopLossThreshold = 0.99

	for _, tc := range []struct {
		name string
		cfg  exits.Config
		want bool
	}{
		{"tight stop trips", tight, true},
		{"loose stop holds", loose, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			provider := newFakeMarketData(
				GlobalMarketSymbol, SemiconductorSymbol, LocalIndexSymbol, "2330.TW")
			scanner := testScanner(provider, nil, newMemoryStore(), WithExitConfig(tc.cfg))

			row, _, err := scanner.EvaluateSymbol(context.Background(), "2330", "tw")
			require.NoError(t, err)
			assert.Equal(t, tc.want, row.ExitSignals.StopLossTriggered)
		})
	}
}

func TestEvaluateSymbolInsufficientHistory(t *testing.T) {
	provider := newFakeMarketData(GlobalMarketSymbol, SemiconductorSymbol, LocalIndexSymbol)
	provider.bars["8888.TW"] = fakeBars("8888.TW", 95) // enough bars, few aligned returns?

	scanner := testScanner(provider, nil, newMemoryStore())
	row, _, err := scanner.EvaluateSymbol(context.Background(), "8888", "tw")
	require.NoError(t, err)
	assert.NotNil(t, row)

	// Below the cache lookback the symbol errors out instead.
	provider.bars["7777.TW"] = fakeBars("7777.TW", 40)
	_, _, err = scanner.EvaluateSymbol(context.Background(), "7777", "tw")
	require.Error(t, err)
}
