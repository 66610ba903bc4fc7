// Package scan drives the daily residual-momentum scan: universe
// resolution, factor preloading, the merged evaluation/fundamental
// pipeline, incremental persistence and the cross-sectional
// post-processing stage.
package scan

import (
	"context"
)

// StockListProvider resolves the candidate universe for a market.
type StockListProvider interface {
	// AllStocks returns the local-market symbol list, optionally
	// including over-the-counter names.
	AllStocks(ctx context.Context, includeOTC bool) ([]string, error)

	// RegionalStocks returns the regional-market base list.
	RegionalStocks(ctx context.Context) ([]string, error)

	// RegionalTradable returns the subset of regional symbols tradable
	// through the broker, used to filter the base list.
	RegionalTradable(ctx context.Context) ([]string, error)
}

// FundamentalSummary is the raw fundamental snapshot for one symbol as
// delivered by the provider. All fields are optional; Err marks a
// failed fetch whose row is still emitted without a fundamental block.
type FundamentalSummary struct {
	RevYoY          *float64
	RevMoM          *float64
	CFORatio        *float64
	AccrualRatio    *float64
	PB              *float64
	FScore          *int
	GrossMargin     *float64
	OperatingMargin *float64
	NetMargin       *float64
	ROE             *float64
	ROA             *float64
	TTMEPS          *float64
	TotalDebt       *float64
	Equity          *float64

	Err string
}

// FundamentalProvider streams fundamental summaries for a symbol
// batch. Implementations run their own bounded concurrency and invoke
// onProgress once per symbol as each fetch completes; they return only
// after every symbol has been reported.
type FundamentalProvider interface {
	BatchSummaries(ctx context.Context, symbols []string, maxConcurrent int,
		onProgress func(symbol string, summary *FundamentalSummary)) error
}

// SyntheticPrefix marks a sector benchmark that has no listed ETF and
// must be built from proxy constituents: "synthetic:<industry>".
const SyntheticPrefix = "synthetic:"

// SectorBenchmarkProvider maps a symbol to its sector benchmark.
type SectorBenchmarkProvider interface {
	// SectorBenchmark returns an ETF code, or SyntheticPrefix+industry
	// when the industry has no listed ETF.
	SectorBenchmark(ctx context.Context, symbol, market string) (string, error)

	// SectorProxies returns the constituents used to build a synthetic
	// industry index.
	SectorProxies(ctx context.Context, industry string) ([]string, error)
}

// FactorProvider serves the regional Fama-French daily factor series.
// Values arrive in percent and are rescaled by the caller.
type FactorProvider interface {
	FF3Daily(ctx context.Context) (mktRF, smb, hml []float64, err error)
}

// CacheStore persists one row per (date, symbol). Satisfied by
// store.FileStore.
type CacheStore interface {
	Exists(date, symbol string) bool
	Save(date, symbol string, row any) error
	Load(date, symbol string, dst any) (bool, error)
	ListSymbols(date string) []string
}

// SymbolNamer is an optional extension of the market data provider
// that resolves display names. Evaluators type-assert for it and fall
// back to the symbol itself.
type SymbolNamer interface {
	SymbolName(ctx context.Context, symbol string) (string, error)
}
