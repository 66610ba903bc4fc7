// Package data is the return/price layer for one scan run: it wraps
// the external market-data provider with per-host rate limiting, a
// circuit breaker, rate-limit retry with exponential backoff, and
// per-run memoization of history, log-return and synthetic-benchmark
// series. Caches are read-many/write-once within a run; no symbol's
// computation mutates another symbol's data.
package data

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the provider taxonomy. Adapters wrap throttling
// signals in ErrRateLimited so the cache can classify and retry them.
var (
	ErrRateLimited         = errors.New("provider rate limited")
	ErrProviderUnavailable = errors.New("provider not configured")
)

// Bar is one daily OHLCV observation.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Provider fetches raw market data. Every call is a suspension point
// and must honor the context.
type Provider interface {
	// DailyPrices returns up to days of trailing daily bars, oldest
	// first.
	DailyPrices(ctx context.Context, symbol string, days int) ([]Bar, error)

	// CurrentPrice returns the latest trade price.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// Closes extracts the close series from bars.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high series from bars.
func Highs(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low series from bars.
func Lows(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

// Opens extracts the open series from bars.
func Opens(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Open
	}
	return out
}

// Volumes extracts the volume series from bars.
func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}
