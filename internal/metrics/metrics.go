// Package metrics exposes the prometheus collectors for the scan
// pipeline: symbol throughput, provider fetch retries and scan
// duration. Registered on the default registry and served by the ops
// endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SymbolsScanned counts evaluated symbols per outcome:
	// qualified, skipped, failed, cached.
	SymbolsScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "residualscan",
		Name:      "symbols_scanned_total",
		Help:      "Symbols processed by the scan pipeline, by outcome.",
	}, []string{"outcome"})

	// ProviderFetches counts market-data provider calls by result.
	ProviderFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "residualscan",
		Name:      "provider_fetches_total",
		Help:      "External market-data fetches, by result.",
	}, []string{"result"})

	// FetchRetries counts rate-limit backoff retries.
	FetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "residualscan",
		Name:      "fetch_retries_total",
		Help:      "Rate-limited provider fetches that were retried.",
	})

	// FundamentalsMerged counts fundamental summaries merged into rows.
	FundamentalsMerged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "residualscan",
		Name:      "fundamentals_merged_total",
		Help:      "Fundamental summaries merged into scan rows.",
	})

	// RowsPersisted counts rows written to the scan cache.
	RowsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "residualscan",
		Name:      "rows_persisted_total",
		Help:      "Result rows persisted to the per-day cache.",
	})

	// ScanDuration observes full scan run durations in seconds.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "residualscan",
		Name:      "scan_duration_seconds",
		Help:      "Duration of full scan runs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// Outcome labels for SymbolsScanned.
const (
	OutcomeQualified = "qualified"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeCached    = "cached"
)
