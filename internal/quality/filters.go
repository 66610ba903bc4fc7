// Package quality computes the per-symbol quality filter metrics
// (idiosyncratic volatility, max return, Amihud illiquidity, overnight
// confirmation) and the cross-sectional IVOL decision policies.
package quality

import (
	"fmt"
	"math"

	"github.com/quantlab/residualscan/internal/stats"
)

// IVOL is the idiosyncratic volatility: sample standard deviation of
// the trailing residual window (default 252 days, shortened when the
// series is shorter).
func IVOL(residual []float64, window int) float64 {
	if len(residual) < window {
		window = len(residual)
	}
	if window <= 1 {
		return 0
	}
	return stats.StdSample(stats.Tail(residual, window))
}

// IVOLSeries evaluates IVOL on every prefix of the residual series,
// used as the volatility proxy for expansion detection.
func IVOLSeries(residual []float64, window int) []float64 {
	out := make([]float64, len(residual))
	for i := range residual {
		out[i] = IVOL(residual[:i+1], window)
	}
	return out
}

// MaxReturn is the maximum single-day return over the trailing window
// (default 21 days).
func MaxReturn(returns []float64, window int) float64 {
	if len(returns) < window {
		window = len(returns)
	}
	if window == 0 {
		return 0
	}
	return stats.Max(stats.Tail(returns, window))
}

// AmihudIlliq is the Amihud (2002) illiquidity measure:
// mean(|r| / volume) over the trailing window.
func AmihudIlliq(returns, volumes []float64, window int) float64 {
	if len(returns) < window {
		window = len(returns)
	}
	if window == 0 || len(volumes) < window {
		return 0
	}
	r := stats.Tail(returns, window)
	v := stats.Tail(volumes, window)

	sum := 0.0
	for i := 0; i < window; i++ {
		sum += math.Abs(r[i]) / (v[i] + 1e-8)
	}
	return sum / float64(window)
}

// OvernightConfirmation splits the latest day into overnight and
// intraday legs. An intraday gain paired with an overnight drop marks
// retail chasing and flags the symbol for exclusion.
func OvernightConfirmation(opens, closes []float64) (overnight, intraday float64, exclude bool) {
	if len(opens) < 1 || len(closes) < 2 {
		return 0, 0, false
	}
	o := opens[len(opens)-1]
	cPrev := closes[len(closes)-2]
	c := closes[len(closes)-1]
	if cPrev <= 0 || o <= 0 {
		return 0, 0, false
	}
	overnight = o/cPrev - 1
	intraday = c/o - 1
	exclude = intraday > 0 && overnight <= 0
	return overnight, intraday, exclude
}

// Decision types produced by the IVOL x F-Score matrix.
const (
	DecisionOpportunity = "OPPORTUNITY"
	DecisionStandard    = "STANDARD"
	DecisionDefensive   = "DEFENSIVE"
	DecisionWatch       = "WATCH"
	DecisionReject      = "REJECT"
)

// IVOLFScoreMatrix combines the cross-sectional IVOL percentile with
// the fundamental F-Score. High IVOL with high quality is treated as an
// oversold opportunity; high IVOL with low quality is a lottery
// exclusion. fScore is nil when fundamentals are unavailable, in which
// case only the traditional 80th-percentile IVOL cut applies.
func IVOLFScoreMatrix(ivolPercentile float64, fScore *int) (passed bool, decision, reason string) {
	if fScore == nil {
		if ivolPercentile > 80 {
			return false, DecisionReject, "high IVOL with no F-Score to verify quality"
		}
		return true, DecisionStandard, "no F-Score, traditional IVOL filter"
	}

	f := *fScore
	if ivolPercentile > 80 {
		switch {
		case f >= 7:
			return true, DecisionOpportunity, fmt.Sprintf("oversold opportunity (high IVOL, F-Score %d)", f)
		case f >= 5:
			return true, DecisionWatch, fmt.Sprintf("high IVOL with medium quality (F-Score %d)", f)
		default:
			return false, DecisionReject, fmt.Sprintf("lottery exclusion (high IVOL, F-Score %d)", f)
		}
	}
	if ivolPercentile > 40 {
		if f >= 5 {
			return true, DecisionStandard, fmt.Sprintf("standard candidate (F-Score %d)", f)
		}
		return false, DecisionReject, fmt.Sprintf("low quality (F-Score %d)", f)
	}
	if f >= 5 {
		return true, DecisionDefensive, fmt.Sprintf("defensive holding (low IVOL, F-Score %d)", f)
	}
	return false, DecisionReject, fmt.Sprintf("low quality (F-Score %d)", f)
}

// IsValueTrap flags names that look cheap (PE below the 5th percentile)
// while carrying high accruals (> 5%), a combination of apparent value
// and deteriorating earnings quality. Missing data never flags.
func IsValueTrap(peRatio, pePercentile, accrualRatio *float64) bool {
	if peRatio == nil || pePercentile == nil || accrualRatio == nil {
		return false
	}
	return *pePercentile < 5 && *accrualRatio > 0.05
}
