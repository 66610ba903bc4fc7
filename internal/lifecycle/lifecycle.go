// Package lifecycle scores residual momentum and models the remaining
// life of a signal: age, half-life, remaining meat, residual RSI and
// divergence. All functions are pure and return defined neutral values
// on degenerate input instead of failing.
package lifecycle

import (
	"math"

	"github.com/quantlab/residualscan/internal/stats"
)

// DefaultHalfLife is the conservative fallback (in trading days) used
// when the AR(1) estimate is undefined.
const DefaultHalfLife = 180.0

// Score returns the momentum z-score mean(residual)/std(residual).
// Returns 0 for an empty series or zero standard deviation.
func Score(residual []float64) float64 {
	if len(residual) == 0 {
		return 0
	}
	std := stats.Std(residual)
	if std == 0 {
		return 0
	}
	return stats.Mean(residual) / std
}

// RawMomentum is the sum of the residual series. The cross-sectionally
// standardized momentum is filled later over the full day's batch; the
// per-symbol stage only ever produces this raw value.
func RawMomentum(residual []float64) float64 {
	return stats.Sum(residual)
}

// SignalAge returns the number of days since the cumulative-residual
// z-score first crossed the threshold, scanning oldest to newest.
// Returns -1 when it never crossed, the series is shorter than two
// points, or the curve has zero variance.
func SignalAge(cumResidual []float64, threshold float64) int {
	if len(cumResidual) < 2 {
		return -1
	}
	mean := stats.Mean(cumResidual)
	std := stats.Std(cumResidual)
	if std == 0 {
		return -1
	}
	for i, v := range cumResidual {
		if (v-mean)/std > threshold {
			return len(cumResidual) - i - 1
		}
	}
	return -1
}

// HalfLife estimates the mean-reversion half-life of the residual
// series via AR(1) regression: residual[t] = rho*residual[t-1] + eps,
// lambda = -ln(rho), HL = ln(2)/lambda. Returns (+Inf, 0) when fewer
// than 10 observations, the lagged series has zero variance, or rho is
// outside (0, 1). Callers clamp +Inf to DefaultHalfLife downstream.
func HalfLife(residual []float64) (halfLife, lambda float64) {
	if len(residual) < 10 {
		return math.Inf(1), 0
	}
	y := residual[1:]
	x := residual[:len(residual)-1]

	var sxy, sxx float64
	for i := range x {
		sxy += x[i] * y[i]
		sxx += x[i] * x[i]
	}
	if sxx == 0 {
		return math.Inf(1), 0
	}
	rho := sxy / sxx
	if rho <= 0 || rho >= 1 {
		return math.Inf(1), 0
	}

	lambda = -math.Log(rho)
	return math.Ln2 / lambda, lambda
}

// ClampHalfLife replaces an undefined (infinite or absurdly large)
// half-life with the conservative default.
func ClampHalfLife(halfLife float64) float64 {
	if math.IsInf(halfLife, 1) || halfLife >= 1000 {
		return DefaultHalfLife
	}
	return halfLife
}

// Recommendation labels derived from the remaining-meat ratio.
const (
	RecommendAggressiveHold = "aggressive_hold"
	RecommendMaintain       = "maintain"
	RecommendReduce         = "reduce"
	RecommendExit           = "exit"
)

// RemainingMeat returns exp(-age/halfLife) clamped to [0, 1] together
// with the discrete recommendation label. A negative age (signal never
// fired) yields -1 and an exit recommendation.
func RemainingMeat(signalAge int, halfLife float64) (float64, string) {
	if signalAge < 0 || halfLife <= 0 {
		return -1, RecommendExit
	}
	remaining := math.Exp(-float64(signalAge) / halfLife)
	if remaining > 1 {
		remaining = 1
	}
	switch {
	case remaining >= 0.70:
		return remaining, RecommendAggressiveHold
	case remaining >= 0.50:
		return remaining, RecommendMaintain
	case remaining >= 0.30:
		return remaining, RecommendReduce
	default:
		return remaining, RecommendExit
	}
}

// ResidualRSI computes the classic RSI over first differences of the
// cumulative residual curve. Returns 50 (neutral) when the curve is
// shorter than period+1, 100 when there are gains but no losses.
func ResidualRSI(cumResidual []float64, period int) float64 {
	if len(cumResidual) < period+1 {
		return 50
	}
	deltas := stats.Diff(cumResidual)
	if len(deltas) < period {
		return 50
	}
	recent := stats.Tail(deltas, period)

	var gains, losses float64
	for _, d := range recent {
		if d > 0 {
			gains += d
		} else if d < 0 {
			losses -= d
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		if avgGain > 0 {
			return 100
		}
		return 50
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// RSISeries evaluates ResidualRSI on every prefix of the cumulative
// residual curve, for divergence detection against the price series.
func RSISeries(cumResidual []float64, period int) []float64 {
	out := make([]float64, len(cumResidual))
	for i := range cumResidual {
		out[i] = ResidualRSI(cumResidual[:i+1], period)
	}
	return out
}

// Divergence outcomes.
const (
	DivergenceNone    = "none"
	DivergenceBearish = "bearish"
	DivergenceBullish = "bullish"
)

// DetectRSIDivergence flags a bearish divergence when price makes a new
// high over the lookback window but the residual RSI does not, and a
// bullish divergence for the mirrored lows. Bearish divergence is an
// exit hint, not an automatic trigger.
func DetectRSIDivergence(prices, rsiSeries []float64, lookback int) string {
	if len(prices) < lookback || len(rsiSeries) < lookback {
		return DivergenceNone
	}
	price := stats.Tail(prices, lookback)
	rsi := stats.Tail(rsiSeries, lookback)

	priceNewHigh := price[len(price)-1] == stats.Max(price)
	rsiNewHigh := rsi[len(rsi)-1] == stats.Max(rsi)
	priceNewLow := price[len(price)-1] == stats.Min(price)
	rsiNewLow := rsi[len(rsi)-1] == stats.Min(rsi)

	if priceNewHigh && !rsiNewHigh {
		return DivergenceBearish
	}
	if priceNewLow && !rsiNewLow {
		return DivergenceBullish
	}
	return DivergenceNone
}

// InformationDiscreteness computes the frog-in-the-pan measure
// sign(cumret) * (%negative days - %positive days) over the trailing
// lookback. Values near or below zero indicate continuous small moves;
// values near one indicate discrete jumps. Returns 0 with fewer than
// five observations.
func InformationDiscreteness(returns []float64, lookback int) float64 {
	if len(returns) < lookback {
		lookback = len(returns)
	}
	if lookback < 5 {
		return 0
	}
	recent := stats.Tail(returns, lookback)

	cum := stats.Sum(recent)
	sign := 0.0
	if cum > 0 {
		sign = 1
	} else if cum < 0 {
		sign = -1
	}

	var pos, neg float64
	for _, r := range recent {
		if r > 0 {
			pos++
		} else if r < 0 {
			neg++
		}
	}
	n := float64(lookback)
	return sign * (neg/n - pos/n)
}
