// Package exits computes the exit-condition flags for a held momentum
// signal: hard stop, ATR trailing stop, beta spike, volatility
// expansion, correlation drift and short-term reversal. Each flag is
// computed independently; aggregation is left to the caller.
package exits

import (
	"math"

	"github.com/quantlab/residualscan/internal/stats"
)

// Config contains exit rule thresholds.
type Config struct {
	StopLossLookback  int     `yaml:"stop_loss_lookback"`  // sessions, default 20
	StopLossThreshold float64 `yaml:"stop_loss_threshold"` // fraction below high, default 0.10
	ATRMultiplier     float64 `yaml:"atr_multiplier"`      // default 2.0
	ATRPeriod         int     `yaml:"atr_period"`          // default 14
	BetaSpikePct      float64 `yaml:"beta_spike_pct"`      // percent, default 50
	VolExpandLookback int     `yaml:"vol_expand_lookback"` // sessions, default 60
	CorrDriftLow      float64 `yaml:"corr_drift_low"`      // default 0.3
	CorrDriftHigh     float64 `yaml:"corr_drift_high"`     // default 0.7
	CorrDriftWindow   int     `yaml:"corr_drift_window"`   // default 20
	ReversalLookback  int     `yaml:"reversal_lookback"`   // default 22
}

// DefaultConfig returns the documented default thresholds.
func DefaultConfig() Config {
	return Config{
		StopLossLookback:  20,
		StopLossThreshold: 0.10,
		ATRMultiplier:     2.0,
		ATRPeriod:         14,
		BetaSpikePct:      50,
		VolExpandLookback: 60,
		CorrDriftLow:      0.3,
		CorrDriftHigh:     0.7,
		CorrDriftWindow:   20,
		ReversalLookback:  22,
	}
}

// StopLossTriggered reports whether the current price has fallen below
// the trailing lookback high by more than the threshold fraction.
func StopLossTriggered(currentPrice float64, highs []float64, lookback int, threshold float64) bool {
	if currentPrice <= 0 || len(highs) == 0 {
		return false
	}
	periodHigh := stats.Max(stats.Tail(highs, lookback))
	return currentPrice < periodHigh*(1-threshold)
}

// ATRTrailingStop returns the trailing stop price
// max(high[-20:]) - multiplier*ATR(period). Returns 0 when fewer than
// period+1 bars are available.
func ATRTrailingStop(highs, lows, closes []float64, multiplier float64, period int) float64 {
	if len(highs) < period+1 || len(lows) < period+1 || len(closes) < period+1 {
		return 0
	}

	trueRanges := make([]float64, 0, len(highs)-1)
	for i := 1; i < len(highs); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		trueRanges = append(trueRanges, math.Max(hl, math.Max(hc, lc)))
	}
	if len(trueRanges) < period {
		return 0
	}
	atr := stats.Mean(stats.Tail(trueRanges, period))

	maxPrice := stats.Max(stats.Tail(highs, 20))
	return maxPrice - multiplier*atr
}

// BetaChangePct is (current - prev)/|prev| in percent, 0 when the
// previous beta is zero or either value is NaN.
func BetaChangePct(current, prev float64) float64 {
	if prev == 0 || math.IsNaN(prev) || math.IsNaN(current) {
		return 0
	}
	return (current - prev) / math.Abs(prev) * 100
}

// BetaSpikeAlert flags an absolute beta change exceeding the threshold
// percentage.
func BetaSpikeAlert(changePct, thresholdPct float64) bool {
	return math.Abs(changePct) > thresholdPct
}

// VolatilityExpansion is true when both the cumulative residual
// momentum and the volatility proxy are at their trailing-lookback
// highs simultaneously, a trend-acceleration signal.
func VolatilityExpansion(cumResidual, volatility []float64, lookback int) bool {
	if len(cumResidual) < lookback || len(volatility) < lookback {
		return false
	}
	mom := stats.Tail(cumResidual, lookback)
	vol := stats.Tail(volatility, lookback)

	momNewHigh := mom[len(mom)-1] >= stats.Max(mom)
	volNewHigh := vol[len(vol)-1] >= stats.Max(vol)
	return momNewHigh && volNewHigh
}

// CorrelationDrift is true when the rolling correlation-with-market
// series starts the detection window below the low threshold and ends
// it above the high threshold, an alpha-disappearing warning.
func CorrelationDrift(corrSeries []float64, low, high float64, window int) bool {
	if len(corrSeries) < window {
		return false
	}
	recent := stats.Tail(corrSeries, window)
	return recent[0] < low && recent[len(recent)-1] > high
}

// ShortTermReversal is the one-month cumulative return; a negative
// value hints at a mean-reversion opportunity.
func ShortTermReversal(returns []float64, lookback int) (float64, bool) {
	if len(returns) < lookback {
		return 0, false
	}
	return stats.Sum(stats.Tail(returns, lookback)), true
}

// RollingBeta computes an OLS beta of the stock on the market over a
// sliding window. Positions before the first full window hold NaN.
func RollingBeta(stock, market []float64, window int) []float64 {
	n := len(stock)
	if len(market) < n {
		n = len(market)
	}
	if n < window {
		return nil
	}
	s := stats.Tail(stock, n)
	m := stats.Tail(market, n)

	betas := make([]float64, n)
	for i := range betas {
		betas[i] = math.NaN()
	}
	for i := window - 1; i < n; i++ {
		y := s[i-window+1 : i+1]
		x := m[i-window+1 : i+1]
		varX := stats.Variance(x)
		if varX > 0 {
			mx, my := stats.Mean(x), stats.Mean(y)
			cov := 0.0
			for j := range x {
				cov += (x[j] - mx) * (y[j] - my)
			}
			cov /= float64(len(x))
			betas[i] = cov / varX
		}
	}
	return betas
}
