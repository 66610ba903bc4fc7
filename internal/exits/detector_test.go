package exits

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopLossTriggered(t *testing.T) {
	highs := []float64{95, 98, 100, 99}

	// 12% below the 20-day high of 100.
	assert.True(t, StopLossTriggered(88, highs, 20, 0.10))
	// 5% below: holds.
	assert.False(t, StopLossTriggered(95, highs, 20, 0.10))
	// Exactly at the threshold price is not a breach.
	assert.False(t, StopLossTriggered(90, highs, 20, 0.10))

	assert.False(t, StopLossTriggered(0, highs, 20, 0.10))
	assert.False(t, StopLossTriggered(88, nil, 20, 0.10))
}

func TestATRTrailingStop(t *testing.T) {
	n := 30
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := range highs {
		highs[i] = 102
		lows[i] = 98
		closes[i] = 100
	}

	// Constant bars: every true range is 4, so ATR is 4 and the stop
	// sits at 102 - 2*4.
	stop := ATRTrailingStop(highs, lows, closes, 2.0, 14)
	assert.InDelta(t, 94.0, stop, 1e-9)

	// Fewer than period+1 bars yields no stop.
	assert.Equal(t, 0.0, ATRTrailingStop(highs[:10], lows[:10], closes[:10], 2.0, 14))
}

func TestBetaChangePct(t *testing.T) {
	assert.InDelta(t, 60.0, BetaChangePct(1.6, 1.0), 1e-9)
	assert.InDelta(t, -50.0, BetaChangePct(0.5, 1.0), 1e-9)
	assert.Equal(t, 0.0, BetaChangePct(1.5, 0))
	assert.Equal(t, 0.0, BetaChangePct(math.NaN(), 1.0))

	// Sign convention for a negative previous beta: the prior
	// magnitude normalizes, so halving toward zero reads +50.
	assert.InDelta(t, 50.0, BetaChangePct(-0.5, -1.0), 1e-9)
}

func TestBetaSpikeAlert(t *testing.T) {
	assert.True(t, BetaSpikeAlert(60, 50))
	assert.True(t, BetaSpikeAlert(-60, 50))
	assert.False(t, BetaSpikeAlert(45, 50))
	assert.False(t, BetaSpikeAlert(50, 50), "threshold itself does not alert")
}

func TestVolatilityExpansion(t *testing.T) {
	n := 60
	rising := make([]float64, n)
	for i := range rising {
		rising[i] = float64(i)
	}
	flat := make([]float64, n)
	for i := range flat {
		flat[i] = 5
	}
	fading := make([]float64, n)
	for i := range fading {
		fading[i] = float64(n - i)
	}

	// Both momentum and volatility at their highs.
	assert.True(t, VolatilityExpansion(rising, rising, 60))
	// Volatility off its high.
	assert.False(t, VolatilityExpansion(rising, fading, 60))
	// Flat series: last equals max, still counts as at-high.
	assert.True(t, VolatilityExpansion(rising, flat, 60))

	assert.False(t, VolatilityExpansion(rising[:10], rising[:10], 60))
}

func TestCorrelationDrift(t *testing.T) {
	series := make([]float64, 20)
	for i := range series {
		series[i] = 0.1 + float64(i)*0.04 // 0.1 -> 0.86
	}
	assert.True(t, CorrelationDrift(series, 0.3, 0.7, 20))

	// Starts above the low threshold: no drift.
	stable := make([]float64, 20)
	for i := range stable {
		stable[i] = 0.5
	}
	assert.False(t, CorrelationDrift(stable, 0.3, 0.7, 20))

	assert.False(t, CorrelationDrift(series[:10], 0.3, 0.7, 20))
}

func TestShortTermReversal(t *testing.T) {
	returns := make([]float64, 30)
	for i := range returns {
		returns[i] = -0.01
	}
	rev, ok := ShortTermReversal(returns, 22)
	require.True(t, ok)
	assert.InDelta(t, -0.22, rev, 1e-9)

	_, ok = ShortTermReversal(returns[:10], 22)
	assert.False(t, ok)
}

func TestRollingBeta(t *testing.T) {
	n := 100
	market := make([]float64, n)
	stock := make([]float64, n)
	for i := range market {
		market[i] = float64(i%9)/100 - 0.04
		stock[i] = 1.5 * market[i]
	}

	betas := RollingBeta(stock, market, 60)
	require.Len(t, betas, n)

	// Positions before the first full window hold NaN.
	assert.True(t, math.IsNaN(betas[0]))
	assert.True(t, math.IsNaN(betas[58]))
	assert.InDelta(t, 1.5, betas[59], 1e-9)
	assert.InDelta(t, 1.5, betas[n-1], 1e-9)

	assert.Nil(t, RollingBeta(stock[:30], market[:30], 60))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 20, cfg.StopLossLookback)
	assert.Equal(t, 0.10, cfg.StopLossThreshold)
	assert.Equal(t, 2.0, cfg.ATRMultiplier)
	assert.Equal(t, 14, cfg.ATRPeriod)
	assert.Equal(t, 50.0, cfg.BetaSpikePct)
	assert.Equal(t, 22, cfg.ReversalLookback)
}
