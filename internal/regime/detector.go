// Package regime classifies the market state driving aggregate scan
// reporting: a volatility-state bull probability, a Hurst trend
// persistence estimate, and the combined label.
package regime

import (
	"math"

	"github.com/quantlab/residualscan/internal/stats"
)

// State is the volatility regime classification.
type State int

const (
	LowVol  State = iota // usually bull
	HighVol              // usually bear
)

func (s State) String() string {
	switch s {
	case LowVol:
		return "low_vol"
	case HighVol:
		return "high_vol"
	default:
		return "unknown"
	}
}

// Labels for the aggregate regime estimate.
const (
	LabelBull    = "bull"
	LabelBear    = "bear"
	LabelNeutral = "neutral"
)

// Config holds regime detection thresholds.
type Config struct {
	Lookback     int     `yaml:"lookback"`      // default 60
	VolThreshold float64 `yaml:"vol_threshold"` // recent/long-term vol ratio, default 1.5
}

// DefaultConfig returns the standard detection thresholds.
func DefaultConfig() Config {
	return Config{Lookback: 60, VolThreshold: 1.5}
}

// Detect estimates the current regime from the market return series by
// comparing recent volatility against the preceding long-term window.
// Returns the state and a bull probability in [0, 1]; insufficient data
// yields (LowVol, 0.5).
func Detect(returns []float64, cfg Config) (State, float64) {
	if cfg.Lookback <= 0 {
		cfg = DefaultConfig()
	}
	if len(returns) < cfg.Lookback {
		return LowVol, 0.5
	}

	recent := stats.Tail(returns, cfg.Lookback)
	recentVol := stats.Std(recent)

	longTermVol := recentVol
	if len(returns) >= cfg.Lookback*2 {
		prev := returns[len(returns)-cfg.Lookback*2 : len(returns)-cfg.Lookback]
		longTermVol = stats.Std(prev)
	}

	volRatio := recentVol / (longTermVol + 1e-8)

	var state State
	var bullProb float64
	switch {
	case volRatio > cfg.VolThreshold:
		state, bullProb = HighVol, 0.3
	case volRatio < 1/cfg.VolThreshold:
		state, bullProb = LowVol, 0.8
	default:
		state, bullProb = LowVol, 0.5+(1-volRatio)*0.3
	}

	// Tilt by return direction.
	if stats.Mean(recent) > 0 {
		bullProb = math.Min(1, bullProb+0.1)
	} else {
		bullProb = math.Max(0, bullProb-0.1)
	}

	return state, bullProb
}

// Label maps the bull probability to the reporting label: bull above
// 0.6, bear below 0.4, neutral between.
func Label(bullProb float64) string {
	switch {
	case bullProb > 0.6:
		return LabelBull
	case bullProb < 0.4:
		return LabelBear
	default:
		return LabelNeutral
	}
}

// HurstExponent estimates trend persistence from the price series with
// a rescaled-range analysis over dyadic subsample lengths. Returns 0.5
// (random walk) when fewer than 100 observations or the estimate is
// degenerate. H > 0.55 indicates trending, H < 0.45 mean reversion.
func HurstExponent(prices []float64) float64 {
	if len(prices) < 100 {
		return 0.5
	}
	rets := stats.LogReturns(prices)
	if len(rets) < 64 {
		return 0.5
	}

	var logN, logRS []float64
	for window := 8; window <= len(rets)/2; window *= 2 {
		chunks := len(rets) / window
		if chunks == 0 {
			break
		}
		rsSum, rsCount := 0.0, 0
		for c := 0; c < chunks; c++ {
			seg := rets[c*window : (c+1)*window]
			rs, ok := rescaledRange(seg)
			if ok {
				rsSum += rs
				rsCount++
			}
		}
		if rsCount == 0 {
			continue
		}
		logN = append(logN, math.Log(float64(window)))
		logRS = append(logRS, math.Log(rsSum/float64(rsCount)))
	}
	if len(logN) < 2 {
		return 0.5
	}

	// OLS slope of log(R/S) on log(n) is the Hurst exponent.
	mx, my := stats.Mean(logN), stats.Mean(logRS)
	var sxy, sxx float64
	for i := range logN {
		sxy += (logN[i] - mx) * (logRS[i] - my)
		sxx += (logN[i] - mx) * (logN[i] - mx)
	}
	if sxx == 0 {
		return 0.5
	}
	h := sxy / sxx
	if h < 0 || h > 1 || math.IsNaN(h) {
		return 0.5
	}
	return h
}

func rescaledRange(seg []float64) (float64, bool) {
	std := stats.Std(seg)
	if std == 0 {
		return 0, false
	}
	mean := stats.Mean(seg)
	cum := 0.0
	minC, maxC := 0.0, 0.0
	for _, v := range seg {
		cum += v - mean
		if cum < minC {
			minC = cum
		}
		if cum > maxC {
			maxC = cum
		}
	}
	r := maxC - minC
	if r <= 0 {
		return 0, false
	}
	return r / std, true
}
