// Package trend extracts a smoothed trend from the cumulative residual
// curve and confirms whether the momentum signal is still rising. The
// extraction approximates an EEMD decomposition with layered moving
// averages over a mirror-padded series.
package trend

// Result describes the extracted trend of a cumulative residual curve.
type Result struct {
	Slope     float64 `json:"eemd_slope"`
	TrendDays int     `json:"eemd_days"`
	Confirmed bool    `json:"eemd_confirmed"`
}

const padLen = 21

// Extract smooths the cumulative residual and measures the recent
// slope together with the run of consecutive rising days. Series
// shorter than twice the pad length yield a zero result.
func Extract(cumResidual []float64) Result {
	if len(cumResidual) < padLen*2 {
		return Result{}
	}

	padded := mirrorPad(cumResidual, padLen)

	// Two smoothing layers: short then medium.
	smooth := movingAverage(padded, minInt(5, len(padded)/4))
	smooth = movingAverage(smooth, minInt(21, len(smooth)/4))

	trend := smooth[padLen : len(smooth)-padLen]
	if len(trend) != len(cumResidual) {
		trend = cumResidual
	}

	n := minInt(5, len(trend))
	slope := 0.0
	if n > 1 {
		slope = (trend[len(trend)-1] - trend[len(trend)-n]) / float64(n)
	}

	days := 0
	for i := len(trend) - 1; i > 0; i-- {
		if trend[i] > trend[i-1] {
			days++
		} else {
			break
		}
	}

	return Result{
		Slope:     slope,
		TrendDays: days,
		Confirmed: Confirm(slope, days, 3),
	}
}

// Confirm reports whether the trend is valid: positive slope sustained
// for at least minDays consecutive days.
func Confirm(slope float64, trendDays, minDays int) bool {
	return slope > 0 && trendDays >= minDays
}

func mirrorPad(series []float64, pad int) []float64 {
	n := len(series)
	out := make([]float64, 0, n+2*pad)
	for i := pad; i > 0; i-- {
		out = append(out, series[i])
	}
	out = append(out, series...)
	for i := n - 2; i >= n-1-pad; i-- {
		out = append(out, series[i])
	}
	return out
}

func movingAverage(series []float64, window int) []float64 {
	if window <= 1 {
		return series
	}
	out := make([]float64, len(series))
	half := window / 2
	for i := range series {
		lo := i - half
		hi := i + (window - half)
		if lo < 0 {
			lo = 0
		}
		if hi > len(series) {
			hi = len(series)
		}
		sum := 0.0
		for j := lo; j < hi; j++ {
			sum += series[j]
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
