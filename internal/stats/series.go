// Package stats provides the shared series math used by the factor,
// lifecycle and cross-sectional stages. All functions operate on plain
// float64 slices and never panic on short or degenerate input.
package stats

import "math"

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Sum returns the sum of the slice.
func Sum(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

// Std returns the population standard deviation, 0 for fewer than 1 value.
func Std(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// Variance returns the population variance.
func Variance(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	mean := Mean(values)
	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return ss / float64(n)
}

// StdSample returns the sample standard deviation (n-1 denominator),
// 0 for fewer than two values.
func StdSample(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	mean := Mean(values)
	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Diff returns first differences: out[i] = values[i+1] - values[i].
func Diff(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = values[i] - values[i-1]
	}
	return out
}

// CumSum returns the cumulative sum of the slice.
func CumSum(values []float64) []float64 {
	out := make([]float64, len(values))
	run := 0.0
	for i, v := range values {
		run += v
		out[i] = run
	}
	return out
}

// LogReturns converts a close-price series into daily log returns.
// Non-positive prices yield a zero return for that step.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i] <= 0 || closes[i-1] <= 0 {
			out[i-1] = 0
			continue
		}
		out[i-1] = math.Log(closes[i] / closes[i-1])
	}
	return out
}

// Max returns the maximum value, 0 for an empty slice.
func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// Min returns the minimum value, 0 for an empty slice.
func Min(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// Tail returns the trailing n elements, or the whole slice when shorter.
func Tail(values []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

// Correlation returns the Pearson correlation of two equal-length series.
// The second value is false when either series has near-zero variance or
// fewer than two observations remain after tail-aligning to the shorter.
func Correlation(a, b []float64) (float64, bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0, false
	}
	x := Tail(a, n)
	y := Tail(b, n)

	mx, my := Mean(x), Mean(y)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx := x[i] - mx
		dy := y[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx < 1e-20 || syy < 1e-20 {
		return 0, false
	}
	corr := sxy / math.Sqrt(sxx*syy)
	if math.IsNaN(corr) {
		return 0, false
	}
	return corr, true
}

// RollingCorrelation returns the correlation of the two series over a
// sliding window. Windows with degenerate variance contribute 0.
func RollingCorrelation(a, b []float64, window int) []float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if window < 2 || n <= window {
		return nil
	}
	x := Tail(a, n)
	y := Tail(b, n)

	out := make([]float64, 0, n-window)
	for i := window; i < n; i++ {
		c, ok := Correlation(x[i-window:i], y[i-window:i])
		if !ok {
			c = 0
		}
		out = append(out, c)
	}
	return out
}

// Covariance returns the sample covariance of two equal-length series.
func Covariance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	x := Tail(a, n)
	y := Tail(b, n)
	mx, my := Mean(x), Mean(y)
	s := 0.0
	for i := 0; i < n; i++ {
		s += (x[i] - mx) * (y[i] - my)
	}
	return s / float64(n-1)
}
