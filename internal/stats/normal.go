package stats

import (
	"math"
	"sort"
)

// NormPpf returns the inverse of the standard normal CDF using the
// Acklam rational approximation, accurate to roughly 1.15e-9 over the
// open interval (0, 1). Inputs at or outside the interval return +-Inf.
func NormPpf(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}

	a := [6]float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02, 1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := [5]float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02, 6.680131188771972e+01, -1.328068155288572e+01}
	c := [6]float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00, -2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := [4]float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00, 3.754408661907416e+00}

	const pLow = 0.02425
	const pHigh = 1 - pLow

	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p > pHigh:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	default:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}
}

// RankAverage assigns 1-based ranks with ties receiving the average of
// the ranks they span, matching the "average" tie-break rule.
func RankAverage(values []float64) []float64 {
	n := len(values)
	if n == 0 {
		return nil
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		// Ranks i+1..j+1 share the same value.
		avg := float64(i+j+2) / 2.0
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// Percentile returns the rank percentile (0-100) of value within history
// counting entries less than or equal to value.
func Percentile(value float64, history []float64) float64 {
	if len(history) == 0 {
		return 0
	}
	count := 0
	for _, h := range history {
		if h <= value {
			count++
		}
	}
	return float64(count) / float64(len(history)) * 100
}

// Winsorize clips the slice to its own [lowPct, highPct] percentiles.
// Percentiles are expressed on a 0-100 scale.
func Winsorize(values []float64, lowPct, highPct float64) []float64 {
	n := len(values)
	if n == 0 {
		return nil
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	lo := sorted[boundIndex(lowPct, n)]
	hi := sorted[boundIndex(highPct, n)]

	out := make([]float64, n)
	for i, v := range values {
		switch {
		case v < lo:
			out[i] = lo
		case v > hi:
			out[i] = hi
		default:
			out[i] = v
		}
	}
	return out
}

func boundIndex(pct float64, n int) int {
	i := int(math.Round(pct / 100 * float64(n-1)))
	if i < 0 {
		i = 0
	}
	if i > n-1 {
		i = n - 1
	}
	return i
}
