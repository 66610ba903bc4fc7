// Package xsection implements the once-per-batch cross-sectional
// stage: the SNDZ rank-based inverse-normal transform, sector exposure
// capping, pairwise-correlation de-duplication, and the HRP /
// inverse-volatility allocators. Everything here operates on the full
// day's batch, never per symbol.
package xsection

import (
	"math"

	"github.com/quantlab/residualscan/internal/stats"
)

// SNDZ applies the rank-based inverse-normal transform: percentile
// ranks (rank-0.5)/n over the non-NaN values, then the inverse standard
// normal CDF. The output is approximately N(0,1) regardless of the
// input distribution shape. NaN entries pass through unchanged; a
// single valid value maps to 0.
func SNDZ(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}

	validIdx := make([]int, 0, len(values))
	valid := make([]float64, 0, len(values))
	for i, v := range values {
		if !math.IsNaN(v) {
			validIdx = append(validIdx, i)
			valid = append(valid, v)
		}
	}

	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(valid) == 0 {
		return out
	}
	if len(valid) == 1 {
		out[validIdx[0]] = 0
		return out
	}

	ranks := stats.RankAverage(valid)
	n := float64(len(valid))
	for j, idx := range validIdx {
		p := (ranks[j] - 0.5) / n
		out[idx] = stats.NormPpf(p)
	}
	return out
}
