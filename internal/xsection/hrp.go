package xsection

import (
	"math"

	"github.com/quantlab/residualscan/internal/stats"
)

// HRPAllocate computes hierarchical risk-parity weights from the
// assets' aligned return series (returns[i] is the series for
// symbols[i]). Correlation distance sqrt(0.5*(1-corr)) feeds a
// single-linkage clustering whose leaf order drives recursive
// bisection risk parity. Falls back to equal weights when the
// covariance has NaNs or any asset has zero variance. Weights always
// sum to 1.
func HRPAllocate(returns [][]float64, symbols []string) map[string]float64 {
	n := len(symbols)
	if n == 0 || len(returns) != n {
		return map[string]float64{}
	}
	if n == 1 {
		return map[string]float64{symbols[0]: 1}
	}

	cov := covarianceMatrix(returns)
	corr := correlationMatrix(returns)
	if cov == nil || corr == nil {
		return equalWeights(symbols)
	}
	for i := 0; i < n; i++ {
		if cov[i][i] < 1e-10 {
			return equalWeights(symbols)
		}
		for j := 0; j < n; j++ {
			if math.IsNaN(cov[i][j]) || math.IsNaN(corr[i][j]) {
				return equalWeights(symbols)
			}
		}
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := range dist[i] {
			if i == j {
				continue
			}
			dist[i][j] = math.Sqrt(0.5 * (1 - corr[i][j]))
		}
	}

	order := singleLinkageOrder(dist)
	weights := recursiveBisection(cov, order)

	out := make(map[string]float64, n)
	for i, w := range weights {
		out[symbols[i]] = w
	}
	return out
}

// InverseVolWeights is the traditional fallback mode: weights
// proportional to 1/sigma of each asset's return series.
func InverseVolWeights(returns [][]float64, symbols []string) map[string]float64 {
	n := len(symbols)
	if n == 0 || len(returns) != n {
		return map[string]float64{}
	}
	if n == 1 {
		return map[string]float64{symbols[0]: 1}
	}

	invVols := make([]float64, n)
	total := 0.0
	for i, series := range returns {
		vol := stats.StdSample(series)
		if vol == 0 {
			vol = 0.01
		}
		invVols[i] = 1 / vol
		total += invVols[i]
	}

	out := make(map[string]float64, n)
	for i, s := range symbols {
		out[s] = invVols[i] / total
	}
	return out
}

func equalWeights(symbols []string) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		out[s] = 1 / float64(len(symbols))
	}
	return out
}

func covarianceMatrix(returns [][]float64) [][]float64 {
	n := len(returns)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = stats.Covariance(returns[i], returns[j])
		}
	}
	return out
}

func correlationMatrix(returns [][]float64) [][]float64 {
	n := len(returns)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			if i == j {
				out[i][j] = 1
				continue
			}
			c, ok := stats.Correlation(returns[i], returns[j])
			if !ok {
				return nil
			}
			out[i][j] = c
		}
	}
	return out
}

// singleLinkageOrder performs agglomerative single-linkage clustering
// on the distance matrix and returns the dendrogram leaf order used
// for quasi-diagonalization.
func singleLinkageOrder(dist [][]float64) []int {
	n := len(dist)

	// Each active cluster keeps its member leaves in dendrogram order.
	clusters := make([][]int, n)
	for i := range clusters {
		clusters[i] = []int{i}
	}

	// Minimum leaf-pair distance between two clusters (single linkage).
	linkDist := func(a, b []int) float64 {
		min := math.Inf(1)
		for _, i := range a {
			for _, j := range b {
				if dist[i][j] < min {
					min = dist[i][j]
				}
			}
		}
		return min
	}

	for len(clusters) > 1 {
		bi, bj := 0, 1
		best := math.Inf(1)
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				if d := linkDist(clusters[i], clusters[j]); d < best {
					best, bi, bj = d, i, j
				}
			}
		}
		merged := append(append([]int{}, clusters[bi]...), clusters[bj]...)
		next := make([][]int, 0, len(clusters)-1)
		for k, c := range clusters {
			if k != bi && k != bj {
				next = append(next, c)
			}
		}
		clusters = append(next, merged)
	}

	return clusters[0]
}

// recursiveBisection splits the ordered asset list in half repeatedly,
// allocating between halves in inverse proportion to their equal-weight
// portfolio variances.
func recursiveBisection(cov [][]float64, order []int) []float64 {
	n := len(order)
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}

	queue := [][]int{append([]int{}, order...)}
	for len(queue) > 0 {
		var next [][]int
		for _, cluster := range queue {
			if len(cluster) <= 1 {
				continue
			}
			mid := len(cluster) / 2
			left, right := cluster[:mid], cluster[mid:]

			varLeft := clusterVariance(cov, left)
			varRight := clusterVariance(cov, right)

			alpha := 0.5
			if varLeft+varRight > 0 {
				alpha = 1 - varLeft/(varLeft+varRight)
			}
			for _, i := range left {
				weights[i] *= alpha
			}
			for _, i := range right {
				weights[i] *= 1 - alpha
			}

			if len(left) > 1 {
				next = append(next, left)
			}
			if len(right) > 1 {
				next = append(next, right)
			}
		}
		queue = next
	}

	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total > 0 {
		for i := range weights {
			weights[i] /= total
		}
	}
	return weights
}

// clusterVariance is the equal-weight portfolio variance of the subset.
func clusterVariance(cov [][]float64, indices []int) float64 {
	if len(indices) == 0 {
		return 0
	}
	if len(indices) == 1 {
		return cov[indices[0]][indices[0]]
	}
	n := float64(len(indices))
	sum := 0.0
	for _, i := range indices {
		for _, j := range indices {
			sum += cov[i][j]
		}
	}
	return sum / (n * n)
}
