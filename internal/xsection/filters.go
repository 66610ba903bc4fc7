package xsection

import (
	"math"
	"sort"

	"github.com/quantlab/residualscan/internal/stats"
)

// Candidate is a row entering the cross-sectional filters.
type Candidate struct {
	Symbol   string
	Sector   string
	Momentum float64
}

// ApplySectorCap keeps at most max(1, floor(total*capPct)) symbols per
// sector, ranked by momentum, dropping the lowest-momentum excess.
// Returns the kept candidates sorted by momentum descending plus the
// per-sector kept counts.
func ApplySectorCap(candidates []Candidate, capPct float64) ([]Candidate, map[string]int) {
	if len(candidates) == 0 {
		return nil, map[string]int{}
	}

	bySector := make(map[string][]Candidate)
	for _, c := range candidates {
		sector := c.Sector
		if sector == "" {
			sector = "Unknown"
		}
		bySector[sector] = append(bySector[sector], c)
	}

	maxPerSector := int(float64(len(candidates)) * capPct)
	if maxPerSector < 1 {
		maxPerSector = 1
	}

	kept := make([]Candidate, 0, len(candidates))
	counts := make(map[string]int, len(bySector))
	for sector, group := range bySector {
		sort.Slice(group, func(a, b int) bool { return group[a].Momentum > group[b].Momentum })
		if len(group) > maxPerSector {
			group = group[:maxPerSector]
		}
		kept = append(kept, group...)
		counts[sector] = len(group)
	}

	sort.Slice(kept, func(a, b int) bool { return kept[a].Momentum > kept[b].Momentum })
	return kept, counts
}

// CorrelatedPair records a dropped high-correlation pair.
type CorrelatedPair struct {
	Kept        string
	Dropped     string
	Correlation float64
}

// FilterHighCorrelation drops the lower-momentum member of any pair
// whose absolute return correlation over the lookback exceeds the
// threshold. Correlation is only computed when both symbols have at
// least lookback days of return history; symbols lacking history are
// never dropped.
func FilterHighCorrelation(candidates []Candidate, returns map[string][]float64, threshold float64, lookback int) ([]Candidate, []CorrelatedPair) {
	if len(candidates) < 2 || returns == nil {
		return candidates, nil
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Momentum > sorted[b].Momentum })

	removed := make(map[string]bool)
	var pairs []CorrelatedPair

	for i, a := range sorted {
		if removed[a.Symbol] {
			continue
		}
		retA, ok := returns[a.Symbol]
		if !ok || len(retA) < lookback {
			continue
		}
		for j := i + 1; j < len(sorted); j++ {
			b := sorted[j]
			if removed[b.Symbol] {
				continue
			}
			retB, ok := returns[b.Symbol]
			if !ok || len(retB) < lookback {
				continue
			}

			n := minInt(minInt(len(retA), len(retB)), lookback)
			corr, ok := stats.Correlation(stats.Tail(retA, n), stats.Tail(retB, n))
			if !ok {
				continue
			}
			if math.Abs(corr) > threshold {
				// b has the lower momentum; drop it.
				removed[b.Symbol] = true
				pairs = append(pairs, CorrelatedPair{Kept: a.Symbol, Dropped: b.Symbol, Correlation: corr})
			}
		}
	}

	kept := make([]Candidate, 0, len(sorted))
	for _, c := range sorted {
		if !removed[c.Symbol] {
			kept = append(kept, c)
		}
	}
	return kept, pairs
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
