package scan

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/quantlab/residualscan/internal/quality"
	"github.com/quantlab/residualscan/internal/stats"
	"github.com/quantlab/residualscan/internal/xsection"
)

// Winsorization bounds applied before the rank-normal transform.
const (
	winsorLowerPct = 1.0
	winsorUpperPct = 99.0
)

// Standardize fills each row's momentum field from the batch's raw
// momentum via winsorization and the rank-based inverse-normal (SNDZ)
// transform. This is the only place momentum is ever written;
// row-level evaluation produces raw momentum only. Batches with fewer
// than two valid rows are left untouched.
func Standardize(rows []*ResultRow) {
	var (
		indices []int
		values  []float64
	)
	for i, row := range rows {
		if row.Momentum.RawMomentum != nil {
			indices = append(indices, i)
			values = append(values, *row.Momentum.RawMomentum)
		}
	}
	if len(values) < 2 {
		return
	}

	scores := xsection.SNDZ(stats.Winsorize(values, winsorLowerPct, winsorUpperPct))
	for j, idx := range indices {
		rows[idx].Momentum.Momentum = roundPtr(scores[j], 4)
	}
	log.Debug().Int("rows", len(values)).
		Float64("mean", stats.Mean(scores)).Float64("std", stats.Std(scores)).
		Msg("momentum standardized")
}

// RankedRow augments a persisted row with the cross-sectional fields
// computed at export time.
type RankedRow struct {
	*ResultRow

	IVOLPercentile float64 `json:"ivol_percentile"`
	IVOLDecision   string  `json:"ivol_decision"`
	DecisionReason string  `json:"ivol_reason"`
	QualityPassed  bool    `json:"quality_passed"`
	ValueTrap      bool    `json:"value_trap"`

	HRPWeight      float64 `json:"hrp_weight"`
	AdjustedWeight float64 `json:"regime_adjusted_weight"`
}

// Ranking is the cross-sectional output for one day's batch.
type Ranking struct {
	Rows         []*RankedRow             `json:"rows"`
	SectorCounts map[string]int           `json:"sector_counts"`
	Dropped      []xsection.CorrelatedPair `json:"dropped_pairs"`
}

// RankingConfig tunes the cross-sectional pipeline.
type RankingConfig struct {
	SectorCapPct  float64 `yaml:"sector_cap_pct"`  // default 0.30
	CorrThreshold float64 `yaml:"corr_threshold"`  // default 0.8
	CorrLookback  int     `yaml:"corr_lookback"`   // default 60
	InverseVol    bool    `yaml:"inverse_vol"`     // alternative weighting mode
}

// DefaultRankingConfig returns the documented thresholds.
func DefaultRankingConfig() RankingConfig {
	return RankingConfig{SectorCapPct: 0.30, CorrThreshold: 0.8, CorrLookback: 60}
}

// BuildRanking runs the post-scan cross-sectional stage over a
// standardized batch: IVOL percentile decisions, sector-exposure
// capping, pairwise-correlation de-duplication and hierarchical
// risk-parity weighting, with a bull-probability tilt on the final
// weights. returns maps symbol to its trailing return series; symbols
// without history pass the correlation filter untouched.
func BuildRanking(rows []*ResultRow, returns map[string][]float64, bullProb float64, cfg RankingConfig) *Ranking {
	ranked := decideQuality(rows)

	// Sector cap, ranked by standardized momentum.
	bySymbol := make(map[string]*RankedRow, len(ranked))
	candidates := make([]xsection.Candidate, 0, len(ranked))
	for _, r := range ranked {
		bySymbol[r.Symbol] = r
		candidates = append(candidates, xsection.Candidate{
			Symbol:   r.Symbol,
			Sector:   r.MarketData.Sector,
			Momentum: momentumOrZero(r.ResultRow),
		})
	}
	capped, sectorCounts := xsection.ApplySectorCap(candidates, cfg.SectorCapPct)

	// Pairwise correlation de-duplication.
	kept, dropped := xsection.FilterHighCorrelation(capped, returns, cfg.CorrThreshold, cfg.CorrLookback)

	out := &Ranking{SectorCounts: sectorCounts, Dropped: dropped}
	symbols := make([]string, 0, len(kept))
	series := make([][]float64, 0, len(kept))
	for _, c := range kept {
		out.Rows = append(out.Rows, bySymbol[c.Symbol])
		if rets, ok := returns[c.Symbol]; ok && len(rets) > 1 {
			symbols = append(symbols, c.Symbol)
			series = append(series, rets)
		}
	}

	// Risk-parity weights over survivors with history.
	var weights map[string]float64
	if cfg.InverseVol {
		weights = xsection.InverseVolWeights(series, symbols)
	} else {
		weights = xsection.HRPAllocate(series, symbols)
	}
	for _, r := range out.Rows {
		w, ok := weights[r.Symbol]
		if !ok {
			continue
		}
		r.HRPWeight = round(w, 4)
		switch {
		case bullProb > 0.6:
			r.AdjustedWeight = round(w*1.2, 4)
		case bullProb < 0.4:
			r.AdjustedWeight = round(w*0.5, 4)
		default:
			r.AdjustedWeight = r.HRPWeight
		}
	}
	return out
}

// decideQuality computes the cross-sectional IVOL percentile for each
// row and applies the IVOL x F-Score decision matrix plus the value
// trap check.
func decideQuality(rows []*ResultRow) []*RankedRow {
	ivols := make([]float64, 0, len(rows))
	for _, row := range rows {
		if row.Momentum.IVOL != nil {
			ivols = append(ivols, *row.Momentum.IVOL)
		}
	}
	sort.Float64s(ivols)

	ranked := make([]*RankedRow, 0, len(rows))
	for _, row := range rows {
		r := &RankedRow{ResultRow: row, IVOLPercentile: 50}
		if row.Momentum.IVOL != nil && len(ivols) > 0 {
			r.IVOLPercentile = round(percentileRank(ivols, *row.Momentum.IVOL), 1)
		}

		var fScore *int
		var peRatio, accrual *float64
		if row.Fundamentals != nil {
			fScore = row.Fundamentals.FScore
			peRatio = row.Fundamentals.PE
			accrual = row.Fundamentals.AccrualRatio
		}
		r.QualityPassed, r.IVOLDecision, r.DecisionReason = quality.IVOLFScoreMatrix(r.IVOLPercentile, fScore)
		r.ValueTrap = quality.IsValueTrap(peRatio, pePercentile(rows, peRatio), accrual)
		ranked = append(ranked, r)
	}
	return ranked
}

// percentileRank returns the percentage of sorted values at or below v.
func percentileRank(sorted []float64, v float64) float64 {
	n := sort.SearchFloat64s(sorted, v)
	for n < len(sorted) && sorted[n] <= v {
		n++
	}
	return float64(n) / float64(len(sorted)) * 100
}

// pePercentile ranks a PE against the batch, nil when PE is missing.
func pePercentile(rows []*ResultRow, pe *float64) *float64 {
	if pe == nil {
		return nil
	}
	pes := make([]float64, 0, len(rows))
	for _, row := range rows {
		if row.Fundamentals != nil && row.Fundamentals.PE != nil {
			pes = append(pes, *row.Fundamentals.PE)
		}
	}
	if len(pes) == 0 {
		return nil
	}
	sort.Float64s(pes)
	return floatPtr(percentileRank(pes, *pe))
}

func momentumOrZero(row *ResultRow) float64 {
	if row.Momentum.Momentum != nil {
		return *row.Momentum.Momentum
	}
	return 0
}
