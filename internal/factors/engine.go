package factors

import (
	"errors"
	"fmt"
	"math"

	"github.com/quantlab/residualscan/internal/stats"
)

// ErrInsufficientData is returned when the aligned sample is shorter
// than the minimum estimation window. Callers skip the symbol rather
// than computing on a short window.
var ErrInsufficientData = errors.New("insufficient aligned observations")

// MinObservations is the minimum aligned sample length required for
// decomposition.
const MinObservations = 60

// Stack selects which factor set is stripped from the instrument.
type Stack string

const (
	// StackLocal strips global market + semiconductor proxy + local
	// market index + sector benchmark. Global factors may be lagged one
	// day for markets whose session closes after the global reference.
	StackLocal Stack = "local"

	// StackRegional strips the Fama-French three factors plus a sector
	// ETF, with no lag.
	StackRegional Stack = "regional"
)

// FactorSet holds the reference return series for one decomposition.
// Which fields are consulted depends on the stack:
//
//	local:    Global (market index), Aux (semiconductor proxy),
//	          Local (local market index), Sector
//	regional: Global (Mkt-RF), Aux (SMB), Value (HML), Sector
type FactorSet struct {
	Stack  Stack
	Global []float64
	Aux    []float64
	Value  []float64
	Local  []float64
	Sector []float64

	// LagGlobalFactors shifts the global and aux series back one day
	// relative to the instrument, for markets trading ahead of the
	// global reference session.
	LagGlobalFactors bool
}

// Decomposition is the result of sequential beta stripping. Beta series
// keep the original naming from the local stack; on the regional stack
// the size beta is reported under LocalBeta and the value beta under
// AuxBeta so downstream consumers see a uniform shape.
type Decomposition struct {
	Residual []float64

	GlobalBeta []float64
	AuxBeta    []float64
	LocalBeta  []float64
	SectorBeta []float64

	// StockAligned and LocalAligned are the instrument and local-market
	// series after alignment and lagging, retained for downstream
	// correlation and rolling-beta calculations.
	StockAligned []float64
	LocalAligned []float64
}

// LastBeta returns the final value of a beta series rounded to four
// decimals, and false when the series is empty.
func LastBeta(beta []float64) (float64, bool) {
	if len(beta) == 0 {
		return 0, false
	}
	return math.Round(beta[len(beta)-1]*1e4) / 1e4, true
}

// Decompose strips the factor set from the instrument returns in fixed
// order and returns the final residual with per-layer betas.
func Decompose(instrument []float64, set FactorSet) (*Decomposition, error) {
	series := [][]float64{instrument, set.Global, set.Local, set.Sector}
	if set.Aux != nil {
		series = append(series, set.Aux)
	}
	if set.Stack == StackRegional && set.Value != nil {
		series = append(series, set.Value)
	}

	minLen := len(instrument)
	for _, s := range series {
		if len(s) < minLen {
			minLen = len(s)
		}
	}
	if minLen < MinObservations {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientData, minLen, MinObservations)
	}

	stock := stats.Tail(instrument, minLen)
	global := stats.Tail(set.Global, minLen)
	aux := stats.Tail(set.Aux, minLen)
	local := stats.Tail(set.Local, minLen)
	sector := stats.Tail(set.Sector, minLen)

	if set.Stack == StackRegional {
		value := stats.Tail(set.Value, minLen)
		return decomposeRegional(stock, global, aux, value, sector, local)
	}
	return decomposeLocal(stock, global, aux, local, sector, set.LagGlobalFactors)
}

// decomposeLocal: global market -> semiconductor proxy -> local market
// index -> sector benchmark.
func decomposeLocal(stock, global, aux, local, sector []float64, lag bool) (*Decomposition, error) {
	if lag && len(stock) > 1 {
		// Local day T reacts to the global session of day T-1.
		global = global[:len(global)-1]
		aux = aux[:len(aux)-1]
		stock = stock[1:]
		local = local[1:]
		sector = sector[1:]
	}

	globalBeta := KalmanBetaDefault(global, stock)
	residual := subtractContribution(stock, globalBeta, global)

	auxBeta := KalmanBetaDefault(aux, residual)
	residual = subtractContribution(residual, auxBeta, aux)

	local = alignTo(local, len(residual))
	localBeta := KalmanBetaDefault(local, residual)
	residual = subtractContribution(residual, localBeta, local)

	sector = alignTo(sector, len(residual))
	sectorBeta := KalmanBetaDefault(sector, residual)
	residual = subtractContribution(residual, sectorBeta, sector)

	return &Decomposition{
		Residual:     residual,
		GlobalBeta:   globalBeta,
		AuxBeta:      auxBeta,
		LocalBeta:    localBeta,
		SectorBeta:   sectorBeta,
		StockAligned: stock,
		LocalAligned: local,
	}, nil
}

// decomposeRegional: Mkt-RF -> SMB -> HML -> sector ETF, no lag.
func decomposeRegional(stock, mktRF, smb, hml, sector, local []float64) (*Decomposition, error) {
	globalBeta := KalmanBetaDefault(mktRF, stock)
	residual := subtractContribution(stock, globalBeta, mktRF)

	smbBeta := KalmanBetaDefault(smb, residual)
	residual = subtractContribution(residual, smbBeta, smb)

	hmlBeta := KalmanBetaDefault(hml, residual)
	residual = subtractContribution(residual, hmlBeta, hml)

	sector = alignTo(sector, len(residual))
	sectorBeta := KalmanBetaDefault(sector, residual)
	residual = subtractContribution(residual, sectorBeta, sector)

	return &Decomposition{
		Residual:     residual,
		GlobalBeta:   globalBeta,
		AuxBeta:      hmlBeta,
		LocalBeta:    smbBeta,
		SectorBeta:   sectorBeta,
		StockAligned: stock,
		LocalAligned: local,
	}, nil
}

func subtractContribution(series, beta, factor []float64) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		out[i] = series[i] - beta[i]*factor[i]
	}
	return out
}

func alignTo(series []float64, n int) []float64 {
	if len(series) == n {
		return series
	}
	return stats.Tail(series, n)
}

// SyntheticBenchmark builds an equal-weighted return series from the
// constituents' return series, tail-aligned to the shortest. Used when
// an industry has no tradable sector ETF.
func SyntheticBenchmark(constituents [][]float64) []float64 {
	valid := make([][]float64, 0, len(constituents))
	minLen := 0
	for _, c := range constituents {
		if len(c) == 0 {
			continue
		}
		if minLen == 0 || len(c) < minLen {
			minLen = len(c)
		}
		valid = append(valid, c)
	}
	if len(valid) == 0 || minLen == 0 {
		return nil
	}

	out := make([]float64, minLen)
	for _, c := range valid {
		tail := stats.Tail(c, minLen)
		for i, v := range tail {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(valid))
	}
	return out
}
