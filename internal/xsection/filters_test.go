package xsection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplySectorCap(t *testing.T) {
	candidates := []Candidate{
		{Symbol: "A1", Sector: "Tech", Momentum: 3.0},
		{Symbol: "A2", Sector: "Tech", Momentum: 2.5},
		{Symbol: "A3", Sector: "Tech", Momentum: 2.0},
		{Symbol: "A4", Sector: "Tech", Momentum: 1.5},
		{Symbol: "A5", Sector: "Tech", Momentum: 1.0},
		{Symbol: "B1", Sector: "Finance", Momentum: 2.2},
		{Symbol: "B2", Sector: "Finance", Momentum: 1.8},
		{Symbol: "C1", Sector: "Energy", Momentum: 0.5},
		{Symbol: "C2", Sector: "Energy", Momentum: 0.4},
		{Symbol: "D1", Sector: "Retail", Momentum: 0.3},
	}

	kept, counts := ApplySectorCap(candidates, 0.30)

	// floor(10 * 0.30) = 3 per sector: Tech loses its two weakest.
	assert.Equal(t, 3, counts["Tech"])
	assert.Equal(t, 2, counts["Finance"])
	assert.Equal(t, 2, counts["Energy"])
	assert.Equal(t, 1, counts["Retail"])
	require.Len(t, kept, 8)

	symbols := make(map[string]bool, len(kept))
	for _, c := range kept {
		symbols[c.Symbol] = true
	}
	assert.False(t, symbols["A4"])
	assert.False(t, symbols["A5"])
	assert.True(t, symbols["A3"])

	// Output is sorted by momentum descending.
	for i := 1; i < len(kept); i++ {
		assert.GreaterOrEqual(t, kept[i-1].Momentum, kept[i].Momentum)
	}
}

func TestApplySectorCapSmallBatch(t *testing.T) {
	// The cap never drops below one symbol per sector.
	candidates := []Candidate{
		{Symbol: "A", Sector: "Tech", Momentum: 1.0},
		{Symbol: "B", Sector: "Tech", Momentum: 0.5},
	}
	kept, counts := ApplySectorCap(candidates, 0.30)
	require.Len(t, kept, 1)
	assert.Equal(t, "A", kept[0].Symbol)
	assert.Equal(t, 1, counts["Tech"])
}

func TestApplySectorCapUnknownSector(t *testing.T) {
	candidates := []Candidate{{Symbol: "X", Momentum: 1.0}}
	kept, counts := ApplySectorCap(candidates, 0.30)
	require.Len(t, kept, 1)
	assert.Equal(t, 1, counts["Unknown"])

	kept, counts = ApplySectorCap(nil, 0.30)
	assert.Empty(t, kept)
	assert.Empty(t, counts)
}

func TestFilterHighCorrelation(t *testing.T) {
	n := 60
	base := make([]float64, n)
	inverse := make([]float64, n)
	for i := range base {
		base[i] = float64(i%7)/100 - 0.03
		inverse[i] = -base[i]
	}
	near := make([]float64, n)
	copy(near, base)
	for i := 0; i < n; i += 2 {
		near[i] += 0.0001
	}
	independent := make([]float64, n)
	for i := range independent {
		independent[i] = float64((i*13)%11)/100 - 0.05
	}

	candidates := []Candidate{
		{Symbol: "HI", Momentum: 2.0},
		{Symbol: "LO", Momentum: 1.0},
		{Symbol: "NEG", Momentum: 1.5},
		{Symbol: "IND", Momentum: 0.5},
	}
	returns := map[string][]float64{
		"HI":  base,
		"LO":  near,
		"NEG": inverse,
		"IND": independent,
	}

	kept, dropped := FilterHighCorrelation(candidates, returns, 0.8, 60)

	keptSymbols := make(map[string]bool)
	for _, c := range kept {
		keptSymbols[c.Symbol] = true
	}
	// The higher-momentum member of each correlated pair survives;
	// absolute correlation catches the inverse twin too.
	assert.True(t, keptSymbols["HI"])
	assert.False(t, keptSymbols["LO"])
	assert.False(t, keptSymbols["NEG"])
	assert.True(t, keptSymbols["IND"])

	require.Len(t, dropped, 2)
	for _, p := range dropped {
		assert.Equal(t, "HI", p.Kept)
	}
}

func TestFilterHighCorrelationMissingHistory(t *testing.T) {
	candidates := []Candidate{
		{Symbol: "A", Momentum: 2.0},
		{Symbol: "B", Momentum: 1.0},
	}
	// B has too little history to be compared: nobody is dropped.
	returns := map[string][]float64{
		"A": make([]float64, 60),
		"B": make([]float64, 10),
	}
	kept, dropped := FilterHighCorrelation(candidates, returns, 0.8, 60)
	assert.Len(t, kept, 2)
	assert.Empty(t, dropped)

	kept, dropped = FilterHighCorrelation(candidates, nil, 0.8, 60)
	assert.Len(t, kept, 2)
	assert.Empty(t, dropped)
}
