package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestIVOL(t *testing.T) {
	assert.Equal(t, 0.0, IVOL(nil, 252))
	assert.Equal(t, 0.0, IVOL([]float64{0.01}, 252))

	// Sample std of {0.01, 0.03} is sqrt(2)*0.01.
	assert.InDelta(t, 0.0141421, IVOL([]float64{0.01, 0.03}, 252), 1e-6)

	// Only the trailing window counts.
	residual := make([]float64, 300)
	for i := 280; i < 300; i++ {
		residual[i] = 0.05
	}
	full := IVOL(residual, 252)
	short := IVOL(residual, 20)
	assert.Greater(t, full, 0.0)
	assert.InDelta(t, 0.0, short, 1e-12, "trailing 20 days are constant")
}

func TestIVOLSeries(t *testing.T) {
	residual := []float64{0.01, -0.01, 0.02, -0.02}
	series := IVOLSeries(residual, 252)
	require.Len(t, series, 4)
	assert.Equal(t, 0.0, series[0])
	for i := 1; i < len(series); i++ {
		assert.Greater(t, series[i], 0.0)
	}
}

func TestMaxReturn(t *testing.T) {
	returns := []float64{0.01, 0.08, -0.02, 0.03}
	assert.Equal(t, 0.08, MaxReturn(returns, 21))
	assert.Equal(t, 0.03, MaxReturn(returns, 1), "window narrows to the last day")
	assert.Equal(t, 0.0, MaxReturn(nil, 21))
}

func TestAmihudIlliq(t *testing.T) {
	returns := []float64{0.02, -0.02}
	volumes := []float64{1000, 1000}
	value := AmihudIlliq(returns, volumes, 21)
	assert.InDelta(t, 0.02/1000, value, 1e-9)

	// Thin volume inflates the measure.
	thin := AmihudIlliq(returns, []float64{10, 10}, 21)
	assert.Greater(t, thin, value)

	assert.Equal(t, 0.0, AmihudIlliq(returns, nil, 21))
	assert.Equal(t, 0.0, AmihudIlliq(nil, volumes, 21))
}

func TestOvernightConfirmation(t *testing.T) {
	// Gap down, intraday rally: retail chasing, excluded.
	overnight, intraday, exclude := OvernightConfirmation(
		[]float64{100, 98}, []float64{100, 101})
	assert.InDelta(t, -0.02, overnight, 1e-9)
	assert.InDelta(t, 101.0/98.0-1, intraday, 1e-9)
	assert.True(t, exclude)

	// Gap up with follow-through: informed flow, kept.
	_, _, exclude = OvernightConfirmation(
		[]float64{100, 102}, []float64{100, 103})
	assert.False(t, exclude)

	// Down day: kept regardless of the gap.
	_, _, exclude = OvernightConfirmation(
		[]float64{100, 99}, []float64{100, 97})
	assert.False(t, exclude)

	_, _, exclude = OvernightConfirmation([]float64{100}, []float64{100})
	assert.False(t, exclude)
}

func TestIVOLFScoreMatrix(t *testing.T) {
	tests := []struct {
		name       string
		percentile float64
		fScore     *int
		wantPass   bool
		wantDec    string
	}{
		{"high ivol strong quality", 85, intPtr(8), true, DecisionOpportunity},
		{"high ivol medium quality", 85, intPtr(5), true, DecisionWatch},
		{"high ivol weak quality", 85, intPtr(3), false, DecisionReject},
		{"mid ivol decent quality", 60, intPtr(6), true, DecisionStandard},
		{"mid ivol weak quality", 60, intPtr(2), false, DecisionReject},
		{"low ivol decent quality", 20, intPtr(7), true, DecisionDefensive},
		{"low ivol weak quality", 20, intPtr(1), false, DecisionReject},
		{"no fscore low ivol", 50, nil, true, DecisionStandard},
		{"no fscore high ivol", 85, nil, false, DecisionReject},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			passed, decision, reason := IVOLFScoreMatrix(tc.percentile, tc.fScore)
			assert.Equal(t, tc.wantPass, passed)
			assert.Equal(t, tc.wantDec, decision)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestIsValueTrap(t *testing.T) {
	assert.True(t, IsValueTrap(floatPtr(4), floatPtr(3), floatPtr(0.08)))
	assert.False(t, IsValueTrap(floatPtr(4), floatPtr(3), floatPtr(0.02)), "low accruals")
	assert.False(t, IsValueTrap(floatPtr(4), floatPtr(50), floatPtr(0.08)), "not cheap enough")
	assert.False(t, IsValueTrap(nil, floatPtr(3), floatPtr(0.08)), "missing data never flags")
}
