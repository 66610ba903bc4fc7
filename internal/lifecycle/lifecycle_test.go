package lifecycle

import (
	"math"
	"math/rand"
	"testing"

	"github.com/quantlab/residualscan/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	assert.Equal(t, 0.0, Score(nil))
	assert.Equal(t, 0.0, Score([]float64{0.5, 0.5, 0.5}), "zero variance is neutral, not NaN")

	residual := []float64{0.01, 0.02, 0.03}
	want := stats.Mean(residual) / stats.Std(residual)
	assert.InDelta(t, want, Score(residual), 1e-12)
	assert.Greater(t, Score(residual), 0.0)
}

func TestRawMomentum(t *testing.T) {
	assert.InDelta(t, 0.06, RawMomentum([]float64{0.01, 0.02, 0.03}), 1e-12)
	assert.Equal(t, 0.0, RawMomentum(nil))
}

func TestSignalAge(t *testing.T) {
	flat := []float64{1, 1, 1, 1}
	assert.Equal(t, -1, SignalAge(flat, 1.0), "zero variance never fires")
	assert.Equal(t, -1, SignalAge([]float64{1}, 1.0))

	// Flat curve with a late jump: the jump day is the crossing.
	curve := []float64{0, 0, 0, 0, 0, 0, 0, 0, 10, 11}
	age := SignalAge(curve, 1.0)
	assert.Equal(t, 1, age)

	// A curve that never exceeds one z-score of itself.
	assert.Equal(t, -1, SignalAge([]float64{0, 1, 0, 1, 0, 1}, 1.0))
}

func TestHalfLifeAR1(t *testing.T) {
	// Synthetic AR(1) with rho = 0.9: half-life = ln2 / -ln(0.9).
	rng := rand.New(rand.NewSource(21))
	n := 2000
	series := make([]float64, n)
	series[0] = 1
	for i := 1; i < n; i++ {
		series[i] = 0.9*series[i-1] + 0.01*rng.NormFloat64()
	}

	hl, lambda := HalfLife(series)
	require.False(t, math.IsInf(hl, 1))
	wantHL := math.Ln2 / -math.Log(0.9)
	assert.InDelta(t, wantHL, hl, wantHL*0.2)
	assert.InDelta(t, math.Ln2/hl, lambda, 1e-12)
}

func TestHalfLifeDegenerate(t *testing.T) {
	hl, lambda := HalfLife([]float64{1, 2, 3})
	assert.True(t, math.IsInf(hl, 1))
	assert.Equal(t, 0.0, lambda)

	// Explosive series (rho >= 1) has no mean reversion.
	explosive := make([]float64, 50)
	explosive[0] = 1
	for i := 1; i < len(explosive); i++ {
		explosive[i] = 1.1 * explosive[i-1]
	}
	hl, _ = HalfLife(explosive)
	assert.True(t, math.IsInf(hl, 1))

	hl, _ = HalfLife(make([]float64, 50))
	assert.True(t, math.IsInf(hl, 1), "all-zero lag has zero variance")
}

func TestClampHalfLife(t *testing.T) {
	assert.Equal(t, DefaultHalfLife, ClampHalfLife(math.Inf(1)))
	assert.Equal(t, DefaultHalfLife, ClampHalfLife(1500))
	assert.Equal(t, 30.0, ClampHalfLife(30))
}

func TestRemainingMeat(t *testing.T) {
	meat, rec := RemainingMeat(-1, 60)
	assert.Equal(t, -1.0, meat)
	assert.Equal(t, RecommendExit, rec)

	meat, rec = RemainingMeat(0, 60)
	assert.Equal(t, 1.0, meat)
	assert.Equal(t, RecommendAggressiveHold, rec)

	// exp(-30/60) ~ 0.6065 -> maintain.
	meat, rec = RemainingMeat(30, 60)
	assert.InDelta(t, 0.6065, meat, 1e-3)
	assert.Equal(t, RecommendMaintain, rec)

	// exp(-60/60) ~ 0.3679 -> reduce.
	_, rec = RemainingMeat(60, 60)
	assert.Equal(t, RecommendReduce, rec)

	// exp(-120/60) ~ 0.1353 -> exit.
	_, rec = RemainingMeat(120, 60)
	assert.Equal(t, RecommendExit, rec)
}

func TestRemainingMeatMonotonic(t *testing.T) {
	prev := 2.0
	for age := 0; age <= 200; age += 10 {
		meat, _ := RemainingMeat(age, 45)
		assert.LessOrEqual(t, meat, prev, "age %d", age)
		prev = meat
	}
}

func TestResidualRSI(t *testing.T) {
	assert.Equal(t, 50.0, ResidualRSI([]float64{1, 2, 3}, 14), "short curve is neutral")

	// Strictly rising curve: all gains, no losses.
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = float64(i)
	}
	assert.Equal(t, 100.0, ResidualRSI(rising, 14))

	// Strictly falling curve.
	falling := make([]float64, 30)
	for i := range falling {
		falling[i] = -float64(i)
	}
	assert.InDelta(t, 0.0, ResidualRSI(falling, 14), 1e-9)

	// Alternating equal up/down steps balance to 50.
	alternating := make([]float64, 31)
	for i := 1; i < len(alternating); i++ {
		if i%2 == 0 {
			alternating[i] = alternating[i-1] - 1
		} else {
			alternating[i] = alternating[i-1] + 1
		}
	}
	assert.InDelta(t, 50.0, ResidualRSI(alternating, 14), 1e-9)
}

func TestRSISeriesLength(t *testing.T) {
	curve := make([]float64, 40)
	for i := range curve {
		curve[i] = float64(i * i)
	}
	series := RSISeries(curve, 14)
	require.Len(t, series, 40)
	assert.Equal(t, 50.0, series[0], "prefixes below period+1 are neutral")
	assert.Equal(t, 100.0, series[39])
}

func TestDetectRSIDivergence(t *testing.T) {
	lookback := 5

	// Price makes a new high while RSI fades: bearish.
	prices := []float64{100, 101, 102, 103, 104}
	rsi := []float64{70, 75, 72, 68, 65}
	assert.Equal(t, DivergenceBearish, DetectRSIDivergence(prices, rsi, lookback))

	// Price makes a new low while RSI holds up: bullish.
	prices = []float64{104, 103, 102, 101, 100}
	rsi = []float64{30, 25, 28, 32, 35}
	assert.Equal(t, DivergenceBullish, DetectRSIDivergence(prices, rsi, lookback))

	// Both confirm the high: no divergence.
	prices = []float64{100, 101, 102, 103, 104}
	rsi = []float64{60, 65, 70, 75, 80}
	assert.Equal(t, DivergenceNone, DetectRSIDivergence(prices, rsi, lookback))

	assert.Equal(t, DivergenceNone, DetectRSIDivergence(prices[:2], rsi[:2], lookback))
}

func TestInformationDiscreteness(t *testing.T) {
	assert.Equal(t, 0.0, InformationDiscreteness([]float64{0.01, 0.02}, 60))

	// Steady small gains: positive cumret, all positive days ->
	// strongly negative ID (continuous information).
	steady := make([]float64, 20)
	for i := range steady {
		steady[i] = 0.005
	}
	id := InformationDiscreteness(steady, 20)
	assert.InDelta(t, -1.0, id, 1e-12)

	// One big jump among mostly down days: positive cumret carried by a
	// discrete move -> positive ID.
	jumpy := make([]float64, 20)
	for i := range jumpy {
		jumpy[i] = -0.002
	}
	jumpy[10] = 0.30
	id = InformationDiscreteness(jumpy, 20)
	assert.Greater(t, id, 0.0)
}
