// Package alphabeta splits a stock's recent return into alpha and beta
// contribution shares via OLS against the market series.
package alphabeta

import (
	"math"

	"github.com/quantlab/residualscan/internal/stats"
)

// Contribution is the alpha/beta decomposition block on the result row.
type Contribution struct {
	Alpha                float64 `json:"alpha"`
	Beta                 float64 `json:"beta"`
	AlphaContributionPct float64 `json:"alpha_contribution_pct"`
	BetaContributionPct  float64 `json:"beta_contribution_pct"`
	TotalReturn          float64 `json:"total_return"`
	AlphaReturn          float64 `json:"alpha_return"`
	BetaReturn           float64 `json:"beta_return"`
	RSquared             float64 `json:"r_squared"`
	IsAllWeather         bool    `json:"is_all_weather"`
}

// Decompose regresses the trailing window of stock returns on market
// returns (R = alpha + beta*Rm + eps) and splits the cumulative return
// into alpha and beta contribution percentages. Insufficient history
// returns the neutral prior (beta 1, contribution fully systematic).
func Decompose(stock, market []float64, window int) Contribution {
	if len(stock) < window || len(market) < window {
		return Contribution{Beta: 1, BetaContributionPct: 100}
	}

	y := stats.Tail(stock, window)
	x := stats.Tail(market, window)

	mx, my := stats.Mean(x), stats.Mean(y)
	var sxy, sxx float64
	for i := range x {
		sxy += (x[i] - mx) * (y[i] - my)
		sxx += (x[i] - mx) * (x[i] - mx)
	}

	beta := 1.0
	if sxx > 1e-10 {
		beta = sxy / sxx
	}
	alpha := my - beta*mx

	// R-squared of the fit.
	var ssRes, ssTot float64
	for i := range x {
		pred := alpha + beta*x[i]
		ssRes += (y[i] - pred) * (y[i] - pred)
		ssTot += (y[i] - my) * (y[i] - my)
	}
	rSquared := 0.0
	if ssTot > 1e-10 {
		rSquared = 1 - ssRes/ssTot
	}

	totalReturn := stats.Sum(y)
	alphaReturn := alpha * float64(window)
	betaReturn := beta * stats.Sum(x)

	alphaPct, betaPct := 50.0, 50.0
	absAlpha, absBeta := math.Abs(alphaReturn), math.Abs(betaReturn)
	if absAlpha+absBeta > 1e-10 && math.Abs(totalReturn) > 1e-10 {
		alphaPct = absAlpha / (absAlpha + absBeta) * 100
		betaPct = 100 - alphaPct
	}

	return Contribution{
		Alpha:                alpha,
		Beta:                 beta,
		AlphaContributionPct: alphaPct,
		BetaContributionPct:  betaPct,
		TotalReturn:          totalReturn * 100,
		AlphaReturn:          alphaReturn * 100,
		BetaReturn:           betaReturn * 100,
		RSquared:             rSquared,
		IsAllWeather:         alphaPct > 50,
	}
}
