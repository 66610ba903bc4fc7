// Package pricing projects theoretical target prices from momentum
// strength and decayed alpha, and derives Ornstein-Uhlenbeck
// mean-reversion bounds around a fair-value estimate.
package pricing

import "math"

// Trade signals derived from the remaining-alpha ratio.
const (
	SignalExecute = "EXECUTE"
	SignalReduce  = "REDUCE"
	SignalAbort   = "ABORT"
)

// TheoreticalPrice projects a statistical target price from the
// momentum z-score and daily volatility over the holding period:
// expected move = z * sigma * sqrt(H). Degenerate inputs return the
// current price with zero expected move; a non-positive target is
// floored at 1% of the current price.
func TheoreticalPrice(currentPrice, momentumZ, dailyVol float64, holdingDays int) (target, expectedMove float64) {
	if currentPrice <= 0 || dailyVol <= 0 {
		return currentPrice, 0
	}
	expectedMove = momentumZ * dailyVol * math.Sqrt(float64(holdingDays))
	target = currentPrice * (1 + expectedMove)
	if target <= 0 {
		target = currentPrice * 0.01
	}
	return target, expectedMove
}

// AlphaDecayResult is the output of the alpha-decay projection model.
type AlphaDecayResult struct {
	TargetPrice     float64 `json:"target_price"`
	ExpectedMovePct float64 `json:"expected_move_pct"`
	Systematic      float64 `json:"systematic_component"`
	ResidualFactor  float64 `json:"residual_component"`
	DecayLambda     float64 `json:"decay_lambda"`
}

// AlphaDecayPrice projects the target price under decaying alpha:
//
//	P_target = P * (1 + beta*Rm)^H * exp((alpha/lambda) * ln(1 + lambda*H))
//
// with H the holding period in years. When lambda is effectively zero
// the integral degrades to alpha*H.
func AlphaDecayPrice(currentPrice, alphaAnnual, betaMarket, marketReturn, lambda, holdingMonths float64) AlphaDecayResult {
	if currentPrice <= 0 {
		return AlphaDecayResult{DecayLambda: lambda}
	}

	hYears := holdingMonths / 12.0
	systematic := math.Pow(1+betaMarket*marketReturn, hYears)

	var integral float64
	if lambda > 0.001 {
		integral = (alphaAnnual / lambda) * math.Log(1+lambda*hYears)
	} else {
		integral = alphaAnnual * hYears
	}
	residualFactor := math.Exp(integral)

	target := currentPrice * systematic * residualFactor
	return AlphaDecayResult{
		TargetPrice:     target,
		ExpectedMovePct: (target - currentPrice) / currentPrice,
		Systematic:      systematic,
		ResidualFactor:  residualFactor,
		DecayLambda:     lambda,
	}
}

// OUBounds are entry/exit price bands around the fair-value estimate.
type OUBounds struct {
	BuyLower          float64 `json:"buy_lower"`
	BuyUpper          float64 `json:"buy_upper"`
	SellHigh          float64 `json:"sell_high"`
	SellExtreme       float64 `json:"sell_extreme"`
	CurrentDeviationZ float64 `json:"current_deviation_z"`
}

// Band multipliers for the OU mean-reversion bounds.
const (
	kEntryLower  = 0.5
	kEntryUpper  = 1.5
	kExitHigh    = 2.5
	kExitExtreme = 3.0
)

// ComputeOUBounds derives the mean-reversion bands
// fair +- k*sigma_residual and the current deviation z-score.
// residualStd and currentResidual are in price units.
func ComputeOUBounds(fairPrice, residualStd, currentResidual, meanReversionLevel float64) OUBounds {
	base := fairPrice + meanReversionLevel
	b := OUBounds{
		BuyLower:    base + kEntryLower*residualStd,
		BuyUpper:    base + kEntryUpper*residualStd,
		SellHigh:    base + kExitHigh*residualStd,
		SellExtreme: base + kExitExtreme*residualStd,
	}
	if residualStd > 0 {
		b.CurrentDeviationZ = (currentResidual - meanReversionLevel) / residualStd
	}
	return b
}

// RemainingAlpha returns the remaining upside ratio
// (target-current)/current and the discrete trade signal: EXECUTE above
// 3%, REDUCE above 1%, otherwise ABORT. Non-positive inputs abort.
func RemainingAlpha(targetPrice, currentPrice, expectedMove float64) (float64, string) {
	if currentPrice <= 0 || expectedMove <= 0 {
		return 0, SignalAbort
	}
	remaining := (targetPrice - currentPrice) / currentPrice
	if remaining <= 0 {
		return 0, SignalAbort
	}
	switch {
	case remaining >= 0.03:
		return remaining, SignalExecute
	case remaining >= 0.01:
		return remaining, SignalReduce
	default:
		return remaining, SignalAbort
	}
}

// MeanReversionSpeed returns theta = ln(2)/halfLife, the OU reversion
// speed, and false for a non-positive half-life.
func MeanReversionSpeed(halfLife float64) (float64, bool) {
	if halfLife <= 0 || math.IsInf(halfLife, 1) {
		return 0, false
	}
	return math.Ln2 / halfLife, true
}
