package scan

import (
	"math"

	"github.com/quantlab/residualscan/internal/alphabeta"
)

// MarketData is the OHLCV snapshot block of a persisted row.
type MarketData struct {
	Name        string   `json:"name"`
	Sector      string   `json:"sector"`
	Open        *float64 `json:"open"`
	High        *float64 `json:"high"`
	Low         *float64 `json:"low"`
	Close       *float64 `json:"close"`
	PrevClose   *float64 `json:"prev_close"`
	Volume      *float64 `json:"volume"`
	DailyReturn *float64 `json:"daily_return"`
}

// MomentumBlock carries the per-symbol momentum raw values and quality
// filter metrics. Momentum stays nil until the cross-sectional stage
// standardizes the batch; row-level evaluation only ever fills
// RawMomentum.
type MomentumBlock struct {
	Momentum    *float64 `json:"momentum"`
	RawMomentum *float64 `json:"raw_momentum"`
	GlobalBeta  *float64 `json:"global_beta"`
	LocalBeta   *float64 `json:"local_beta"`
	SectorBeta  *float64 `json:"sector_beta"`
	IVOL        *float64 `json:"ivol"`
	MaxRet      *float64 `json:"max_ret"`

	IDScore         *float64 `json:"id_score"`
	IDPass          bool     `json:"id_pass"`
	AmihudIlliq     *float64 `json:"amihud_illiq"`
	OvernightReturn *float64 `json:"overnight_return"`
	IntradayReturn  *float64 `json:"intraday_return"`
	OvernightPass   bool     `json:"overnight_pass"`

	TrendSlope     *float64 `json:"eemd_slope"`
	TrendDays      int      `json:"eemd_days"`
	TrendConfirmed bool     `json:"eemd_confirmed"`

	ResidualSource string `json:"residual_source"`
}

// PricingBlock holds the theoretical-price projection. The trade
// signal depends on cross-sectional values and is computed at export
// time, not here.
type PricingBlock struct {
	TheoPrice      *float64 `json:"theo_price"`
	RemainingAlpha *float64 `json:"remaining_alpha"`
	DeviationPct   *float64 `json:"theoretical_price_deviation_pct"`
	OUUpperBand    *float64 `json:"ou_upper_band"`
	OULowerBand    *float64 `json:"ou_lower_band"`
}

// LifecycleBlock holds the signal-aging metrics.
type LifecycleBlock struct {
	SignalAgeDays      *int     `json:"signal_age_days"`
	RemainingMeatRatio *float64 `json:"remaining_meat_ratio"`
	Recommendation     string   `json:"recommendation"`
	ResidualRSI        *float64 `json:"residual_rsi"`
	RSIDivergence      string   `json:"rsi_divergence"`
	FrogInPan          *float64 `json:"frog_in_pan_id"`
	TheoreticalPrice   *float64 `json:"theoretical_price"`
	HalfLife           *float64 `json:"half_life"`
	Correlation20d     *float64 `json:"correlation_20d"`
}

// ExitBlock holds the independently computed exit flags. Aggregate
// action is left to the report layer.
type ExitBlock struct {
	StopLossTriggered       bool     `json:"stop_loss_triggered"`
	BetaChangePct           *float64 `json:"beta_change_pct"`
	BetaSpikeAlert          bool     `json:"beta_spike_alert"`
	ATRTrailingStop         *float64 `json:"atr_trailing_stop"`
	VolatilityExpansionFlag bool     `json:"volatility_expansion_flag"`
	CorrelationDrift        bool     `json:"correlation_drift"`
	ShortTermReversal       *float64 `json:"short_term_reversal"`
	RollingBeta60d          *float64 `json:"rolling_beta_60d"`
}

// FundamentalBlock is the persisted fundamental snapshot plus the
// derived valuation fields.
type FundamentalBlock struct {
	RevYoY          *float64 `json:"rev_yoy"`
	RevMoM          *float64 `json:"rev_mom"`
	CFORatio        *float64 `json:"cfo_ratio"`
	AccrualRatio    *float64 `json:"accrual_ratio"`
	PB              *float64 `json:"pb"`
	FScore          *int     `json:"f_score"`
	GrossMargin     *float64 `json:"gross_margin"`
	OperatingMargin *float64 `json:"operating_margin"`
	NetMargin       *float64 `json:"net_margin"`
	ROE             *float64 `json:"roe"`
	ROA             *float64 `json:"roa"`
	PE              *float64 `json:"pe"`
	DebtRatio       *float64 `json:"debt_ratio"`
	TTMEPS          *float64 `json:"ttm_eps"`
	TotalDebt       *float64 `json:"total_debt"`
	Equity          *float64 `json:"equity"`
}

// ResultRow is the unit of scan output: one symbol, one trading day.
// The JSON layout is the durable contract consumed by the export and
// report layers. Immutable after write; overwritten only by a forced
// rescan.
type ResultRow struct {
	Symbol string `json:"-"`

	MarketData   MarketData             `json:"market_data"`
	Momentum     MomentumBlock          `json:"momentum"`
	Pricing      PricingBlock           `json:"pricing"`
	Lifecycle    LifecycleBlock         `json:"lifecycle"`
	ExitSignals  ExitBlock              `json:"exit_signals"`
	AlphaBeta    alphabeta.Contribution `json:"alpha_beta"`
	Fundamentals *FundamentalBlock      `json:"statementdog"`
	Updated      string                 `json:"updated"`
}

// BuildFundamentals converts a provider summary into the persisted
// block, deriving PE from the close price and the debt ratio from the
// balance-sheet figures. Returns nil for a nil or failed summary.
func BuildFundamentals(s *FundamentalSummary, closePrice *float64) *FundamentalBlock {
	if s == nil || s.Err != "" {
		return nil
	}
	b := &FundamentalBlock{
		RevYoY:          s.RevYoY,
		RevMoM:          s.RevMoM,
		CFORatio:        s.CFORatio,
		AccrualRatio:    s.AccrualRatio,
		PB:              s.PB,
		FScore:          s.FScore,
		GrossMargin:     s.GrossMargin,
		OperatingMargin: s.OperatingMargin,
		NetMargin:       s.NetMargin,
		ROE:             s.ROE,
		ROA:             s.ROA,
		TTMEPS:          s.TTMEPS,
		TotalDebt:       s.TotalDebt,
		Equity:          s.Equity,
	}
	if closePrice != nil && s.TTMEPS != nil && *s.TTMEPS != 0 {
		b.PE = roundPtr(*closePrice / *s.TTMEPS, 2)
	}
	var debt, equity float64
	if s.TotalDebt != nil {
		debt = *s.TotalDebt
	}
	if s.Equity != nil {
		equity = *s.Equity
	}
	if debt+equity != 0 {
		b.DebtRatio = roundPtr(debt/(debt+equity)*100, 2)
	}
	return b
}

// RawMomentumValue returns the row's raw momentum, with missing values
// sorted to the bottom of the batch.
func (r *ResultRow) RawMomentumValue() float64 {
	if r.Momentum.RawMomentum == nil {
		return -math.MaxFloat64
	}
	return *r.Momentum.RawMomentum
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}

func roundPtr(v float64, places int) *float64 {
	r := round(v, places)
	return &r
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }
