package scan

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/quantlab/residualscan/internal/alphabeta"
	"github.com/quantlab/residualscan/internal/data"
	"github.com/quantlab/residualscan/internal/exits"
	"github.com/quantlab/residualscan/internal/factors"
	"github.com/quantlab/residualscan/internal/lifecycle"
	"github.com/quantlab/residualscan/internal/pricing"
	"github.com/quantlab/residualscan/internal/quality"
	"github.com/quantlab/residualscan/internal/stats"
	"github.com/quantlab/residualscan/internal/trend"
)

// Reference factor symbols for the local stack.
const (
	GlobalMarketSymbol  = "SPY"
	SemiconductorSymbol = "SOXX"
	LocalIndexSymbol    = "0050.TW"

	holdingPeriodDays = 16
	ivolWindow        = 252
	maxReturnWindow   = 21
	amihudWindow      = 21
	frogInPanLookback = 60
	rollingBetaWindow = 60
	alphaBetaWindow   = 60
)

// FF3Set holds the regional daily factor series, already rescaled from
// percent to simple returns.
type FF3Set struct {
	MktRF []float64
	SMB   []float64
	HML   []float64
}

// FactorPreload is the shared read-only factor data loaded once per
// run. FF3 is nil for the local stack or when the regional load
// degraded.
type FactorPreload struct {
	Global []float64
	Aux    []float64
	Local  []float64
	FF3    *FF3Set
}

// Evaluator computes one ResultRow per symbol: factor decomposition,
// momentum lifecycle, quality filters, pricing and exit flags. Safe
// for concurrent use; all per-run state lives in the data cache.
type Evaluator struct {
	cache   *data.Cache
	namer   SymbolNamer // nil when the provider has no name lookup
	sectors SectorBenchmarkProvider
	market  string
	preload FactorPreload
	exitCfg exits.Config
}

// NewEvaluator wires an evaluator for one scan run. provider is probed
// for the optional SymbolNamer extension; sectors may be nil, in which
// case the local index substitutes for the sector benchmark.
func NewEvaluator(cache *data.Cache, provider data.Provider, sectors SectorBenchmarkProvider,
	market string, preload FactorPreload, exitCfg exits.Config) *Evaluator {
	namer, _ := provider.(SymbolNamer)
	return &Evaluator{
		cache:   cache,
		namer:   namer,
		sectors: sectors,
		market:  market,
		preload: preload,
		exitCfg: exitCfg,
	}
}

// IsLocalMarket reports whether the selector names the local market
// (the one whose session closes before the global reference session).
func IsLocalMarket(market string) bool {
	return market == "tw" || strings.HasPrefix(market, "tw_")
}

// NormalizeSymbol strips local-market exchange suffixes so provider
// symbols compare equal to cache file names.
func NormalizeSymbol(symbol string) string {
	symbol = strings.TrimSuffix(symbol, ".TWO")
	return strings.TrimSuffix(symbol, ".TW")
}

// ProviderSymbol maps a bare local-market code to its quoted form.
func ProviderSymbol(symbol, market string) string {
	if IsLocalMarket(market) && isDigits(symbol) {
		return symbol + ".TW"
	}
	return symbol
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Evaluate runs the full per-symbol numeric pipeline. Returns
// factors.ErrInsufficientData (wrapped) when the aligned history is
// too short; the orchestrator skips such symbols without failing the
// run.
func (e *Evaluator) Evaluate(ctx context.Context, symbol string) (*ResultRow, error) {
	stockReturns, err := e.cache.Returns(ctx, symbol)
	if err != nil {
		return nil, err
	}

	sectorSymbol, sectorReturns := e.resolveSector(ctx, symbol)

	set := factors.FactorSet{
		Stack:            factors.StackLocal,
		Global:           e.preload.Global,
		Aux:              e.preload.Aux,
		Local:            e.preload.Local,
		Sector:           sectorReturns,
		LagGlobalFactors: IsLocalMarket(e.market),
	}
	if e.preload.FF3 != nil {
		set = factors.FactorSet{
			Stack:  factors.StackRegional,
			Global: e.preload.FF3.MktRF,
			Aux:    e.preload.FF3.SMB,
			Value:  e.preload.FF3.HML,
			Local:  e.preload.Local,
			Sector: sectorReturns,
		}
	}

	dec, err := factors.Decompose(stockReturns, set)
	if err != nil {
		return nil, err
	}

	row := &ResultRow{Symbol: NormalizeSymbol(symbol)}
	row.MarketData.Sector = NormalizeSymbol(sectorSymbol)

	bars, _ := e.cache.History(ctx, symbol)
	e.fillMarketData(ctx, row, symbol, bars)

	cum := stats.CumSum(dec.Residual)
	momentumScore := lifecycle.Score(dec.Residual)

	e.fillMomentum(row, dec, bars)
	e.fillLifecycle(row, dec, cum)
	e.fillPricing(row, dec, momentumScore)
	e.fillExits(row, dec, cum, bars)

	row.AlphaBeta = alphabeta.Decompose(dec.StockAligned, dec.LocalAligned, alphaBetaWindow)
	return row, nil
}

// resolveSector picks the sector benchmark series for the symbol. A
// synthetic industry index is built once per industry per run from up
// to 20 proxy constituents; missing providers degrade to the local
// index.
func (e *Evaluator) resolveSector(ctx context.Context, symbol string) (string, []float64) {
	if e.sectors == nil {
		return LocalIndexSymbol, e.preload.Local
	}

	benchmark, err := e.sectors.SectorBenchmark(ctx, symbol, e.market)
	if err != nil || benchmark == "" {
		return LocalIndexSymbol, e.preload.Local
	}

	if industry, ok := strings.CutPrefix(benchmark, SyntheticPrefix); ok {
		series := e.cache.Synthetic(industry, func() []float64 {
			proxies, err := e.sectors.SectorProxies(ctx, industry)
			if err != nil {
				return nil
			}
			if len(proxies) > 20 {
				proxies = proxies[:20]
			}
			constituents := make([][]float64, 0, len(proxies))
			for _, proxy := range proxies {
				rets, err := e.cache.Returns(ctx, ProviderSymbol(proxy, e.market))
				if err != nil {
					continue
				}
				constituents = append(constituents, rets)
			}
			return factors.SyntheticBenchmark(constituents)
		})
		return benchmark, series
	}

	rets, err := e.cache.Returns(ctx, benchmark)
	if err != nil {
		log.Debug().Str("symbol", symbol).Str("benchmark", benchmark).Err(err).
			Msg("sector benchmark fetch failed, using local index")
		return LocalIndexSymbol, e.preload.Local
	}
	return benchmark, rets
}

func (e *Evaluator) fillMarketData(ctx context.Context, row *ResultRow, symbol string, bars []data.Bar) {
	row.MarketData.Name = NormalizeSymbol(symbol)
	if e.namer != nil {
		if name, err := e.namer.SymbolName(ctx, symbol); err == nil && name != "" {
			row.MarketData.Name = name
		}
	}
	if len(bars) == 0 {
		return
	}

	latest := bars[len(bars)-1]
	if latest.Open > 0 {
		row.MarketData.Open = roundPtr(latest.Open, 2)
	}
	if latest.High > 0 {
		row.MarketData.High = roundPtr(latest.High, 2)
	}
	if latest.Low > 0 {
		row.MarketData.Low = roundPtr(latest.Low, 2)
	}
	if latest.Close > 0 {
		row.MarketData.Close = roundPtr(latest.Close, 2)
	}
	if latest.Volume > 0 {
		row.MarketData.Volume = floatPtr(latest.Volume)
	}
	if len(bars) >= 2 {
		prev := bars[len(bars)-2].Close
		if prev > 0 {
			row.MarketData.PrevClose = roundPtr(prev, 2)
			row.MarketData.DailyReturn = roundPtr((latest.Close-prev)/prev*100, 2)
		}
	}
}

func (e *Evaluator) fillMomentum(row *ResultRow, dec *factors.Decomposition, bars []data.Bar) {
	raw := lifecycle.RawMomentum(dec.Residual)
	row.Momentum.RawMomentum = roundPtr(raw, 6)

	if b, ok := factors.LastBeta(dec.GlobalBeta); ok {
		row.Momentum.GlobalBeta = floatPtr(b)
	}
	if b, ok := factors.LastBeta(dec.LocalBeta); ok {
		row.Momentum.LocalBeta = floatPtr(b)
	}
	if b, ok := factors.LastBeta(dec.SectorBeta); ok {
		row.Momentum.SectorBeta = floatPtr(b)
	}

	row.Momentum.IVOL = roundPtr(quality.IVOL(dec.Residual, ivolWindow), 6)
	row.Momentum.MaxRet = roundPtr(quality.MaxReturn(dec.StockAligned, maxReturnWindow), 4)

	idScore := lifecycle.InformationDiscreteness(dec.StockAligned, len(dec.StockAligned))
	row.Momentum.IDScore = roundPtr(idScore, 4)
	row.Momentum.IDPass = idScore <= 0 // continuous small gains rate as high quality
	row.Momentum.OvernightPass = true

	if len(bars) > 10 {
		recent := bars[max(0, len(bars)-30):]
		closes := data.Closes(recent)
		for i := range closes {
			closes[i] += 1e-8
		}
		rets := stats.LogReturns(closes)
		volumes := data.Volumes(recent)
		if illiq := quality.AmihudIlliq(rets, volumes[1:], amihudWindow); illiq > 0 {
			row.Momentum.AmihudIlliq = roundPtr(illiq, 8)
		}
	}
	if len(bars) >= 2 {
		last2 := bars[len(bars)-2:]
		overnight, intraday, exclude := quality.OvernightConfirmation(data.Opens(last2), data.Closes(last2))
		row.Momentum.OvernightReturn = roundPtr(overnight, 4)
		row.Momentum.IntradayReturn = roundPtr(intraday, 4)
		row.Momentum.OvernightPass = !exclude
	}

	cum := stats.CumSum(dec.Residual)
	if len(cum) > 30 {
		tr := trend.Extract(cum)
		row.Momentum.TrendSlope = roundPtr(tr.Slope, 6)
		row.Momentum.TrendDays = tr.TrendDays
		row.Momentum.TrendConfirmed = trend.Confirm(tr.Slope, tr.TrendDays, 3)
	}
	row.Momentum.ResidualSource = "ols"
}

func (e *Evaluator) fillLifecycle(row *ResultRow, dec *factors.Decomposition, cum []float64) {
	halfLife, _ := lifecycle.HalfLife(dec.Residual)
	clamped := lifecycle.ClampHalfLife(halfLife)
	if halfLife < 1000 {
		row.Lifecycle.HalfLife = roundPtr(halfLife, 2)
	}

	age := lifecycle.SignalAge(cum, 1.0)
	if age >= 0 {
		row.Lifecycle.SignalAgeDays = intPtr(age)
	}
	meat, recommendation := lifecycle.RemainingMeat(age, clamped)
	if meat >= 0 {
		row.Lifecycle.RemainingMeatRatio = roundPtr(meat, 4)
	}
	row.Lifecycle.Recommendation = recommendation

	row.Lifecycle.ResidualRSI = roundPtr(lifecycle.ResidualRSI(cum, 14), 2)
	row.Lifecycle.FrogInPan = roundPtr(lifecycle.InformationDiscreteness(dec.StockAligned, frogInPanLookback), 4)

	if len(dec.StockAligned) >= 20 && len(dec.LocalAligned) >= 20 {
		s20 := stats.Tail(dec.StockAligned, 20)
		l20 := stats.Tail(dec.LocalAligned, 20)
		if corr, ok := stats.Correlation(s20, l20); ok {
			row.Lifecycle.Correlation20d = roundPtr(corr, 4)
		}
	}
}

func (e *Evaluator) fillPricing(row *ResultRow, dec *factors.Decomposition, momentumScore float64) {
	if row.MarketData.Close == nil {
		return
	}
	closePrice := *row.MarketData.Close
	dailyVol := stats.Std(dec.StockAligned)
	if closePrice <= 0 || dailyVol <= 0 {
		return
	}

	theo, expectedMovePct := pricing.TheoreticalPrice(closePrice, momentumScore, dailyVol, holdingPeriodDays)
	remaining, _ := pricing.RemainingAlpha(theo, closePrice, expectedMovePct*closePrice)

	row.Pricing.TheoPrice = roundPtr(theo, 2)
	row.Lifecycle.TheoreticalPrice = row.Pricing.TheoPrice
	if remaining > 0 {
		row.Pricing.RemainingAlpha = roundPtr(remaining, 4)
	}
	if theo > 0 {
		row.Pricing.DeviationPct = roundPtr((closePrice-theo)/theo*100, 2)
	}

	if len(dec.Residual) > 0 {
		residualStd := stats.Std(dec.Residual) * closePrice
		currentResidual := dec.Residual[len(dec.Residual)-1] * closePrice
		bounds := pricing.ComputeOUBounds(theo, residualStd, currentResidual, 0)
		row.Pricing.OUUpperBand = roundPtr(bounds.SellHigh, 2)
		row.Pricing.OULowerBand = roundPtr(bounds.BuyLower, 2)
	}
}

func (e *Evaluator) fillExits(row *ResultRow, dec *factors.Decomposition, cum []float64, bars []data.Bar) {
	cfg := e.exitCfg
	row.Lifecycle.RSIDivergence = lifecycle.DivergenceNone

	var closePrice float64
	if row.MarketData.Close != nil {
		closePrice = *row.MarketData.Close
	}

	if len(bars) > 5 && closePrice > 0 {
		recent := bars[max(0, len(bars)-30):]
		highs := data.Highs(recent)
		lows := data.Lows(recent)
		closes := data.Closes(recent)

		row.ExitSignals.StopLossTriggered = exits.StopLossTriggered(
			closePrice, highs, cfg.StopLossLookback, cfg.StopLossThreshold)
		if atr := exits.ATRTrailingStop(highs, lows, closes, cfg.ATRMultiplier, cfg.ATRPeriod); atr > 0 {
			row.ExitSignals.ATRTrailingStop = roundPtr(atr, 2)
		}

		if len(closes) > 20 {
			rsiSeries := lifecycle.RSISeries(cum, 14)
			row.Lifecycle.RSIDivergence = lifecycle.DetectRSIDivergence(
				stats.Tail(closes, 20), stats.Tail(rsiSeries, 20), 20)
		}
	}

	if len(dec.LocalBeta) >= 2 {
		change := exits.BetaChangePct(dec.LocalBeta[len(dec.LocalBeta)-1], dec.LocalBeta[len(dec.LocalBeta)-2])
		row.ExitSignals.BetaChangePct = roundPtr(change, 2)
		row.ExitSignals.BetaSpikeAlert = exits.BetaSpikeAlert(change, cfg.BetaSpikePct)
	}

	if len(cum) >= cfg.VolExpandLookback {
		volProxy := quality.IVOLSeries(dec.Residual, ivolWindow)
		row.ExitSignals.VolatilityExpansionFlag = exits.VolatilityExpansion(cum, volProxy, cfg.VolExpandLookback)
	}

	if len(dec.StockAligned) >= 2*cfg.CorrDriftWindow {
		corrSeries := stats.RollingCorrelation(dec.StockAligned, dec.LocalAligned, cfg.CorrDriftWindow)
		row.ExitSignals.CorrelationDrift = exits.CorrelationDrift(
			corrSeries, cfg.CorrDriftLow, cfg.CorrDriftHigh, cfg.CorrDriftWindow)
	}

	if reversal, ok := exits.ShortTermReversal(dec.StockAligned, cfg.ReversalLookback); ok {
		row.ExitSignals.ShortTermReversal = roundPtr(reversal, 6)
	}

	rolling := exits.RollingBeta(dec.StockAligned, dec.LocalAligned, rollingBetaWindow)
	if n := len(rolling); n > 0 && !math.IsNaN(rolling[n-1]) {
		row.ExitSignals.RollingBeta60d = roundPtr(rolling[n-1], 4)
	}
}
