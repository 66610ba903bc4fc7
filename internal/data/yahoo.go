package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// YahooProvider fetches daily OHLCV bars from the Yahoo Finance chart
// API. It satisfies Provider and the optional SymbolName lookup.
type YahooProvider struct {
	client  *http.Client
	baseURL string
}

// NewYahooProvider builds a provider with a sane request timeout.
func NewYahooProvider() *YahooProvider {
	return &YahooProvider{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: yahooChartURL,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ShortName          string  `json:"shortName"`
				LongName           string  `json:"longName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (p *YahooProvider) fetchChart(ctx context.Context, symbol, rng string) (*chartResponse, error) {
	url := fmt.Sprintf("%s/%s?range=%s&interval=1d", p.baseURL, symbol, rng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "residualscan/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, symbol)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("chart %s: unexpected status %d", symbol, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("chart %s: decode: %w", symbol, err)
	}
	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("chart %s: %s", symbol, parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("chart %s: empty result", symbol)
	}
	return &parsed, nil
}

// DailyPrices returns up to days daily bars, oldest first. Sessions
// with a missing close are dropped.
func (p *YahooProvider) DailyPrices(ctx context.Context, symbol string, days int) ([]Bar, error) {
	rng := "1y"
	if days > 252 {
		rng = "2y"
	}
	parsed, err := p.fetchChart(ctx, symbol, rng)
	if err != nil {
		return nil, err
	}

	result := parsed.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("chart %s: no quote data", symbol)
	}
	quote := result.Indicators.Quote[0]

	bars := make([]Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		bar := Bar{
			Date:  time.Unix(ts, 0).UTC(),
			Close: *quote.Close[i],
		}
		if i < len(quote.Open) && quote.Open[i] != nil {
			bar.Open = *quote.Open[i]
		}
		if i < len(quote.High) && quote.High[i] != nil {
			bar.High = *quote.High[i]
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			bar.Low = *quote.Low[i]
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			bar.Volume = *quote.Volume[i]
		}
		bars = append(bars, bar)
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}

// CurrentPrice returns the latest regular-market price.
func (p *YahooProvider) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	parsed, err := p.fetchChart(ctx, symbol, "1d")
	if err != nil {
		return 0, err
	}
	price := parsed.Chart.Result[0].Meta.RegularMarketPrice
	if price <= 0 {
		return 0, fmt.Errorf("chart %s: no market price", symbol)
	}
	return price, nil
}

// SymbolName resolves the instrument's display name, preferring the
// short name.
func (p *YahooProvider) SymbolName(ctx context.Context, symbol string) (string, error) {
	parsed, err := p.fetchChart(ctx, symbol, "1d")
	if err != nil {
		return "", err
	}
	meta := parsed.Chart.Result[0].Meta
	if meta.ShortName != "" {
		return meta.ShortName, nil
	}
	return meta.LongName, nil
}
