package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/quantlab/residualscan/internal/metrics"
	"github.com/quantlab/residualscan/internal/stats"
)

// CacheConfig tunes the run cache's fetch behavior.
type CacheConfig struct {
	Lookback     int           `yaml:"lookback"`       // return-series length, default 120
	HistoryDays  int           `yaml:"history_days"`   // fetched bar history, default 252
	MaxAttempts  int           `yaml:"max_attempts"`   // rate-limit retries, default 3
	BackoffBase  time.Duration `yaml:"backoff_base"`   // wait is base*attempt, default 30s
	RatePerSec   float64       `yaml:"rate_per_sec"`   // provider request rate, default 2
	RateBurst    int           `yaml:"rate_burst"`     // default 1
	RedisTTL     time.Duration `yaml:"redis_ttl"`      // warm-cache TTL, default 24h
	RedisKeyDate string        `yaml:"-"`              // as-of date for warm-cache keys
}

// DefaultCacheConfig returns the standard fetch tuning.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Lookback:    120,
		HistoryDays: 252,
		MaxAttempts: 3,
		BackoffBase: 30 * time.Second,
		RatePerSec:  2,
		RateBurst:   1,
		RedisTTL:    24 * time.Hour,
	}
}

// Cache memoizes market data for the lifetime of one scan run.
type Cache struct {
	provider Provider
	cfg      CacheConfig
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	redis    *redis.Client // optional warm cache, may be nil

	mu        sync.RWMutex
	history   map[string][]Bar
	returns   map[string][]float64
	synthetic map[string][]float64
}

// NewCache builds a run cache over the provider. redisClient may be
// nil, in which case only the in-memory layer is used.
func NewCache(provider Provider, cfg CacheConfig, redisClient *redis.Client) *Cache {
	if cfg.Lookback == 0 {
		cfg = DefaultCacheConfig()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "market-data",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Cache{
		provider:  provider,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), maxInt(cfg.RateBurst, 1)),
		breaker:   breaker,
		redis:     redisClient,
		history:   make(map[string][]Bar),
		returns:   make(map[string][]float64),
		synthetic: make(map[string][]float64),
	}
}

// History returns the memoized daily bar history for the symbol,
// fetching it once per run. A history shorter than the lookback is
// treated as missing.
func (c *Cache) History(ctx context.Context, symbol string) ([]Bar, error) {
	c.mu.RLock()
	bars, ok := c.history[symbol]
	c.mu.RUnlock()
	if ok {
		return bars, nil
	}

	bars, err := c.fetchWithRetry(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(bars) < c.cfg.Lookback {
		return nil, fmt.Errorf("history for %s too short: %d/%d bars", symbol, len(bars), c.cfg.Lookback)
	}

	c.mu.Lock()
	c.history[symbol] = bars
	c.mu.Unlock()
	return bars, nil
}

// Returns computes the memoized trailing log-return series for the
// symbol from its cached history.
func (c *Cache) Returns(ctx context.Context, symbol string) ([]float64, error) {
	c.mu.RLock()
	rets, ok := c.returns[symbol]
	c.mu.RUnlock()
	if ok {
		return rets, nil
	}

	if rets := c.warmCacheGet(ctx, symbol); rets != nil {
		c.mu.Lock()
		c.returns[symbol] = rets
		c.mu.Unlock()
		return rets, nil
	}

	bars, err := c.History(ctx, symbol)
	if err != nil {
		return nil, err
	}
	closes := stats.Tail(Closes(bars), c.cfg.Lookback)
	rets = stats.LogReturns(closes)

	c.mu.Lock()
	c.returns[symbol] = rets
	c.mu.Unlock()
	c.warmCacheSet(ctx, symbol, rets)
	return rets, nil
}

// Synthetic returns the memoized synthetic sector benchmark for the
// industry, building it once per run from the proxies' return series
// via the build function. Built read-only thereafter.
func (c *Cache) Synthetic(industry string, build func() []float64) []float64 {
	c.mu.RLock()
	series, ok := c.synthetic[industry]
	c.mu.RUnlock()
	if ok {
		return series
	}

	series = build()
	c.mu.Lock()
	c.synthetic[industry] = series
	c.mu.Unlock()
	return series
}

// CachedReturns exposes the memoized return series accumulated during
// the run, for the cross-sectional correlation stage. The map is a
// shallow copy; the series are shared read-only.
func (c *Cache) CachedReturns() map[string][]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]float64, len(c.returns))
	for k, v := range c.returns {
		out[k] = v
	}
	return out
}

// FetchCount reports how many symbols have fetched history this run.
func (c *Cache) FetchCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.history)
}

// fetchWithRetry pulls daily bars through the rate limiter and circuit
// breaker, retrying rate-limited fetches with a linear-exponential
// backoff (base * attempt) up to the configured attempt count.
func (c *Cache) fetchWithRetry(ctx context.Context, symbol string) ([]Bar, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.provider.DailyPrices(ctx, symbol, c.cfg.HistoryDays)
		})
		if err == nil {
			metrics.ProviderFetches.WithLabelValues("ok").Inc()
			return result.([]Bar), nil
		}
		lastErr = err
		metrics.ProviderFetches.WithLabelValues("error").Inc()

		if !errors.Is(err, ErrRateLimited) || attempt == c.cfg.MaxAttempts {
			return nil, err
		}

		wait := c.cfg.BackoffBase * time.Duration(attempt)
		log.Warn().Str("symbol", symbol).Int("attempt", attempt).Dur("wait", wait).
			Msg("rate limited, backing off")
		metrics.FetchRetries.Inc()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

func (c *Cache) warmCacheKey(symbol string) string {
	return fmt.Sprintf("residualscan:returns:%s:%s", c.cfg.RedisKeyDate, symbol)
}

func (c *Cache) warmCacheGet(ctx context.Context, symbol string) []float64 {
	if c.redis == nil || c.cfg.RedisKeyDate == "" {
		return nil
	}
	raw, err := c.redis.Get(ctx, c.warmCacheKey(symbol)).Bytes()
	if err != nil {
		return nil
	}
	var rets []float64
	if err := json.Unmarshal(raw, &rets); err != nil {
		return nil
	}
	return rets
}

func (c *Cache) warmCacheSet(ctx context.Context, symbol string, rets []float64) {
	if c.redis == nil || c.cfg.RedisKeyDate == "" {
		return
	}
	raw, err := json.Marshal(rets)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.warmCacheKey(symbol), raw, c.cfg.RedisTTL).Err(); err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("warm cache write failed")
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
