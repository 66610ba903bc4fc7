// Package config loads the scanner configuration from YAML, layering
// file values over documented defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quantlab/residualscan/internal/data"
	"github.com/quantlab/residualscan/internal/exits"
	"github.com/quantlab/residualscan/internal/scan"
)

// Config is the complete scanner configuration.
type Config struct {
	Market     string `yaml:"market"`      // default "tw"
	TopN       int    `yaml:"top_n"`       // default 10
	DataDir    string `yaml:"data_dir"`    // row cache root, default "data/momentum"
	ListenAddr string `yaml:"listen_addr"` // ops endpoint, default ":9090"

	Redis   RedisConfig        `yaml:"redis"`
	Cache   data.CacheConfig   `yaml:"cache"`
	Workers scan.Concurrency   `yaml:"workers"`
	Exits   exits.Config       `yaml:"exits"`
	Ranking scan.RankingConfig `yaml:"ranking"`
}

// RedisConfig points at the optional warm return-series cache. An
// empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		Market:     scan.MarketLocal,
		TopN:       10,
		DataDir:    "data/momentum",
		ListenAddr: ":9090",
		Cache:      data.DefaultCacheConfig(),
		Workers:    scan.DefaultConcurrency(),
		Exits:      exits.DefaultConfig(),
		Ranking:    scan.DefaultRankingConfig(),
	}
}

// Load reads the YAML file at path over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.TopN < 0 {
		return fmt.Errorf("top_n must be non-negative, got %d", c.TopN)
	}
	if c.Workers.EvalWorkers <= 0 || c.Workers.SaveWorkers <= 0 {
		return fmt.Errorf("worker counts must be positive")
	}
	if c.Ranking.SectorCapPct <= 0 || c.Ranking.SectorCapPct > 1 {
		return fmt.Errorf("sector_cap_pct must be in (0, 1], got %g", c.Ranking.SectorCapPct)
	}
	return nil
}
