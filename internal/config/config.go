// Package config loads the node's runtime configuration from environment
// variables (with an optional .env file), the way the teacher's
// ws_poc server loads its Config via caarlos0/env and godotenv.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config holds every tunable named by SPEC_FULL.md §4.
type Config struct {
	PublicAddr   string `env:"TL_PUBLIC_ADDR,required"`
	LocalPort    int    `env:"TL_LOCAL_PORT" envDefault:"8600"`
	DHTBootstrap string `env:"TL_DHT_BOOTSTRAP" envDefault:""`

	CacheFrequencySeconds int `env:"TL_CACHE_FREQUENCY" envDefault:"120"`
	MaxCachedPosts        int `env:"TL_MAX_CACHED_POSTS" envDefault:"50"`
	CacheTTLSeconds       int `env:"TL_CACHE_TTL" envDefault:"0"`

	HeuristicInitialP float64 `env:"TL_HEURISTIC_P0" envDefault:"0.75"`
	HeuristicDecay    float64 `env:"TL_HEURISTIC_DECAY" envDefault:"0.5"`

	ReconcileMaxBackoffSeconds float64 `env:"TL_RECONCILE_MAX_BACKOFF" envDefault:"10"`
	ReconcileJitterMinSeconds  float64 `env:"TL_RECONCILE_JITTER_MIN" envDefault:"0.2"`
	ReconcileJitterMaxSeconds  float64 `env:"TL_RECONCILE_JITTER_MAX" envDefault:"1.0"`

	DHTPutRatePerSecond float64 `env:"TL_DHT_PUT_RATE" envDefault:"20"`
	DHTPutBurst         int     `env:"TL_DHT_PUT_BURST" envDefault:"5"`

	MetricsAddr string `env:"TL_METRICS_ADDR" envDefault:""`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	DataDir string `env:"TL_DATA_DIR" envDefault:"data"`
}

// Load reads .env (if present), then environment variables, applying
// defaults for anything unset. logger may be nil during early startup.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// CacheTTL returns the configured TTL, or nil for "always valid".
func (c *Config) CacheTTL() *time.Duration {
	if c.CacheTTLSeconds <= 0 {
		return nil
	}
	d := time.Duration(c.CacheTTLSeconds) * time.Second
	return &d
}

// BootstrapNodes splits the comma-separated TL_DHT_BOOTSTRAP value.
func (c *Config) BootstrapNodes() []string {
	if strings.TrimSpace(c.DHTBootstrap) == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(c.DHTBootstrap, ",") {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// DHTPutLimiter builds the token bucket that paces the DHT reconciler's
// outbound Put calls, per SPEC_FULL.md §2's golang.org/x/time/rate wiring.
func (c *Config) DHTPutLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(c.DHTPutRatePerSecond), c.DHTPutBurst)
}

// Print logs the resolved configuration at startup, the way the teacher's
// Config.Print does.
func (c *Config) Print(logger zerolog.Logger) {
	logger.Info().
		Str("public_addr", c.PublicAddr).
		Int("local_port", c.LocalPort).
		Int("cache_frequency_sec", c.CacheFrequencySeconds).
		Int("max_cached_posts", c.MaxCachedPosts).
		Int("cache_ttl_sec", c.CacheTTLSeconds).
		Float64("heuristic_p0", c.HeuristicInitialP).
		Float64("heuristic_decay", c.HeuristicDecay).
		Str("metrics_addr", c.MetricsAddr).
		Msg("configuration loaded")
}
