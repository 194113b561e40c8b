package app

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docscope/docscope-backend/internal/platform/envutil"
	"github.com/docscope/docscope-backend/internal/platform/logger"
)

// Config collects the tunables resolved once at startup. Values come from
// an optional YAML file (DOCSCOPE_CONFIG) overridden by environment
// variables, so containerized deployments can ship a file and still tweak
// one knob per environment. Provider mode selection (content store, vector
// store, database) stays in the dedicated provider files.
type Config struct {
	MaxTagTokens      int
	MaxScopeTokens    int
	DerivationTimeout time.Duration
	GCRetention       time.Duration
	RedisAddr         string
	RedisPassword     string
	PermCacheTTL      time.Duration
	AllowOrigins      []string
}

type fileConfig struct {
	MaxTagTokens      int      `yaml:"max_tag_tokens"`
	MaxScopeTokens    int      `yaml:"max_scope_tokens"`
	DerivationTimeout string   `yaml:"derivation_timeout"`
	GCRetention       string   `yaml:"gc_retention"`
	RedisAddr         string   `yaml:"redis_addr"`
	PermCacheTTL      string   `yaml:"perm_cache_ttl"`
	AllowOrigins      []string `yaml:"allow_origins"`
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		MaxTagTokens:      50000,
		MaxScopeTokens:    50000,
		DerivationTimeout: 10 * time.Minute,
		GCRetention:       24 * time.Hour,
		PermCacheTTL:      5 * time.Minute,
	}
	applyFile(&cfg, log)
	applyEnv(&cfg)
	return cfg
}

func applyFile(cfg *Config, log *logger.Logger) {
	path := strings.TrimSpace(os.Getenv("DOCSCOPE_CONFIG"))
	if path == "" {
		return
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn("config file unreadable; using env and defaults", "path", path, "error", err)
		return
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		log.Warn("config file invalid; using env and defaults", "path", path, "error", err)
		return
	}
	if fc.MaxTagTokens > 0 {
		cfg.MaxTagTokens = fc.MaxTagTokens
	}
	if fc.MaxScopeTokens > 0 {
		cfg.MaxScopeTokens = fc.MaxScopeTokens
	}
	if d, err := time.ParseDuration(fc.DerivationTimeout); err == nil && d > 0 {
		cfg.DerivationTimeout = d
	}
	if d, err := time.ParseDuration(fc.GCRetention); err == nil && d > 0 {
		cfg.GCRetention = d
	}
	if d, err := time.ParseDuration(fc.PermCacheTTL); err == nil && d > 0 {
		cfg.PermCacheTTL = d
	}
	if fc.RedisAddr != "" {
		cfg.RedisAddr = fc.RedisAddr
	}
	if len(fc.AllowOrigins) > 0 {
		cfg.AllowOrigins = fc.AllowOrigins
	}
}

func applyEnv(cfg *Config) {
	cfg.MaxTagTokens = envutil.Int("TAG_MAX_TOKENS", cfg.MaxTagTokens)
	cfg.MaxScopeTokens = envutil.Int("CONTEXT_MAX_TOKENS", cfg.MaxScopeTokens)
	cfg.DerivationTimeout = envutil.Duration("DERIVATION_TIMEOUT", cfg.DerivationTimeout)
	cfg.GCRetention = envutil.Duration("GC_RETENTION", cfg.GCRetention)
	cfg.RedisAddr = envutil.String("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envutil.String("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.PermCacheTTL = envutil.Duration("PERM_CACHE_TTL", cfg.PermCacheTTL)
	if origins := splitOrigins(envutil.String("CORS_ALLOW_ORIGINS", "")); len(origins) > 0 {
		cfg.AllowOrigins = origins
	}
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
