package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docscope/docscope-backend/internal/platform/logger"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DOCSCOPE_CONFIG",
		"TAG_MAX_TOKENS",
		"CONTEXT_MAX_TOKENS",
		"DERIVATION_TIMEOUT",
		"GC_RETENTION",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"PERM_CACHE_TTL",
		"CORS_ALLOW_ORIGINS",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg := LoadConfig(logger.NewNop())
	if cfg.MaxTagTokens != 50000 {
		t.Fatalf("max tag tokens: want=50000 got=%d", cfg.MaxTagTokens)
	}
	if cfg.MaxScopeTokens != 50000 {
		t.Fatalf("max scope tokens: want=50000 got=%d", cfg.MaxScopeTokens)
	}
	if cfg.DerivationTimeout != 10*time.Minute {
		t.Fatalf("derivation timeout: want=10m got=%s", cfg.DerivationTimeout)
	}
	if cfg.GCRetention != 24*time.Hour {
		t.Fatalf("gc retention: want=24h got=%s", cfg.GCRetention)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("redis addr should default empty, got=%q", cfg.RedisAddr)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "docscope.yaml")
	content := []byte("max_tag_tokens: 1000\ngc_retention: 48h\nredis_addr: file-redis:6379\nallow_origins:\n  - https://app.example.com\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DOCSCOPE_CONFIG", path)
	t.Setenv("TAG_MAX_TOKENS", "2000")

	cfg := LoadConfig(logger.NewNop())
	if cfg.MaxTagTokens != 2000 {
		t.Fatalf("env should beat file: want=2000 got=%d", cfg.MaxTagTokens)
	}
	if cfg.GCRetention != 48*time.Hour {
		t.Fatalf("gc retention from file: want=48h got=%s", cfg.GCRetention)
	}
	if cfg.RedisAddr != "file-redis:6379" {
		t.Fatalf("redis addr from file: got=%q", cfg.RedisAddr)
	}
	if len(cfg.AllowOrigins) != 1 || cfg.AllowOrigins[0] != "https://app.example.com" {
		t.Fatalf("allow origins from file: got=%v", cfg.AllowOrigins)
	}
}

func TestLoadConfigBadFileFallsBack(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "docscope.yaml")
	if err := os.WriteFile(path, []byte("max_tag_tokens: [not a number"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DOCSCOPE_CONFIG", path)

	// A broken file warns and keeps defaults rather than failing startup.
	cfg := LoadConfig(logger.NewNop())
	if cfg.MaxTagTokens != 50000 {
		t.Fatalf("max tag tokens: want=50000 got=%d", cfg.MaxTagTokens)
	}
}

func TestSplitOrigins(t *testing.T) {
	got := splitOrigins(" https://a.example.com, ,https://b.example.com ")
	if len(got) != 2 {
		t.Fatalf("expected 2 origins, got=%v", got)
	}
	if got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins: %v", got)
	}
	if splitOrigins("") != nil {
		t.Fatal("empty input should yield nil")
	}
}
