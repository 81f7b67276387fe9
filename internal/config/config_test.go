package config

import "testing"

func TestLoadIncludesFusionDefaults(t *testing.T) {
	t.Setenv("FUSION_RRF_K", "")
	t.Setenv("FUSION_K_PER_SOURCE", "")
	t.Setenv("FUSION_K_FUSED", "")
	t.Setenv("ADAPTER_TIMEOUT_MS", "")
	t.Setenv("RERANK_TOP_N", "")

	cfg := Load()
	if cfg.FusionRRFK != 60 {
		t.Fatalf("expected default fusion rrf k 60, got %d", cfg.FusionRRFK)
	}
	if cfg.FusionKPerSource != 20 {
		t.Fatalf("expected default per-source k 20, got %d", cfg.FusionKPerSource)
	}
	if cfg.FusionKFused != 30 {
		t.Fatalf("expected default fused k 30, got %d", cfg.FusionKFused)
	}
	if cfg.AdapterTimeoutMs != 300 {
		t.Fatalf("expected default adapter timeout 300ms, got %d", cfg.AdapterTimeoutMs)
	}
	if cfg.RerankTopN != 8 {
		t.Fatalf("expected default rerank top n 8, got %d", cfg.RerankTopN)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("FUSION_RRF_K", "75")
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("SESSION_TTL_MINUTES", "45")
	t.Setenv("CONTEXT_TOKEN_BUDGET", "2400")
	t.Setenv("INTENT_FALLBACK_CONFIDENCE", "0.55")
	t.Setenv("API_RATE_LIMIT_RPS", "12.5")

	cfg := Load()
	if cfg.FusionRRFK != 75 {
		t.Fatalf("expected fusion rrf k 75, got %d", cfg.FusionRRFK)
	}
	if cfg.SessionBackend != "redis" {
		t.Fatalf("expected session backend redis, got %q", cfg.SessionBackend)
	}
	if cfg.SessionTTLMinutes != 45 {
		t.Fatalf("expected session ttl 45, got %d", cfg.SessionTTLMinutes)
	}
	if cfg.ContextTokenBudget != 2400 {
		t.Fatalf("expected token budget 2400, got %d", cfg.ContextTokenBudget)
	}
	if cfg.IntentFallbackConfidence != 0.55 {
		t.Fatalf("expected fallback confidence 0.55, got %v", cfg.IntentFallbackConfidence)
	}
	if cfg.APIRateLimitRPS != 12.5 {
		t.Fatalf("expected rate limit rps 12.5, got %v", cfg.APIRateLimitRPS)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("FUSION_RRF_K", "not-a-number")
	t.Setenv("INTENT_FALLBACK_CONFIDENCE", "high")

	cfg := Load()
	if cfg.FusionRRFK != 60 {
		t.Fatalf("expected fallback to default 60, got %d", cfg.FusionRRFK)
	}
	if cfg.IntentFallbackConfidence != 0.4 {
		t.Fatalf("expected fallback to default 0.4, got %v", cfg.IntentFallbackConfidence)
	}
}
