package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("EMERGENCY_EARLY_EXIT", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.StoreBackend != "memory" {
		t.Fatalf("expected memory store by default, got %s", cfg.StoreBackend)
	}
	if cfg.LLMProvider != "bedrock" {
		t.Fatalf("expected bedrock provider by default, got %s", cfg.LLMProvider)
	}
	if cfg.EmergencyEarlyExit {
		t.Fatalf("expected emergency early exit disabled by default")
	}
	if cfg.LLMTimeout != 60*time.Second {
		t.Fatalf("expected default llm timeout, got %s", cfg.LLMTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("expected wildcard CORS default, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("STORE_BACKEND", " Postgres ")
	t.Setenv("LLM_PROVIDER", "NOVA")
	t.Setenv("LLM_FALLBACK_PROVIDER", "gemini")
	t.Setenv("LLM_TIMEOUT", "15s")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("NOVA_API_BASE_URL", "https://nova.example.com/")
	t.Setenv("EMERGENCY_EARLY_EXIT", "true")
	t.Setenv("HISTORY_TURN_LIMIT", "6")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("unexpected database url %s", cfg.DatabaseURL)
	}
	if cfg.StoreBackend != "postgres" {
		t.Fatalf("expected normalized store backend, got %q", cfg.StoreBackend)
	}
	if cfg.LLMProvider != "nova" || cfg.LLMFallbackProvider != "gemini" {
		t.Fatalf("unexpected provider chain %s -> %s", cfg.LLMProvider, cfg.LLMFallbackProvider)
	}
	if cfg.LLMTimeout != 15*time.Second {
		t.Fatalf("expected llm timeout override, got %s", cfg.LLMTimeout)
	}
	if cfg.LLMTemperature != 0.2 {
		t.Fatalf("expected temperature override, got %v", cfg.LLMTemperature)
	}
	if cfg.NovaAPIBaseURL != "https://nova.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.NovaAPIBaseURL)
	}
	if !cfg.EmergencyEarlyExit {
		t.Fatalf("expected early exit enabled")
	}
	if cfg.HistoryTurnLimit != 6 {
		t.Fatalf("expected history limit override, got %d", cfg.HistoryTurnLimit)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected CORS origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("LLM_MAX_RETRIES", "many")
	t.Setenv("LLM_TIMEOUT", "soon")
	t.Setenv("REDIS_TLS", "maybe")
	cfg := Load()
	if cfg.LLMMaxRetries != 3 {
		t.Fatalf("expected default retries, got %d", cfg.LLMMaxRetries)
	}
	if cfg.LLMTimeout != 60*time.Second {
		t.Fatalf("expected default timeout, got %s", cfg.LLMTimeout)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected redis tls default false")
	}
}
