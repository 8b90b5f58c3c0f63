package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Default()
	cfg.AnthropicAPIKey = "sk-test"
	cfg.PostgresDSN = "host=localhost dbname=homecanvas sslmode=disable"
	cfg.MongoURI = "mongodb://localhost:27017"
	return cfg
}

func TestValidateValid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.ChatProvider = "gpt-j"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "chat_provider") {
		t.Errorf("error should name the failing field: %v", err)
	}
}

func TestValidateRequiresProviderKey(t *testing.T) {
	cfg := validConfig()
	cfg.AnthropicAPIKey = ""
	if cfg.Validate() == nil {
		t.Errorf("claude provider without API key should fail")
	}

	cfg = validConfig()
	cfg.ChatProvider = ChatProviderGemini
	cfg.GeminiAPIKey = ""
	if cfg.Validate() == nil {
		t.Errorf("gemini provider without API key should fail")
	}

	cfg.GeminiAPIKey = "g-test"
	if err := cfg.Validate(); err != nil {
		t.Errorf("gemini provider with key should validate, got %v", err)
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresDSN = ""
	cfg.WorkerConcurrency = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	if !strings.Contains(err.Error(), "postgres_dsn") || !strings.Contains(err.Error(), "worker_concurrency") {
		t.Errorf("expected both fields reported, got %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOMECANVAS_LISTEN_ADDR", ":9000")
	t.Setenv("ANTHROPIC_API_KEY", "sk-env")
	t.Setenv("HOMECANVAS_POSTGRES_DSN", "host=db dbname=homecanvas")
	t.Setenv("HOMECANVAS_MONGO_URI", "mongodb://db:27017")
	t.Setenv("HOMECANVAS_SYNC_GENERATION", "true")
	t.Setenv("HOMECANVAS_KEEPALIVE_INTERVAL", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Errorf("expected listen addr override, got %s", cfg.ListenAddr)
	}
	if !cfg.SyncGeneration {
		t.Errorf("expected sync generation enabled")
	}
	if cfg.KeepaliveInterval != 45*time.Second {
		t.Errorf("expected 45s keepalive, got %v", cfg.KeepaliveInterval)
	}
}

func TestValidatorRequireOneOf(t *testing.T) {
	err := NewValidator().RequireOneOf("mode", "z", "a", "b").Err()
	if err == nil {
		t.Fatalf("expected error for disallowed value")
	}
	if err := NewValidator().RequireOneOf("mode", "a", "a", "b").Err(); err != nil {
		t.Errorf("allowed value should pass, got %v", err)
	}
}
