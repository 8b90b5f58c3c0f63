package config

import (
	"os"
	"strconv"
	"time"
)

// ChatProviderClaude and friends name the selectable chat model backends.
const (
	ChatProviderClaude = "claude"
	ChatProviderGemini = "gemini"
)

// Config is the full runtime configuration for the conversation core.
type Config struct {
	// HTTP surface
	ListenAddr string

	// ChatProvider selects the tool-calling model backend.
	ChatProvider string
	// AnthropicAPIKey / AnthropicModel configure the claude provider.
	AnthropicAPIKey string
	AnthropicModel  string
	// GeminiAPIKey / GeminiModel configure the gemini provider.
	GeminiAPIKey string
	GeminiModel  string

	// FalAPIKey authenticates against the primary image-edit provider.
	FalAPIKey string
	// OpenAIAPIKey authenticates the fallback image-edit provider.
	OpenAIAPIKey string

	// PostgresDSN is the transactional store connection string.
	PostgresDSN string
	// RedisAddr enables the conversation read-through cache when non-empty.
	RedisAddr     string
	RedisPassword string
	// MongoURI and MediaBaseURL configure the GridFS media store.
	MongoURI     string
	MongoDB      string
	MediaBaseURL string

	// SyncGeneration runs transformations inline instead of queuing them.
	SyncGeneration bool
	// WorkerConcurrency bounds concurrent background generations.
	WorkerConcurrency int
	// HistoryTokenBudget caps the conversation context sent to the model.
	HistoryTokenBudget int
	// KeepaliveInterval paces SSE keepalive frames on idle streams.
	KeepaliveInterval time.Duration
}

// Default returns the configuration defaults applied before env overrides.
func Default() *Config {
	return &Config{
		ListenAddr:         ":8000",
		ChatProvider:       ChatProviderClaude,
		AnthropicModel:     "claude-sonnet-4-5-20250929",
		GeminiModel:        "gemini-1.5-flash",
		MongoDB:            "homecanvas",
		MediaBaseURL:       "https://cdn.homecanvas.app",
		WorkerConcurrency:  4,
		HistoryTokenBudget: 3000,
		KeepaliveInterval:  30 * time.Second,
	}
}

// Load builds a Config from the environment on top of defaults and validates
// it. All variables use the HOMECANVAS_ prefix except provider API keys,
// which follow each vendor's conventional name.
func Load() (*Config, error) {
	cfg := Default()

	setString(&cfg.ListenAddr, "HOMECANVAS_LISTEN_ADDR")
	setString(&cfg.ChatProvider, "HOMECANVAS_CHAT_PROVIDER")
	setString(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.AnthropicModel, "HOMECANVAS_ANTHROPIC_MODEL")
	setString(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&cfg.GeminiModel, "HOMECANVAS_GEMINI_MODEL")
	setString(&cfg.FalAPIKey, "FAL_KEY")
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.PostgresDSN, "HOMECANVAS_POSTGRES_DSN")
	setString(&cfg.RedisAddr, "HOMECANVAS_REDIS_ADDR")
	setString(&cfg.RedisPassword, "HOMECANVAS_REDIS_PASSWORD")
	setString(&cfg.MongoURI, "HOMECANVAS_MONGO_URI")
	setString(&cfg.MongoDB, "HOMECANVAS_MONGO_DB")
	setString(&cfg.MediaBaseURL, "HOMECANVAS_MEDIA_BASE_URL")
	setBool(&cfg.SyncGeneration, "HOMECANVAS_SYNC_GENERATION")
	setInt(&cfg.WorkerConcurrency, "HOMECANVAS_WORKER_CONCURRENCY")
	setInt(&cfg.HistoryTokenBudget, "HOMECANVAS_HISTORY_TOKEN_BUDGET")
	setDuration(&cfg.KeepaliveInterval, "HOMECANVAS_KEEPALIVE_INTERVAL")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internally consistent values.
func (c *Config) Validate() error {
	v := NewValidator().
		RequireNonEmpty("listen_addr", c.ListenAddr).
		RequireOneOf("chat_provider", c.ChatProvider, ChatProviderClaude, ChatProviderGemini).
		RequireNonEmpty("postgres_dsn", c.PostgresDSN).
		RequireNonEmpty("mongo_uri", c.MongoURI).
		RequireNonEmpty("media_base_url", c.MediaBaseURL).
		RequirePositive("worker_concurrency", c.WorkerConcurrency).
		RequirePositive("history_token_budget", c.HistoryTokenBudget)

	switch c.ChatProvider {
	case ChatProviderClaude:
		v.RequireNonEmpty("anthropic_api_key", c.AnthropicAPIKey)
	case ChatProviderGemini:
		v.RequireNonEmpty("gemini_api_key", c.GeminiAPIKey)
	}

	if c.KeepaliveInterval <= 0 {
		v.RequirePositive("keepalive_interval", int(c.KeepaliveInterval))
	}
	return v.Err()
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			*dst = parsed
		}
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			*dst = parsed
		}
	}
}
