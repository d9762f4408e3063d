package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	AIProvider      string
	AIModel         string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	MistralAPIKey   string
	AlbertAPIKey    string

	AIMaxTokens      int
	AIPromptBudget   int
	AIRequestTimeout time.Duration
	AISummaryTimeout time.Duration

	SummaryStaleAfter time.Duration
	SummaryCacheTTL   time.Duration

	WorkerPollInterval time.Duration
	WorkerConcurrency  int
	SweepInterval      time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}
	return fmt.Sprintf(":%s", c.AppPort)
}

// ProviderAPIKey returns the configured key for a provider name, empty when
// the provider is not configured.
func (c Config) ProviderAPIKey(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "mistral":
		return c.MistralAPIKey
	case "albert":
		return c.AlbertAPIKey
	}
	return ""
}

// Load reads configuration values from environment variables and an optional
// .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("STEPFLOW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "StepFlow API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.prompt_budget", 8000)
	v.SetDefault("ai.request_timeout", "60s")
	v.SetDefault("ai.summary_timeout", "120s")
	v.SetDefault("summary.stale_after", "1h")
	v.SetDefault("summary.cache_ttl", "5m")
	v.SetDefault("worker.poll_interval", "10s")
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.sweep_interval", "1m")

	cfg := Config{
		AppName:     v.GetString("app.name"),
		AppEnv:      v.GetString("app.env"),
		AppPort:     v.GetString("app.port"),
		DatabaseURL: v.GetString("database.url"),
		RedisURL:    v.GetString("redis.url"),
		NATSURL:     v.GetString("nats.url"),
		JWTSecret:   v.GetString("jwt.secret"),

		AIProvider:      strings.ToLower(v.GetString("ai.provider")),
		AIModel:         v.GetString("ai.model"),
		OpenAIAPIKey:    v.GetString("openai_api_key"),
		AnthropicAPIKey: v.GetString("anthropic_api_key"),
		MistralAPIKey:   v.GetString("mistral_api_key"),
		AlbertAPIKey:    v.GetString("albert_api_key"),

		AIMaxTokens:    v.GetInt("ai.max_tokens"),
		AIPromptBudget: v.GetInt("ai.prompt_budget"),

		WorkerConcurrency: v.GetInt("worker.concurrency"),
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"ai.request_timeout", &cfg.AIRequestTimeout},
		{"ai.summary_timeout", &cfg.AISummaryTimeout},
		{"summary.stale_after", &cfg.SummaryStaleAfter},
		{"summary.cache_ttl", &cfg.SummaryCacheTTL},
		{"worker.poll_interval", &cfg.WorkerPollInterval},
		{"worker.sweep_interval", &cfg.SweepInterval},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.target = parsed
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.AIMaxTokens <= 0 {
		cfg.AIMaxTokens = 1024
	}
	if cfg.AIPromptBudget <= 0 {
		cfg.AIPromptBudget = 8000
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 2
	}

	return cfg, nil
}
