package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/llm-quality-observer/pkg/models"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all configuration for the evaluator service.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AI        AIConfig
	Scheduler SchedulerConfig
	Notify    NotifyConfig
	API       APIConfig
}

type ServerConfig struct {
	Port     int    `env:"EVALUATOR_PORT,default=8080"`
	Env      string `env:"EVALUATOR_ENV,default=development"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS,default=2"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME,default=5m"`
}

// RedisConfig is optional. An empty URL disables the report cache and rate limiting.
type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

type AIConfig struct {
	Provider         string        `env:"AI_PROVIDER,default=openai"`
	APIKey           string        `env:"LLM_API_KEY"`
	BaseURL          string        `env:"LLM_API_BASE_URL"`
	Model            string        `env:"JUDGE_MODEL,default=gpt-5-mini"`
	InferenceTimeout time.Duration `env:"AI_INFERENCE_TIMEOUT,default=60s"`
	MaxRetries       int           `env:"JUDGE_MAX_RETRIES,default=0"`
}

// Enabled reports whether enough is configured to build an LLM judge.
// Self-hosted providers do not need an API key.
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case "ollama", "vllm":
		return true
	default:
		return c.APIKey != ""
	}
}

type SchedulerConfig struct {
	Enabled         bool             `env:"ENABLE_AUTO_EVALUATION,default=true"`
	IntervalMinutes int              `env:"EVALUATION_INTERVAL_MINUTES,default=60"`
	BatchSize       int              `env:"EVALUATION_BATCH_SIZE,default=10"`
	JudgeType       models.JudgeType `env:"EVALUATION_JUDGE_TYPE,default=rule"`
}

func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

type NotifyConfig struct {
	ScoreThreshold    int           `env:"NOTIFICATION_SCORE_THRESHOLD,default=3"`
	Timeout           time.Duration `env:"NOTIFICATION_TIMEOUT,default=10s"`
	SlackWebhookURL   string        `env:"SLACK_WEBHOOK_URL"`
	DiscordWebhookURL string        `env:"DISCORD_WEBHOOK_URL"`
	SMTP              SMTPConfig
}

type SMTPConfig struct {
	Host      string `env:"SMTP_HOST"`
	Port      int    `env:"SMTP_PORT,default=587"`
	Username  string `env:"SMTP_USERNAME"`
	Password  string `env:"SMTP_PASSWORD"`
	FromEmail string `env:"SMTP_FROM_EMAIL"`
	ToEmails  string `env:"SMTP_TO_EMAILS"`
}

// Enabled reports whether every SMTP setting is present.
func (c SMTPConfig) Enabled() bool {
	return len(c.missing()) == 0
}

// Recipients splits SMTP_TO_EMAILS on commas, dropping blanks.
func (c SMTPConfig) Recipients() []string {
	var out []string
	for _, addr := range strings.Split(c.ToEmails, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func (c SMTPConfig) missing() []string {
	var missing []string
	if c.Host == "" {
		missing = append(missing, "SMTP_HOST")
	}
	if c.Username == "" {
		missing = append(missing, "SMTP_USERNAME")
	}
	if c.Password == "" {
		missing = append(missing, "SMTP_PASSWORD")
	}
	if c.FromEmail == "" {
		missing = append(missing, "SMTP_FROM_EMAIL")
	}
	if len(c.Recipients()) == 0 {
		missing = append(missing, "SMTP_TO_EMAILS")
	}
	return missing
}

type APIConfig struct {
	// APIKeyHash is a bcrypt hash of the bearer token that guards the API.
	// Empty disables authentication.
	APIKeyHash         string `env:"EVALUATOR_API_KEY_HASH"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE,default=30"`
}

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	return LoadWith(context.Background(), envconfig.OsLookuper())
}

// LoadWith is Load with an explicit variable source.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SlogLevel maps LOG_LEVEL onto a slog level. Unknown values fall back to info.
func (c ServerConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("EVALUATOR_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, anthropic; got %q", c.AI.Provider)
	}
	if c.AI.BaseURL != "" && !hasHTTPScheme(c.AI.BaseURL) {
		return fmt.Errorf("LLM_API_BASE_URL must start with http:// or https://, got %q", c.AI.BaseURL)
	}
	if c.AI.Provider == "vllm" && c.AI.BaseURL == "" {
		return fmt.Errorf("LLM_API_BASE_URL is required when AI_PROVIDER is vllm")
	}
	if c.AI.Model == "" {
		return fmt.Errorf("JUDGE_MODEL is required")
	}
	if c.AI.InferenceTimeout <= 0 {
		return fmt.Errorf("AI_INFERENCE_TIMEOUT must be positive, got %s", c.AI.InferenceTimeout)
	}
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("JUDGE_MAX_RETRIES must not be negative, got %d", c.AI.MaxRetries)
	}
	if c.Scheduler.JudgeType == models.JudgeTypeLLM && !c.AI.Enabled() {
		return fmt.Errorf("LLM_API_KEY is required when EVALUATION_JUDGE_TYPE is llm and AI_PROVIDER is %s", c.AI.Provider)
	}

	if c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("EVALUATION_INTERVAL_MINUTES must be positive, got %d", c.Scheduler.IntervalMinutes)
	}
	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("EVALUATION_BATCH_SIZE must be positive, got %d", c.Scheduler.BatchSize)
	}

	if c.Notify.ScoreThreshold < models.MinScore || c.Notify.ScoreThreshold > models.MaxScore {
		return fmt.Errorf("NOTIFICATION_SCORE_THRESHOLD must be between %d and %d, got %d",
			models.MinScore, models.MaxScore, c.Notify.ScoreThreshold)
	}
	if c.Notify.Timeout <= 0 {
		return fmt.Errorf("NOTIFICATION_TIMEOUT must be positive, got %s", c.Notify.Timeout)
	}
	for name, u := range map[string]string{
		"SLACK_WEBHOOK_URL":   c.Notify.SlackWebhookURL,
		"DISCORD_WEBHOOK_URL": c.Notify.DiscordWebhookURL,
	} {
		if u != "" && !hasHTTPScheme(u) {
			return fmt.Errorf("%s must start with http:// or https://, got %q", name, u)
		}
	}
	if missing := c.Notify.SMTP.missing(); len(missing) > 0 && len(missing) < 5 {
		return fmt.Errorf("SMTP settings are incomplete, missing %s", strings.Join(missing, ", "))
	}

	if c.API.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.API.RateLimitPerMinute)
	}

	return nil
}

func hasHTTPScheme(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
