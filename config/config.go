package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LovationAdmin/advisor-api/models"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	FrontendURL string
	Environment string
	DatabaseURL string
	JWTSecret   string

	LLM       LLMSettings
	Turnstile TurnstileSettings
	Email     EmailSettings

	SummaryCacheTTL       time.Duration
	DownPaymentAllocation models.Allocation
	GlobalRateLimit       int
}

type LLMSettings struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

type TurnstileSettings struct {
	SecretKey string
	VerifyURL string
}

type EmailSettings struct {
	ResendAPIKey string
	FromEmail    string
}

const (
	defaultPort            = "8080"
	defaultFrontendURL     = "http://localhost:3000"
	defaultLLMModel        = "claude-3-5-sonnet-latest"
	defaultLLMMaxTokens    = 1500
	defaultLLMTemperature  = 0.7
	defaultLLMTimeout      = 60 * time.Second
	defaultSummaryCacheTTL = 24 * time.Hour
	defaultGlobalRateLimit = 100
	defaultFromEmail       = "Advisor <noreply@advisor.app>"
)

var defaultDownPaymentAllocation = models.Allocation{Savings: 60, Stocks: 30, Bonds: 10}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := Config{
		Port:        valueOrDefault("PORT", defaultPort),
		FrontendURL: valueOrDefault("FRONTEND_URL", defaultFrontendURL),
		Environment: valueOrDefault("ENVIRONMENT", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("SUPABASE_JWT_SECRET"),
		LLM: LLMSettings{
			APIKey:      os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL:     os.Getenv("LLM_BASE_URL"),
			Model:       valueOrDefault("LLM_MODEL", defaultLLMModel),
			MaxTokens:   parseIntWithDefault("LLM_MAX_TOKENS", defaultLLMMaxTokens),
			Temperature: parseFloatWithDefault("LLM_TEMPERATURE", defaultLLMTemperature),
		},
		Turnstile: TurnstileSettings{
			SecretKey: os.Getenv("TURNSTILE_SECRET_KEY"),
			VerifyURL: os.Getenv("TURNSTILE_VERIFY_URL"),
		},
		Email: EmailSettings{
			ResendAPIKey: os.Getenv("RESEND_API_KEY"),
			FromEmail:    valueOrDefault("FROM_EMAIL", defaultFromEmail),
		},
		GlobalRateLimit: parseIntWithDefault("RATE_LIMIT_PER_MINUTE", defaultGlobalRateLimit),
	}

	var err error
	if cfg.LLM.Timeout, err = parseDurationWithDefault("LLM_TIMEOUT", defaultLLMTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SummaryCacheTTL, err = parseDurationWithDefault("SUMMARY_CACHE_TTL", defaultSummaryCacheTTL); err != nil {
		return Config{}, err
	}

	cfg.DownPaymentAllocation = defaultDownPaymentAllocation
	if v := os.Getenv("DOWN_PAYMENT_ALLOCATION"); v != "" {
		alloc, err := ParseAllocation(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DOWN_PAYMENT_ALLOCATION: %w", err)
		}
		cfg.DownPaymentAllocation = alloc
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// ParseAllocation reads "savings/stocks/bonds" percentages, e.g. "60/30/10".
// The three parts must sum to 100.
func ParseAllocation(s string) (models.Allocation, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return models.Allocation{}, fmt.Errorf("expected savings/stocks/bonds, got %q", s)
	}

	values := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.Allocation{}, fmt.Errorf("invalid percentage %q: %w", p, err)
		}
		if v < 0 {
			return models.Allocation{}, fmt.Errorf("percentage %q is negative", p)
		}
		values[i] = v
	}
	if sum := values[0] + values[1] + values[2]; sum != 100 {
		return models.Allocation{}, fmt.Errorf("percentages sum to %.0f, expected 100", sum)
	}
	return models.Allocation{Savings: values[0], Stocks: values[1], Bonds: values[2]}, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parseFloatWithDefault(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil {
			return val
		}
	}
	return fallback
}

func parseDurationWithDefault(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}
