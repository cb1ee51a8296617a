package config

import (
	"testing"
	"time"

	"github.com/LovationAdmin/advisor-api/models"
)

func TestParseAllocation(t *testing.T) {
	tests := []struct {
		in      string
		want    models.Allocation
		wantErr bool
	}{
		{in: "60/30/10", want: models.Allocation{Savings: 60, Stocks: 30, Bonds: 10}},
		{in: " 20 / 70 / 10 ", want: models.Allocation{Savings: 20, Stocks: 70, Bonds: 10}},
		{in: "100/0/0", want: models.Allocation{Savings: 100}},
		{in: "33.5/33.5/33", want: models.Allocation{Savings: 33.5, Stocks: 33.5, Bonds: 33}},
		{in: "60/30", wantErr: true},
		{in: "60/30/10/0", wantErr: true},
		{in: "60/30/5", wantErr: true},
		{in: "110/-10/0", wantErr: true},
		{in: "sixty/30/10", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAllocation(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAllocation(%q) = %+v, want error", tt.in, got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParseAllocation(%q) = (%+v, %v), want %+v", tt.in, got, err, tt.want)
			}
		})
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "FRONTEND_URL", "ENVIRONMENT", "DATABASE_URL", "SUPABASE_JWT_SECRET",
		"ANTHROPIC_API_KEY", "LLM_BASE_URL", "LLM_MODEL", "LLM_MAX_TOKENS", "LLM_TEMPERATURE", "LLM_TIMEOUT",
		"TURNSTILE_SECRET_KEY", "TURNSTILE_VERIFY_URL", "RESEND_API_KEY", "FROM_EMAIL",
		"RATE_LIMIT_PER_MINUTE", "SUMMARY_CACHE_TTL", "DOWN_PAYMENT_ALLOCATION",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.Environment != "development" || cfg.IsProduction() {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DownPaymentAllocation != (models.Allocation{Savings: 60, Stocks: 30, Bonds: 10}) {
		t.Fatalf("allocation = %+v", cfg.DownPaymentAllocation)
	}
	if cfg.SummaryCacheTTL != 24*time.Hour || cfg.LLM.Timeout != 60*time.Second {
		t.Fatalf("durations = %v / %v", cfg.SummaryCacheTTL, cfg.LLM.Timeout)
	}
	if cfg.GlobalRateLimit != 100 || cfg.LLM.MaxTokens != 1500 {
		t.Fatalf("limits = %d / %d", cfg.GlobalRateLimit, cfg.LLM.MaxTokens)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DOWN_PAYMENT_ALLOCATION", "40/50/10")
	t.Setenv("SUMMARY_CACHE_TTL", "30m")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "not-a-number")
	t.Setenv("LLM_TEMPERATURE", "0.2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production")
	}
	if cfg.DownPaymentAllocation != (models.Allocation{Savings: 40, Stocks: 50, Bonds: 10}) {
		t.Fatalf("allocation = %+v", cfg.DownPaymentAllocation)
	}
	if cfg.SummaryCacheTTL != 30*time.Minute {
		t.Fatalf("ttl = %v", cfg.SummaryCacheTTL)
	}
	if cfg.GlobalRateLimit != 100 {
		t.Fatalf("a bad integer falls back to the default, got %d", cfg.GlobalRateLimit)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Fatalf("temperature = %v", cfg.LLM.Temperature)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"LLM_TIMEOUT":             "soon",
		"SUMMARY_CACHE_TTL":       "1 day",
		"DOWN_PAYMENT_ALLOCATION": "50/50/50",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("%s=%q should fail", key, value)
			}
		})
	}
}
