package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8501 {
		t.Errorf("Port = %d, want 8501", cfg.Server.Port)
	}
	if cfg.Data.FeaturesFile != "data/features.csv" || cfg.Data.TransactionsFile != "data/retail_cleaned_data.csv" {
		t.Errorf("unexpected data files %+v", cfg.Data)
	}
	if cfg.Data.CacheDir != ".cache" {
		t.Errorf("CacheDir = %q, want .cache", cfg.Data.CacheDir)
	}
	if cfg.Models.ThreeMonthFile != "models/clv_model_3m.json" || cfg.Models.SixMonthFile != "models/clv_model_6m.json" {
		t.Errorf("unexpected model files %+v", cfg.Models)
	}
	if cfg.Display.CurrencySymbol != "£" {
		t.Errorf("CurrencySymbol = %q, want £", cfg.Display.CurrencySymbol)
	}
	if cfg.Address() != "localhost:8501" {
		t.Errorf("Address() = %q", cfg.Address())
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("FEATURES_FILE", "/srv/features.csv")
	t.Setenv("CACHE_DIR", "")
	t.Setenv("DATA_LOAD_TIMEOUT", "2m")
	t.Setenv("SECURITY_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("CURRENCY_SYMBOL", "€")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Data.FeaturesFile != "/srv/features.csv" {
		t.Errorf("FeaturesFile = %q", cfg.Data.FeaturesFile)
	}
	if cfg.Data.CacheDir != "" {
		t.Errorf("an explicitly empty CACHE_DIR should disable the cache, got %q", cfg.Data.CacheDir)
	}
	if cfg.Data.LoadTimeout != 2*time.Minute {
		t.Errorf("LoadTimeout = %v, want 2m", cfg.Data.LoadTimeout)
	}
	if got := cfg.Security.AllowedOrigins; len(got) != 2 || got[1] != "http://b.test" {
		t.Errorf("AllowedOrigins = %q", got)
	}
	if cfg.Display.CurrencySymbol != "€" {
		t.Errorf("CurrencySymbol = %q, want €", cfg.Display.CurrencySymbol)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", "SERVER_PORT", "70000"},
		{"log level", "LOG_LEVEL", "verbose"},
		{"log format", "LOG_FORMAT", "xml"},
		{"negative load timeout", "DATA_LOAD_TIMEOUT", "-1s"},
		{"rate limit", "SECURITY_RATE_LIMIT_RPS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%s should fail", tt.key, tt.value)
			}
		})
	}
}
