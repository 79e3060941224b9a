package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "backend:\n  token: abc\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("server.addr: got %q", cfg.Server.Addr)
	}
	if cfg.Backend.VoicebotURL != cfg.Backend.BaseURL {
		t.Errorf("voicebot_url should default to base_url, got %q", cfg.Backend.VoicebotURL)
	}
	if cfg.NLU.Provider != "backend" {
		t.Errorf("nlu.provider: got %q", cfg.NLU.Provider)
	}
	if cfg.Speech.FallbackLocale != "en-US" {
		t.Errorf("speech.fallback_locale: got %q", cfg.Speech.FallbackLocale)
	}
	if cfg.Delivery.StalenessWindow != 120*time.Second || cfg.Delivery.ImmediacyWindow != 60*time.Second {
		t.Errorf("unexpected delivery windows %+v", cfg.Delivery)
	}
	if cfg.Breaker.MinRequests != 3 || cfg.Breaker.FailureRatio != 0.6 {
		t.Errorf("unexpected breaker defaults %+v", cfg.Breaker)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log defaults %+v", cfg.Log)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("MEALVOICE_JWT_SECRET", "s3cret")
	t.Setenv("MEALVOICE_GEMINI_KEY", "gk")

	cfg, err := Load(writeConfig(t, `
backend:
  base_url: https://api.example.com
  jwt_secret: ${MEALVOICE_JWT_SECRET}
  jwt_subject: cook@example.com
  jwt_ttl: 10m
nlu:
  provider: gemini
  gemini:
    api_key: ${MEALVOICE_GEMINI_KEY}
delivery:
  timezone: Asia/Kolkata
  staleness_window: 3m
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Backend.JWTSecret != "s3cret" || cfg.NLU.Gemini.APIKey != "gk" {
		t.Errorf("env not expanded: %+v %+v", cfg.Backend, cfg.NLU.Gemini)
	}
	if cfg.Backend.JWTTTL != 10*time.Minute {
		t.Errorf("jwt_ttl: got %s", cfg.Backend.JWTTTL)
	}
	if cfg.Delivery.Timezone != "Asia/Kolkata" || cfg.Delivery.StalenessWindow != 3*time.Minute {
		t.Errorf("unexpected delivery %+v", cfg.Delivery)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"no credentials", "server:\n  addr: :9090\n", "backend.token"},
		{"unknown provider", "backend:\n  token: t\nnlu:\n  provider: oracle\n", "unknown nlu provider"},
		{"gemini without key", "backend:\n  token: t\nnlu:\n  provider: gemini\n", "nlu.gemini.api_key"},
		{"anthropic without key", "backend:\n  token: t\nnlu:\n  provider: anthropic\n", "nlu.anthropic.api_key"},
		{"windows inverted", "backend:\n  token: t\ndelivery:\n  staleness_window: 30s\n", "immediacy_window"},
		{"bad yaml", "backend: [", "parsing config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
