package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	NLU      NLUConfig      `yaml:"nlu"`
	Speech   SpeechConfig   `yaml:"speech"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Retry    RetryConfig    `yaml:"retry"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	AuthToken      string        `yaml:"auth_token"`
	RateLimit      int           `yaml:"rate_limit"`
	RateWindow     time.Duration `yaml:"rate_window"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type BackendConfig struct {
	BaseURL     string `yaml:"base_url"`
	VoicebotURL string `yaml:"voicebot_url"`
	// Token is a pre-issued bearer token. When empty, tokens are minted
	// from JWTSecret.
	Token      string        `yaml:"token"`
	JWTSecret  string        `yaml:"jwt_secret"`
	JWTSubject string        `yaml:"jwt_subject"`
	JWTTTL     time.Duration `yaml:"jwt_ttl"`
	Timeout    time.Duration `yaml:"timeout"`
}

// NLUConfig selects the fallback for commands the local parser rejects:
// "backend", "gemini", "anthropic" or "none".
type NLUConfig struct {
	Provider  string          `yaml:"provider"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type SpeechConfig struct {
	DefaultLocale  string        `yaml:"default_locale"`
	FallbackLocale string        `yaml:"fallback_locale"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	QueueSize      int           `yaml:"queue_size"`
	// LocalMicrophone probes a device attached to this host instead of the
	// browser's. Requires a portaudio build.
	LocalMicrophone bool `yaml:"local_microphone"`
	SampleRate      int  `yaml:"sample_rate"`
}

type DeliveryConfig struct {
	// Timezone for voice-set delivery times. Empty means the host zone.
	Timezone        string        `yaml:"timezone"`
	StalenessWindow time.Duration `yaml:"staleness_window"`
	ImmediacyWindow time.Duration `yaml:"immediacy_window"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

type BreakerConfig struct {
	MaxRequests  uint32        `yaml:"max_requests"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	MinRequests  uint32        `yaml:"min_requests"`
	FailureRatio float64       `yaml:"failure_ratio"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 30
	}
	if c.Server.RateWindow == 0 {
		c.Server.RateWindow = time.Minute
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:8000"
	}
	if c.Backend.VoicebotURL == "" {
		c.Backend.VoicebotURL = c.Backend.BaseURL
	}
	if c.Backend.JWTTTL == 0 {
		c.Backend.JWTTTL = 30 * time.Minute
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 15 * time.Second
	}
	if c.NLU.Provider == "" {
		c.NLU.Provider = "backend"
	}
	if c.NLU.Gemini.Model == "" {
		c.NLU.Gemini.Model = "gemini-2.0-flash"
	}
	if c.NLU.Anthropic.Model == "" {
		c.NLU.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if c.Speech.DefaultLocale == "" {
		c.Speech.DefaultLocale = "en-US"
	}
	if c.Speech.FallbackLocale == "" {
		c.Speech.FallbackLocale = "en-US"
	}
	if c.Speech.ProbeTimeout == 0 {
		c.Speech.ProbeTimeout = 10 * time.Second
	}
	if c.Speech.QueueSize == 0 {
		c.Speech.QueueSize = 16
	}
	if c.Speech.SampleRate == 0 {
		c.Speech.SampleRate = 16000
	}
	if c.Delivery.StalenessWindow == 0 {
		c.Delivery.StalenessWindow = 120 * time.Second
	}
	if c.Delivery.ImmediacyWindow == 0 {
		c.Delivery.ImmediacyWindow = 60 * time.Second
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = 100 * time.Millisecond
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 5 * time.Second
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2.0
	}
	if c.Breaker.MaxRequests == 0 {
		c.Breaker.MaxRequests = 3
	}
	if c.Breaker.Interval == 0 {
		c.Breaker.Interval = time.Minute
	}
	if c.Breaker.Timeout == 0 {
		c.Breaker.Timeout = 30 * time.Second
	}
	if c.Breaker.MinRequests == 0 {
		c.Breaker.MinRequests = 3
	}
	if c.Breaker.FailureRatio == 0 {
		c.Breaker.FailureRatio = 0.6
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	switch c.NLU.Provider {
	case "backend", "none":
	case "gemini":
		if c.NLU.Gemini.APIKey == "" {
			return fmt.Errorf("nlu.gemini.api_key is required for provider gemini")
		}
	case "anthropic":
		if c.NLU.Anthropic.APIKey == "" {
			return fmt.Errorf("nlu.anthropic.api_key is required for provider anthropic")
		}
	default:
		return fmt.Errorf("unknown nlu provider %q", c.NLU.Provider)
	}
	if c.Backend.Token == "" && c.Backend.JWTSecret == "" {
		return fmt.Errorf("backend.token or backend.jwt_secret is required")
	}
	if c.Delivery.ImmediacyWindow > c.Delivery.StalenessWindow {
		return fmt.Errorf("delivery.immediacy_window must not exceed delivery.staleness_window")
	}
	return nil
}
