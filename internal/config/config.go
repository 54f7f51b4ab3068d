package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the call orchestrator.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	STTProvider string
	TTSProvider string
	LLMMode     string

	DeepgramAPIKey    string
	DeepgramWSBaseURL string
	DeepgramModel     string
	DeepgramLanguage  string

	TTSWSBaseURL string
	TTSAPIKey    string

	LLMHTTPURL          string
	LLMHTTPStreamStrict bool

	DatabaseURL string

	SMSWebhookURL string
	SMSAPIKey     string

	TenantCacheTTL time.Duration

	ToolTimeoutSoft   time.Duration
	ToolTimeoutHard   time.Duration
	ToolBudgetDefault int

	DebounceWindow     time.Duration
	STTEndpointSilence time.Duration
	STTUtteranceEndMS  time.Duration
	BargeInMinChars    int
	SessionIdleGuard   time.Duration
	TTSFlushWaitOnEnd  time.Duration
	FirstAudioSLO      time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("CALLCORE_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("CALLCORE_METRICS_NAMESPACE", "callcore"),
		AllowAnyOrigin:   false,

		STTProvider: envOrDefault("STT_PROVIDER", "auto"),
		TTSProvider: envOrDefault("TTS_PROVIDER", "auto"),
		LLMMode:     envOrDefault("LLM_ADAPTER_MODE", "auto"),

		DeepgramWSBaseURL: envOrDefault("DEEPGRAM_WS_BASE_URL", "wss://api.deepgram.com"),
		DeepgramModel:     envOrDefault("DEEPGRAM_MODEL", "nova-2-phonecall"),
		DeepgramLanguage:  envOrDefault("DEEPGRAM_LANGUAGE", "en-US"),
		DeepgramAPIKey:    stringsTrimSpace("DEEPGRAM_API_KEY"),

		TTSWSBaseURL: envOrDefault("TTS_WS_BASE_URL", "wss://api.callcore-tts.example/v1/stream"),
		TTSAPIKey:    stringsTrimSpace("TTS_API_KEY"),

		LLMHTTPURL: stringsTrimSpace("LLM_HTTP_URL"),

		DatabaseURL: stringsTrimSpace("DATABASE_URL"),

		SMSWebhookURL: stringsTrimSpace("SMS_WEBHOOK_URL"),
		SMSAPIKey:     stringsTrimSpace("SMS_API_KEY"),

		ShutdownTimeout:    15 * time.Second,
		TenantCacheTTL:     5 * time.Minute,
		ToolTimeoutSoft:    400 * time.Millisecond,
		ToolTimeoutHard:    1000 * time.Millisecond,
		ToolBudgetDefault:  2,
		DebounceWindow:     500 * time.Millisecond,
		STTEndpointSilence: 2500 * time.Millisecond,
		STTUtteranceEndMS:  2000 * time.Millisecond,
		BargeInMinChars:    5,
		SessionIdleGuard:   30 * time.Second,
		TTSFlushWaitOnEnd:  8 * time.Second,
		FirstAudioSLO:      800 * time.Millisecond,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("CALLCORE_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TenantCacheTTL, err = durationFromEnv("TENANT_CACHE_TTL", cfg.TenantCacheTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.ToolTimeoutSoft, err = durationFromEnv("TOOL_TIMEOUT_SOFT", cfg.ToolTimeoutSoft)
	if err != nil {
		return Config{}, err
	}
	cfg.ToolTimeoutHard, err = durationFromEnv("TOOL_TIMEOUT_HARD", cfg.ToolTimeoutHard)
	if err != nil {
		return Config{}, err
	}
	cfg.ToolBudgetDefault, err = intFromEnv("TOOL_BUDGET_DEFAULT", cfg.ToolBudgetDefault)
	if err != nil {
		return Config{}, err
	}
	cfg.DebounceWindow, err = durationFromEnv("UTTERANCE_DEBOUNCE_WINDOW", cfg.DebounceWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.STTEndpointSilence, err = durationFromEnv("STT_ENDPOINT_SILENCE", cfg.STTEndpointSilence)
	if err != nil {
		return Config{}, err
	}
	cfg.STTUtteranceEndMS, err = durationFromEnv("STT_UTTERANCE_END_MS", cfg.STTUtteranceEndMS)
	if err != nil {
		return Config{}, err
	}
	cfg.BargeInMinChars, err = intFromEnv("BARGE_IN_MIN_CHARS", cfg.BargeInMinChars)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionIdleGuard, err = durationFromEnv("SESSION_IDLE_GUARD", cfg.SessionIdleGuard)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSFlushWaitOnEnd, err = durationFromEnv("TTS_FLUSH_WAIT_ON_END", cfg.TTSFlushWaitOnEnd)
	if err != nil {
		return Config{}, err
	}
	cfg.FirstAudioSLO, err = durationFromEnv("FIRST_AUDIO_SLO", cfg.FirstAudioSLO)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("CALLCORE_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMHTTPStreamStrict, err = boolFromEnv("LLM_HTTP_STREAM_STRICT", cfg.LLMHTTPStreamStrict)
	if err != nil {
		return Config{}, err
	}

	if cfg.ToolBudgetDefault <= 0 {
		return Config{}, fmt.Errorf("TOOL_BUDGET_DEFAULT must be positive")
	}
	if cfg.ToolTimeoutSoft <= 0 || cfg.ToolTimeoutHard < cfg.ToolTimeoutSoft {
		return Config{}, fmt.Errorf("TOOL_TIMEOUT_HARD must be >= TOOL_TIMEOUT_SOFT > 0")
	}
	if cfg.SessionIdleGuard < 5*time.Second {
		return Config{}, fmt.Errorf("SESSION_IDLE_GUARD must be at least 5s")
	}
	if cfg.BargeInMinChars <= 0 {
		return Config{}, fmt.Errorf("BARGE_IN_MIN_CHARS must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
