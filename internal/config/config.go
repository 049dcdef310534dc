package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel             = "claude-sonnet-4-5-20250929"
	DefaultNarrationTokens   = 150
	DefaultCoachingTokens    = 1024
	DefaultTemperature       = 0.7
	DefaultStyle             = "hype"
	DefaultBatchSize         = 3
	DefaultBatchIntervalMs   = 1500
	DefaultCacheTTLSeconds   = 30
	DefaultCacheMaxEntries   = 100
	DefaultBufSize           = 100
	DefaultStockLossMs       = 1000
	DefaultSignificantMs     = 1500
	DefaultMinorComboMs      = 2500
	DefaultNeutralMs         = 5000
	DefaultFrameUpdateMs     = 10000
	DefaultCompletedSweepMin = 5
)

type Config struct {
	Provider  ProviderConfig  `json:"provider"`
	Narration NarrationConfig `json:"narration"`
	Throttle  ThrottleConfig  `json:"throttle"`
	Batch     BatchConfig     `json:"batch"`
	Coaching  CoachingConfig  `json:"coaching"`
	Ingest    IngestConfig    `json:"ingest"`
	Sinks     SinksConfig     `json:"sinks"`
}

type ProviderConfig struct {
	// Type selects the backend: "anthropic" (default), "openai", "compat"
	// (any OpenAI-compatible chat-completions endpoint), or "agent".
	Type        string  `json:"type,omitempty"`
	APIKey      string  `json:"apiKey"`
	BaseURL     string  `json:"baseUrl,omitempty"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

type NarrationConfig struct {
	Style           string `json:"style"`
	MaxTokens       int    `json:"maxTokens"`
	CacheTTLSeconds int    `json:"cacheTtlSeconds"`
	CacheMaxEntries int    `json:"cacheMaxEntries"`
}

// ThrottleConfig holds per-class minimum re-fire intervals in milliseconds.
type ThrottleConfig struct {
	StockLossMs        int `json:"stockLossMs"`
	SignificantComboMs int `json:"significantComboMs"`
	MinorComboMs       int `json:"minorComboMs"`
	NeutralExchangeMs  int `json:"neutralExchangeMs"`
	FrameUpdateMs      int `json:"frameUpdateMs"`
}

type BatchConfig struct {
	Size       int `json:"size"`
	IntervalMs int `json:"intervalMs"`
}

type CoachingConfig struct {
	Enabled   bool `json:"enabled"`
	MaxTokens int  `json:"maxTokens"`
}

type IngestConfig struct {
	WatchDir string `json:"watchDir,omitempty"`
	LiveURL  string `json:"liveUrl,omitempty"`
}

type SinksConfig struct {
	Console  ConsoleConfig  `json:"console"`
	Telegram TelegramConfig `json:"telegram"`
}

type ConsoleConfig struct {
	Enabled bool `json:"enabled"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chatId"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Model:       DefaultModel,
			Temperature: DefaultTemperature,
		},
		Narration: NarrationConfig{
			Style:           DefaultStyle,
			MaxTokens:       DefaultNarrationTokens,
			CacheTTLSeconds: DefaultCacheTTLSeconds,
			CacheMaxEntries: DefaultCacheMaxEntries,
		},
		Throttle: ThrottleConfig{
			StockLossMs:        DefaultStockLossMs,
			SignificantComboMs: DefaultSignificantMs,
			MinorComboMs:       DefaultMinorComboMs,
			NeutralExchangeMs:  DefaultNeutralMs,
			FrameUpdateMs:      DefaultFrameUpdateMs,
		},
		Batch: BatchConfig{
			Size:       DefaultBatchSize,
			IntervalMs: DefaultBatchIntervalMs,
		},
		Coaching: CoachingConfig{
			Enabled:   true,
			MaxTokens: DefaultCoachingTokens,
		},
		Sinks: SinksConfig{
			Console: ConsoleConfig{Enabled: true},
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".slipcast")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("SLIPCAST_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_AUTH_TOKEN"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if url := os.Getenv("SLIPCAST_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if url := os.Getenv("ANTHROPIC_BASE_URL"); url != "" && cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("SLIPCAST_MODEL"); model != "" {
		cfg.Provider.Model = model
	}
	if style := os.Getenv("SLIPCAST_STYLE"); style != "" {
		cfg.Narration.Style = style
	}
	if token := os.Getenv("SLIPCAST_TELEGRAM_TOKEN"); token != "" {
		cfg.Sinks.Telegram.Token = token
	}
	if chat := os.Getenv("SLIPCAST_TELEGRAM_CHAT_ID"); chat != "" {
		if parsed, err := strconv.ParseInt(chat, 10, 64); err == nil {
			cfg.Sinks.Telegram.ChatID = parsed
		}
	}
	if dir := os.Getenv("SLIPCAST_WATCH_DIR"); dir != "" {
		cfg.Ingest.WatchDir = dir
	}

	if cfg.Provider.Model == "" {
		cfg.Provider.Model = DefaultModel
	}
	if cfg.Narration.MaxTokens <= 0 {
		cfg.Narration.MaxTokens = DefaultNarrationTokens
	}
	if cfg.Narration.CacheTTLSeconds <= 0 {
		cfg.Narration.CacheTTLSeconds = DefaultCacheTTLSeconds
	}
	if cfg.Narration.CacheMaxEntries <= 0 {
		cfg.Narration.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if cfg.Batch.Size <= 0 {
		cfg.Batch.Size = DefaultBatchSize
	}
	if cfg.Batch.IntervalMs <= 0 {
		cfg.Batch.IntervalMs = DefaultBatchIntervalMs
	}
	if cfg.Coaching.MaxTokens <= 0 {
		cfg.Coaching.MaxTokens = DefaultCoachingTokens
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
