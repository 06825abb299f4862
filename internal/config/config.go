// Package config provides the configuration schema, loader, and provider
// registry for the ezhuthu suggestion service.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to a [slog.Level]. Unknown and empty levels map to Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults applied by [Config.ApplyDefaults].
const (
	DefaultListenAddr       = ":8080"
	DefaultCacheTTL         = 5 * time.Minute
	DefaultAugmentTimeout   = 2500 * time.Millisecond
	DefaultMaxInputRunes    = 500
	DefaultTemperature      = 0.3
	DefaultTopP             = 0.9
	DefaultMaxTokens        = 256
	DefaultCheckTimeout     = 300 * time.Millisecond
	DefaultEntitlementQuota = 100
	DefaultQuotaPeriod      = 30 * 24 * time.Hour
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Suggest     SuggestConfig     `yaml:"suggest"`
	Entitlement EntitlementConfig `yaml:"entitlement"`
	MCP         MCPConfig         `yaml:"mcp"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It can be changed without a restart.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// TraceSampleRatio is the fraction of new root traces that are sampled,
	// between 0 and 1. Zero samples every trace. Requests that arrive with a
	// sampled parent are always traced.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares the LLM backends behind the augmenter. When LLM is
// empty the service runs local-only.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order when the primary fails or its circuit
	// breaker is open.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
}

// ProviderEntry is the configuration block of one provider. The Name field is
// used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// SuggestConfig tunes the suggestion engine.
type SuggestConfig struct {
	// CacheTTL is how long a resolved answer is reused. Default: 5m.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// AugmentTimeout bounds each augmenter call. Default: 2.5s.
	AugmentTimeout time.Duration `yaml:"augment_timeout"`

	// MaxInputRunes is the longest accepted input. Default: 500.
	MaxInputRunes int `yaml:"max_input_runes"`

	// Sampling parameters forwarded to the LLM.
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	MaxTokens   int     `yaml:"max_tokens"`

	// LocalFill pads short augmented answers with local candidates.
	LocalFill bool `yaml:"local_fill"`

	// DenyExtra adds exact-match entries to the built-in artifact deny list.
	DenyExtra []string `yaml:"deny_extra"`
}

// EntitlementConfig selects the entitlement backend. With an empty
// PostgresDSN every caller may use augmentation.
type EntitlementConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`

	// CheckTimeout bounds each entitlement call. Default: 300ms.
	CheckTimeout time.Duration `yaml:"check_timeout"`

	// DefaultQuota applies to accounts without an explicit quota. Zero means
	// DefaultEntitlementQuota; negative means unlimited.
	DefaultQuota int `yaml:"default_quota"`

	// Period is the trailing window usage is counted over. Default: 30 days.
	Period time.Duration `yaml:"period"`
}

// MCPConfig controls the MCP tool endpoint.
type MCPConfig struct {
	// Enabled mounts the MCP streamable-HTTP handler at /mcp.
	Enabled bool `yaml:"enabled"`
}

// ApplyDefaults fills zero values with their defaults. It is called by
// [LoadFromReader] after validation.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}

	s := &c.Suggest
	if s.CacheTTL == 0 {
		s.CacheTTL = DefaultCacheTTL
	}
	if s.AugmentTimeout == 0 {
		s.AugmentTimeout = DefaultAugmentTimeout
	}
	if s.MaxInputRunes == 0 {
		s.MaxInputRunes = DefaultMaxInputRunes
	}
	if s.Temperature == 0 {
		s.Temperature = DefaultTemperature
	}
	if s.TopP == 0 {
		s.TopP = DefaultTopP
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = DefaultMaxTokens
	}

	e := &c.Entitlement
	if e.CheckTimeout == 0 {
		e.CheckTimeout = DefaultCheckTimeout
	}
	if e.DefaultQuota == 0 {
		e.DefaultQuota = DefaultEntitlementQuota
	}
	if e.Period == 0 {
		e.Period = DefaultQuotaPeriod
	}
}
