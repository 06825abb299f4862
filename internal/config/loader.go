package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known LLM provider names. Used by [Validate] to
// warn about unrecognised names.
var ValidProviderNames = []string{
	"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, validates it and applies
// defaults. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %v must be between 0 and 1", r))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("providers.llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		prefix := fmt.Sprintf("providers.llm_fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName(prefix, fb.Name)
	}
	if cfg.Providers.LLM.Name == "" {
		if len(cfg.Providers.LLMFallbacks) > 0 {
			errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
		} else {
			slog.Warn("no LLM provider configured; suggestions will be local-only")
		}
	}

	// Suggest
	s := cfg.Suggest
	if s.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("suggest.cache_ttl %v must not be negative", s.CacheTTL))
	}
	if s.AugmentTimeout < 0 {
		errs = append(errs, fmt.Errorf("suggest.augment_timeout %v must not be negative", s.AugmentTimeout))
	}
	if s.MaxInputRunes < 0 {
		errs = append(errs, fmt.Errorf("suggest.max_input_runes %d must not be negative", s.MaxInputRunes))
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		errs = append(errs, fmt.Errorf("suggest.temperature %.2f is out of range [0, 2]", s.Temperature))
	}
	if s.TopP < 0 || s.TopP > 1 {
		errs = append(errs, fmt.Errorf("suggest.top_p %.2f is out of range [0, 1]", s.TopP))
	}
	if s.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("suggest.max_tokens %d must not be negative", s.MaxTokens))
	}
	for i, d := range s.DenyExtra {
		if d == "" {
			errs = append(errs, fmt.Errorf("suggest.deny_extra[%d] is empty", i))
		}
	}
	if s.AugmentTimeout > 10*DefaultAugmentTimeout {
		slog.Warn("suggest.augment_timeout is very long; slow augmenters will stall the editor",
			"augment_timeout", s.AugmentTimeout,
		)
	}

	// Entitlement
	e := cfg.Entitlement
	if e.CheckTimeout < 0 {
		errs = append(errs, fmt.Errorf("entitlement.check_timeout %v must not be negative", e.CheckTimeout))
	}
	if e.Period < 0 {
		errs = append(errs, fmt.Errorf("entitlement.period %v must not be negative", e.Period))
	}
	if e.PostgresDSN == "" && cfg.Providers.LLM.Name != "" {
		slog.Warn("entitlement.postgres_dsn is empty; every caller may use augmented suggestions")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not in
// [ValidProviderNames].
func validateProviderName(field, name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"field", field,
		"name", name,
		"known", ValidProviderNames,
	)
}
