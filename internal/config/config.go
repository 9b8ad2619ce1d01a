// Package config loads process configuration from an optional YAML file
// layered under MODELGATE_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file consulted when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Providers []ProviderConfig `koanf:"providers"`

	// Fallback names the provider tried once after a retryable failure
	// of the primary. Empty disables fallback.
	Fallback string `koanf:"fallback"`

	Budget  BudgetConfig  `koanf:"budget"`
	Policy  PolicyConfig  `koanf:"policy"`
	Storage StorageConfig `koanf:"storage"`
	Tracing TracingConfig `koanf:"tracing"`
}

type ProviderConfig struct {
	// Name identifies the adapter in the registry; Type selects the
	// implementation (openai, anthropic, mock). Name defaults to Type.
	Name       string `koanf:"name"`
	Type       string `koanf:"type"`
	APIKey     string `koanf:"api_key"`
	BaseURL    string `koanf:"base_url"`
	Timeout    string `koanf:"timeout"` // duration string, per-attempt
	MaxRetries int    `koanf:"max_retries"`
}

// AttemptTimeout parses the per-attempt timeout; zero means the adapter
// default.
func (p ProviderConfig) AttemptTimeout() (time.Duration, error) {
	if p.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 0, fmt.Errorf("provider %s: invalid timeout %q: %w", p.Name, p.Timeout, err)
	}
	return d, nil
}

// BudgetConfig holds daily spend caps in cents. Zero means uncapped.
type BudgetConfig struct {
	UserDailyCents   int64 `koanf:"user_daily_cents"`
	OrgDailyCents    int64 `koanf:"org_daily_cents"`
	GlobalDailyCents int64 `koanf:"global_daily_cents"`
}

type PolicyConfig struct {
	Enabled   bool   `koanf:"enabled"`
	HardBlock bool   `koanf:"hard_block"`
	RulesFile string `koanf:"rules_file"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type TracingConfig struct {
	Enabled bool   `koanf:"enabled"`
	Service string `koanf:"service"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the config file at path (DefaultPath when empty; a missing
// file is not an error) and overlays MODELGATE_-prefixed environment
// variables, with `__` mapping to nesting. `${VAR}` references in
// provider API keys are substituted from the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("MODELGATE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "MODELGATE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("storage.type") {
		k.Set("storage.type", "memory")
	}
	if !k.Exists("policy.enabled") {
		k.Set("policy.enabled", true)
	}
	if !k.Exists("tracing.service") {
		k.Set("tracing.service", "modelgate")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Providers {
		if cfg.Providers[i].Name == "" {
			cfg.Providers[i].Name = cfg.Providers[i].Type
		}
		cfg.Providers[i].APIKey = substituteEnvVars(cfg.Providers[i].APIKey)
	}

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
