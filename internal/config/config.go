// Package config loads service configuration from a YAML file and the
// environment. Environment variables win; every key maps to ARIA_ plus the
// uppercased dotted path with dots and dashes as underscores.
package config

import (
	"fmt"
	"strings"
	"time"

	"aria/internal/observability"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig                  `yaml:"server" mapstructure:"server"`
	LLM      LLMConfig                     `yaml:"llm" mapstructure:"llm"`
	Google   GoogleConfig                  `yaml:"google" mapstructure:"google"`
	Context  ContextConfig                 `yaml:"context" mapstructure:"context"`
	Auth     AuthConfig                    `yaml:"auth" mapstructure:"auth"`
	Logging  LoggingConfig                 `yaml:"logging" mapstructure:"logging"`
	Metrics  observability.MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Tracing  observability.TracingConfig   `yaml:"tracing" mapstructure:"tracing"`
	Prefetch PrefetchConfig                `yaml:"prefetch" mapstructure:"prefetch"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// LLMConfig configures the classification and reply model.
type LLMConfig struct {
	Model       string        `yaml:"model" mapstructure:"model"`
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxMessages int           `yaml:"max_messages" mapstructure:"max_messages"`
	TokenBudget int           `yaml:"token_budget" mapstructure:"token_budget"`
}

// GoogleConfig configures the downstream Google providers and the OAuth
// client used to refresh user tokens.
type GoogleConfig struct {
	ClientID     string        `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string        `yaml:"client_secret" mapstructure:"client_secret"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ContextConfig configures conversation persistence.
type ContextConfig struct {
	// Backend is "memory" or "file".
	Backend string `yaml:"backend" mapstructure:"backend"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
}

// AuthConfig configures token lifecycle handling.
type AuthConfig struct {
	ExpirySkew time.Duration `yaml:"expiry_skew" mapstructure:"expiry_skew"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
}

// PrefetchConfig configures the pre-classification context snapshot.
type PrefetchConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// Load reads configuration from the given file (optional) and the
// environment, applying defaults for everything left unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ARIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("aria")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.aria")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.max_messages", 40)
	v.SetDefault("llm.token_budget", 6000)
	v.SetDefault("google.timeout", 15*time.Second)
	v.SetDefault("context.backend", "memory")
	v.SetDefault("context.dir", "~/.aria/sessions")
	v.SetDefault("auth.expiry_skew", 5*time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.prometheus_port", 9090)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "otlp")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.service_name", "aria")
	v.SetDefault("prefetch.enabled", true)
	v.SetDefault("prefetch.ttl", 2*time.Minute)
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	switch c.Context.Backend {
	case "memory", "file":
	default:
		return fmt.Errorf("unknown context backend %q", c.Context.Backend)
	}
	if c.Context.Backend == "file" && c.Context.Dir == "" {
		return fmt.Errorf("context.dir is required for the file backend")
	}
	return nil
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// YAML renders the effective configuration, with secrets redacted, for the
// config dump command.
func (c *Config) YAML() ([]byte, error) {
	redacted := *c
	if redacted.LLM.APIKey != "" {
		redacted.LLM.APIKey = "***"
	}
	if redacted.Google.ClientSecret != "" {
		redacted.Google.ClientSecret = "***"
	}
	return yaml.Marshal(&redacted)
}
