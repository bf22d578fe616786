package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CHROMADEMO_VECTOR_HOST.
const EnvPrefix = "CHROMADEMO"

// Config holds all application configuration.
type Config struct {
	Vector    VectorConfig    `mapstructure:"vector"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

type VectorConfig struct {
	Backend    string        `mapstructure:"backend"`
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Vector: VectorConfig{
			Backend:    "chroma",
			Host:       "chroma",
			Port:       8000,
			Collection: "sample_collection",
			Timeout:    30 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries: 5,
			RetryDelay: 2 * time.Second,
		},
		Embedding: EmbeddingConfig{Provider: "none"},
		Tracing: TracingConfig{
			ServiceName: "chromademo",
			SampleRate:  1.0,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("vector.backend", d.Vector.Backend)
	v.SetDefault("vector.host", d.Vector.Host)
	v.SetDefault("vector.port", d.Vector.Port)
	v.SetDefault("vector.collection", d.Vector.Collection)
	v.SetDefault("vector.timeout", d.Vector.Timeout)
	v.SetDefault("retry.max_retries", d.Retry.MaxRetries)
	v.SetDefault("retry.retry_delay", d.Retry.RetryDelay)
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// envAliases are accepted in addition to the prefixed names.
var envAliases = map[string][]string{
	"vector.host":       {"CHROMA_HOST"},
	"vector.port":       {"CHROMA_PORT"},
	"embedding.api_key": {"OPENAI_API_KEY"},
}

func bindAliases(v *viper.Viper) error {
	for key, aliases := range envAliases {
		names := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Vector.Host == "" {
		warnings = append(warnings, "vector host is empty")
	}
	if c.Vector.Port < 0 || c.Vector.Port > 65535 {
		warnings = append(warnings, fmt.Sprintf("vector port %d is outside [0, 65535]", c.Vector.Port))
	}
	if c.Retry.MaxRetries < 1 {
		warnings = append(warnings, fmt.Sprintf("retry max_retries %d is below 1; one attempt will be made", c.Retry.MaxRetries))
	}
	if c.Retry.RetryDelay < 0 {
		warnings = append(warnings, fmt.Sprintf("retry retry_delay %s is negative", c.Retry.RetryDelay))
	}

	// OpenAI itself needs a key; local OpenAI-compatible servers usually don't.
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		warnings = append(warnings, "embedding provider 'openai' is configured but api_key is empty")
	}
	if c.Vector.Backend == "qdrant" && (c.Embedding.Provider == "" || c.Embedding.Provider == "none") {
		warnings = append(warnings, "vector backend 'qdrant' needs an embedding provider")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

// Load reads configuration from defaults, an optional file, a .env file in the
// working directory and the environment, in increasing order of precedence.
// An empty path skips the config file; a missing file is an error.
func Load(path string) (*Config, error) {
	return load(path, nil, nil)
}

// LoadWithFlags is Load with command-line flags bound to config keys. binds
// maps a config key (e.g. "vector.host") to a flag name. A changed flag beats
// every other source; an unchanged flag's default replaces the built-in default
// but still yields to the environment and the config file.
func LoadWithFlags(path string, flags *pflag.FlagSet, binds map[string]string) (*Config, error) {
	return load(path, flags, binds)
}

func load(path string, flags *pflag.FlagSet, binds map[string]string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindAliases(v); err != nil {
		return nil, err
	}
	for key, name := range binds {
		f := flags.Lookup(name)
		if f == nil {
			return nil, fmt.Errorf("binding %s: no flag named %q", key, name)
		}
		v.SetDefault(key, f.DefValue)
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
