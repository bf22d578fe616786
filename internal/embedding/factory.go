// Package embedding provides client-side embedding functions.
package embedding

import (
	"fmt"
	"sort"
	"time"

	"github.com/efebarandurmaz/chromademo/internal/retry"
	"github.com/efebarandurmaz/chromademo/internal/vector"
)

// ProviderConfig holds all configuration needed to create any embedding provider.
type ProviderConfig struct {
	Provider string // "openai", "ollama", "together", "custom", "none"
	APIKey   string
	Model    string
	BaseURL  string // Override for self-hosted / custom endpoints

	MaxRetries int           // Attempts per request (0 = no retry wrapper)
	RetryDelay time.Duration // Initial delay, doubled per attempt
}

// ProviderConstructor builds an Embedder from config.
type ProviderConstructor func(cfg ProviderConfig) (vector.Embedder, error)

// Factory creates embedders by provider name.
type Factory struct {
	constructors map[string]ProviderConstructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{
		constructors: make(map[string]ProviderConstructor),
	}
}

// Register adds a provider constructor under the given name.
func (f *Factory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds an Embedder from config. Returns nil (no error) when provider
// is empty or "none", leaving embedding to the vector service.
func (f *Factory) Create(cfg ProviderConfig) (vector.Embedder, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q (registered: %v)", cfg.Provider, f.names())
	}

	e, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.MaxRetries > 0 {
		delay := cfg.RetryDelay
		if delay == 0 {
			delay = time.Second
		}
		return WithRetry(e, retry.Exponential(cfg.MaxRetries, delay, 30*time.Second)), nil
	}
	return e, nil
}

func (f *Factory) names() []string {
	out := make([]string, 0, len(f.constructors))
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KnownProviders maps OpenAI-compatible presets to their default base URLs.
var KnownProviders = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"ollama":   "http://localhost:11434/v1",
	"together": "https://api.together.xyz/v1",
}

// DefaultModels holds the embedding model used when none is configured.
var DefaultModels = map[string]string{
	"openai":   "text-embedding-3-small",
	"ollama":   "nomic-embed-text",
	"together": "BAAI/bge-base-en-v1.5",
}

// NewDefaultFactory returns a factory with every OpenAI-compatible preset and
// "custom" (any base_url) registered.
func NewDefaultFactory() *Factory {
	f := NewFactory()
	for name, url := range KnownProviders {
		name, url := name, url
		f.Register(name, func(c ProviderConfig) (vector.Embedder, error) {
			base := c.BaseURL
			if base == "" {
				base = url
			}
			model := c.Model
			if model == "" {
				model = DefaultModels[name]
			}
			return newOpenAI(c.APIKey, model, base)
		})
	}
	f.Register("custom", func(c ProviderConfig) (vector.Embedder, error) {
		if c.BaseURL == "" {
			return nil, fmt.Errorf("custom embedding provider requires base_url")
		}
		return newOpenAI(c.APIKey, c.Model, c.BaseURL)
	})
	return f
}

func newOpenAI(apiKey, model, baseURL string) (vector.Embedder, error) {
	e, err := NewOpenAI(apiKey, model, baseURL)
	if err != nil {
		return nil, err
	}
	return e, nil
}
