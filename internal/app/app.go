// Package app wires configuration into backends shared by the commands.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/efebarandurmaz/chromademo/internal/config"
	"github.com/efebarandurmaz/chromademo/internal/embedding"
	"github.com/efebarandurmaz/chromademo/internal/metrics"
	"github.com/efebarandurmaz/chromademo/internal/observability"
	"github.com/efebarandurmaz/chromademo/internal/retry"
	"github.com/efebarandurmaz/chromademo/internal/vector"
	"github.com/efebarandurmaz/chromademo/internal/vector/chroma"
	"github.com/efebarandurmaz/chromademo/internal/vector/qdrant"
	"github.com/efebarandurmaz/chromademo/internal/vectordb"
)

// NewVectorFactory returns a factory with every supported backend registered.
func NewVectorFactory() *vector.Factory {
	f := vector.NewFactory()
	f.Register("chroma", func(c vector.DialConfig) (vector.Dialer, error) {
		d, err := chroma.NewDialer(c)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
	f.Register("qdrant", func(c vector.DialConfig) (vector.Dialer, error) {
		d, err := qdrant.NewDialer(c)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
	return f
}

// Policy converts retry settings into a fixed-delay policy.
func Policy(cfg config.RetryConfig) retry.Policy {
	return retry.Fixed(cfg.MaxRetries, cfg.RetryDelay)
}

// Dialer builds the embedder and vector dialer described by cfg.
func Dialer(cfg *config.Config) (vector.Dialer, error) {
	emb, err := embedding.NewDefaultFactory().Create(embedding.ProviderConfig{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		MaxRetries: cfg.Retry.MaxRetries,
		RetryDelay: cfg.Retry.RetryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	dialer, err := NewVectorFactory().Create(vector.DialConfig{
		Backend:  cfg.Vector.Backend,
		Host:     cfg.Vector.Host,
		Port:     cfg.Vector.Port,
		Timeout:  cfg.Vector.Timeout,
		Embedder: emb,
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s dialer: %w", cfg.Vector.Backend, err)
	}
	return dialer, nil
}

// Connect builds a dialer from cfg and connects with the configured retry policy.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.RunMetrics) (*vectordb.Client, error) {
	dialer, err := Dialer(cfg)
	if err != nil {
		return nil, err
	}
	backend := cfg.Vector.Backend
	if backend == "" {
		backend = vector.DefaultBackend
	}
	if m != nil {
		m.Backend = backend
		m.Address = dialer.Address()
	}

	return vectordb.Connect(ctx, dialer, vectordb.Options{
		Policy:  Policy(cfg.Retry),
		Logger:  logger,
		Metrics: m,
		Backend: backend,
	})
}

// Tracing starts the tracer provider described by cfg.
func Tracing(ctx context.Context, cfg config.TracingConfig) (*observability.TracerProvider, error) {
	tc := observability.DefaultTracingConfig()
	tc.OTLPEndpoint = cfg.Endpoint
	tc.SampleRate = cfg.SampleRate
	if cfg.ServiceName != "" {
		tc.ServiceName = cfg.ServiceName
	}
	return observability.InitTracing(ctx, tc)
}
