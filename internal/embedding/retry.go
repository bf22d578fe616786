package embedding

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/efebarandurmaz/chromademo/internal/retry"
	"github.com/efebarandurmaz/chromademo/internal/vector"
)

// RetryEmbedder wraps an Embedder with a retry policy.
type RetryEmbedder struct {
	inner  vector.Embedder
	policy retry.Policy
}

// WithRetry wraps e so that transient failures are retried under policy.
func WithRetry(e vector.Embedder, policy retry.Policy) *RetryEmbedder {
	return &RetryEmbedder{inner: e, policy: policy}
}

func (r *RetryEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := r.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		vecs, err := r.inner.Embed(ctx, texts)
		if err != nil {
			if !isRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		out = vecs
		return nil
	})
	return out, err
}

// isRetryable reports whether an embedding error is worth another attempt.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests") {
		return true
	}
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	for _, code := range []string{"400", "401", "403", "404"} {
		if strings.Contains(msg, code) {
			return false
		}
	}
	return true
}
