package llmclient

import (
	"context"
	"time"

	"go.uber.org/zap"

	"contract-analyzer/config"
	apperrors "contract-analyzer/errors"
)

// Options controls a single completion request.
type Options struct {
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	JSONMode     bool
	// Timeout overrides the configured per-call deadline when positive.
	Timeout time.Duration
}

// Client turns a prompt into a text response. The pipeline treats the backend
// as opaque: whether the request goes to a hosted API or a local server is
// decided once at construction time.
type Client interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// New selects the completion backend from LLM_MODE.
func New(cfg *config.Config, logger *zap.Logger) (Client, error) {
	switch cfg.LLMMode {
	case config.LLMModeLocal:
		return NewLocal(cfg, logger), nil
	case config.LLMModeExternal:
		return NewExternal(cfg, logger)
	default:
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "unknown llm mode %q", cfg.LLMMode)
	}
}

// backoffSleep waits before the next retry attempt using exponential backoff
// with configurable jitter and cap. Returns early when the context is done.
func backoffSleep(ctx context.Context, cfg *config.Config, attempt int) {
	base := cfg.RetryDelaySeconds
	if base <= 0 {
		base = time.Second // config normalization should prevent this
	}
	d := base * time.Duration(1<<attempt)
	maxWait := cfg.LLMBackoffMaxSeconds
	if maxWait > 0 && d > maxWait {
		d = maxWait
	}
	jitterRatio := cfg.LLMBackoffJitterRatio
	if jitterRatio < 0 || jitterRatio > 1 {
		jitterRatio = 0.1
	}
	jitter := time.Duration(float64(d) * jitterRatio)
	wait := d - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter+1))

	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
