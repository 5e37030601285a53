package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/54b3r/docqa-go/internal/metrics"
	"github.com/54b3r/docqa-go/internal/rag"
)

// RetryConfig tunes the retry and rate-limiting behaviour of a Retrying
// embedder wrapper.
type RetryConfig struct {
	// MaxRetries caps how many times a transient failure is retried.
	// Defaults to 3 if zero.
	MaxRetries int

	// InitialInterval is the first backoff delay. Defaults to 500ms if zero.
	InitialInterval time.Duration

	// MaxInterval caps the backoff delay. Defaults to 15s if zero.
	MaxInterval time.Duration

	// RPS is the sustained rate of embedding calls allowed per second.
	// Zero disables client-side rate limiting.
	RPS float64

	// Burst is the rate limiter burst size. Defaults to 1 when RPS is set.
	Burst int
}

// Retrying wraps an inner rag.Embedder with bounded exponential-backoff
// retry on transient failures and an optional client-side rate limiter, so
// a flaky or throttled embedding backend degrades a single request rather
// than the whole process.
type Retrying struct {
	// inner is the wrapped embedder that performs the actual calls.
	inner rag.Embedder

	// limiter throttles outgoing embedding calls; nil when disabled.
	limiter *rate.Limiter

	// cfg holds the resolved retry parameters.
	cfg RetryConfig

	// metrics counts retried failures; may be nil.
	metrics *metrics.Metrics

	// log receives retry warnings.
	log *slog.Logger
}

// NewRetrying wraps inner with retry and rate-limiting behaviour.
func NewRetrying(inner rag.Embedder, cfg RetryConfig, m *metrics.Metrics, log *slog.Logger) (*Retrying, error) {
	if inner == nil {
		return nil, fmt.Errorf("embedder: inner embedder must not be nil")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 15 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &Retrying{
		inner:   inner,
		limiter: limiter,
		cfg:     cfg,
		metrics: m,
		log:     log,
	}, nil
}

// Embed forwards the batch to the inner embedder, retrying transient
// failures with exponential backoff up to the configured cap. Permanent
// failures and context cancellation are surfaced immediately.
func (r *Retrying) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32

	op := func() error {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		vectors, err := r.inner.Embed(ctx, texts)
		if err != nil {
			if IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = vectors
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.InitialInterval
	bo.MaxInterval = r.cfg.MaxInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.cfg.MaxRetries)), ctx)

	notify := func(err error, next time.Duration) {
		if r.metrics != nil {
			r.metrics.ObserveEmbedRetry()
		}
		r.log.Warn("embedder: transient failure, retrying",
			slog.Duration("backoff", next),
			slog.Int("batch", len(texts)),
			slog.Any("error", err),
		)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, fmt.Errorf("embedder: embedding batch of %d failed: %w", len(texts), err)
	}
	return result, nil
}
