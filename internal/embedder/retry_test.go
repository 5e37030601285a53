package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

// flakyEmbedder fails its first failUntil calls, then succeeds.
type flakyEmbedder struct {
	calls     int
	failUntil int
	err       error
}

func (f *flakyEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failUntil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1}
	}
	return vectors, nil
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func Test_Retrying_TransientThenSuccess(t *testing.T) {
	t.Parallel()
	inner := &flakyEmbedder{
		failUntil: 2,
		err:       fmt.Errorf("http 503: %w", ErrTransient),
	}
	r, err := NewRetrying(inner, fastRetryConfig(), nil, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewRetrying: %v", err)
	}

	vectors, err := r.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 2 {
		t.Errorf("got %d vectors, want 2", len(vectors))
	}
	if inner.calls != 3 {
		t.Errorf("inner called %d time(s), want 2 failures + 1 success", inner.calls)
	}
}

func Test_Retrying_PermanentFailsImmediately(t *testing.T) {
	t.Parallel()
	inner := &flakyEmbedder{
		failUntil: 100,
		err:       fmt.Errorf("http 401: %w", ErrPermanent),
	}
	r, err := NewRetrying(inner, fastRetryConfig(), nil, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewRetrying: %v", err)
	}

	_, err = r.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, ErrPermanent) {
		t.Fatalf("Embed error = %v, want ErrPermanent", err)
	}
	if inner.calls != 1 {
		t.Errorf("permanent failure retried: %d call(s)", inner.calls)
	}
}

func Test_Retrying_ExhaustsRetries(t *testing.T) {
	t.Parallel()
	inner := &flakyEmbedder{
		failUntil: 100,
		err:       fmt.Errorf("connection refused: %w", ErrTransient),
	}
	r, err := NewRetrying(inner, fastRetryConfig(), nil, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewRetrying: %v", err)
	}

	_, err = r.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("Embed error = %v, want ErrTransient", err)
	}
	// Initial attempt plus MaxRetries retries.
	if inner.calls != 4 {
		t.Errorf("inner called %d time(s), want 4", inner.calls)
	}
}

func Test_Retrying_CancelledContext(t *testing.T) {
	t.Parallel()
	inner := &flakyEmbedder{
		failUntil: 100,
		err:       fmt.Errorf("timeout: %w", ErrTransient),
	}
	r, err := NewRetrying(inner, fastRetryConfig(), nil, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewRetrying: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Embed(ctx, []string{"a"}); err == nil {
		t.Error("Embed on cancelled context succeeded")
	}
}

func Test_NewRetrying_NilInner(t *testing.T) {
	t.Parallel()
	if _, err := NewRetrying(nil, RetryConfig{}, nil, nil); err == nil {
		t.Error("nil inner embedder accepted")
	}
}

func Test_ClassifyStatus(t *testing.T) {
	t.Parallel()
	cases := []struct {
		code int
		want error
	}{
		{http.StatusTooManyRequests, ErrTransient},
		{http.StatusRequestTimeout, ErrTransient},
		{http.StatusInternalServerError, ErrTransient},
		{http.StatusBadGateway, ErrTransient},
		{http.StatusServiceUnavailable, ErrTransient},
		{http.StatusBadRequest, ErrPermanent},
		{http.StatusUnauthorized, ErrPermanent},
		{http.StatusNotFound, ErrPermanent},
		{http.StatusRequestEntityTooLarge, ErrPermanent},
	}
	for _, tc := range cases {
		if got := classifyStatus(tc.code); !errors.Is(got, tc.want) {
			t.Errorf("classifyStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func Test_LooksLikeChatModel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		model string
		want  bool
	}{
		{"gpt-4o", true},
		{"llama3.2", true},
		{"Mistral-7B", true},
		{"all-minilm", false},
		{"nomic-embed-text", false},
		{"text-embedding-3-small", false},
	}
	for _, tc := range cases {
		if got := looksLikeChatModel(tc.model); got != tc.want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", tc.model, got, tc.want)
		}
	}
}
