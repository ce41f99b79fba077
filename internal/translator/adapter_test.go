package translator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-translator/internal/cache"
	"pdf-translator/internal/types"
)

var fastRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

// countingBackend returns "[translated] <text>" and counts calls.
type countingBackend struct {
	name  string
	calls atomic.Int32
	delay time.Duration
	errs  []error // errors returned by the first len(errs) calls
	mu    sync.Mutex
}

func (b *countingBackend) Name() string { return b.name }

func (b *countingBackend) Translate(ctx context.Context, req Request) (string, error) {
	n := int(b.calls.Add(1))
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= len(b.errs) && b.errs[n-1] != nil {
		return "", b.errs[n-1]
	}
	return "[translated] " + req.Text, nil
}

func newTestAdapter(t *testing.T, opts Options) *Adapter {
	t.Helper()
	a, err := New(opts)
	require.NoError(t, err)
	return a
}

func TestNewRequiresPlainBackend(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestAdapterCachesResult(t *testing.T) {
	b := &countingBackend{name: "stub"}
	a := newTestAdapter(t, Options{Plain: Path{Backend: b}, LangIn: "en", LangOut: "zh"})

	for i := 0; i < 3; i++ {
		out, err := a.Translate(context.Background(), "Hello world")
		require.NoError(t, err)
		assert.Equal(t, "[translated] Hello world", out)
	}
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Equal(t, int64(2), a.CacheStats().Hits)
}

func TestAdapterConcurrentIdenticalRequestsCollapse(t *testing.T) {
	b := &countingBackend{name: "stub", delay: 100 * time.Millisecond}
	a := newTestAdapter(t, Options{Plain: Path{Backend: b}, LangIn: "en", LangOut: "zh"})

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := a.Translate(context.Background(), "same text")
			assert.NoError(t, err)
			results[i] = out
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), b.calls.Load())
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, "[translated] same text", results[0])
}

func TestAdapterBlankTextSkipsBackend(t *testing.T) {
	b := &countingBackend{name: "stub"}
	a := newTestAdapter(t, Options{Plain: Path{Backend: b}})

	out, err := a.Translate(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, "   ", out)
	assert.Equal(t, int32(0), b.calls.Load())
}

func TestAdapterIgnoreCache(t *testing.T) {
	b := &countingBackend{name: "stub"}
	store := cache.NewMemoryStore()
	a := newTestAdapter(t, Options{Plain: Path{Backend: b}, IgnoreCache: true, Store: store})

	for i := 0; i < 2; i++ {
		_, err := a.Translate(context.Background(), "Hello")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), b.calls.Load())
	assert.Equal(t, 0, store.Len())
}

func TestAdapterSharedStoreAcrossInstances(t *testing.T) {
	store := cache.NewMemoryStore()
	b1 := &countingBackend{name: "stub"}
	b2 := &countingBackend{name: "stub"}

	a1 := newTestAdapter(t, Options{Plain: Path{Backend: b1}, Store: store, LangIn: "en", LangOut: "zh"})
	a2 := newTestAdapter(t, Options{Plain: Path{Backend: b2}, Store: store, LangIn: "en", LangOut: "zh"})

	_, err := a1.Translate(context.Background(), "Hello")
	require.NoError(t, err)
	_, err = a2.Translate(context.Background(), "Hello")
	require.NoError(t, err)

	assert.Equal(t, int32(1), b1.calls.Load())
	assert.Equal(t, int32(0), b2.calls.Load())
}

func TestForLanguagesUsesDistinctFingerprint(t *testing.T) {
	b := &countingBackend{name: "stub"}
	a := newTestAdapter(t, Options{Plain: Path{Backend: b}, LangIn: "en", LangOut: "zh"})

	_, err := a.Translate(context.Background(), "Hello")
	require.NoError(t, err)
	_, err = a.ForLanguages("en", "ja").Translate(context.Background(), "Hello")
	require.NoError(t, err)
	_, err = a.ForLanguages("en", "zh").Translate(context.Background(), "Hello")
	require.NoError(t, err)

	assert.Equal(t, int32(2), b.calls.Load())
}

func TestAdapterRetriesRetryableErrors(t *testing.T) {
	b := &countingBackend{name: "stub", errs: []error{
		&BackendError{Backend: "stub", StatusCode: 429, Retryable: true, Message: "rate limited"},
		&BackendError{Backend: "stub", StatusCode: 503, Retryable: true, Message: "unavailable"},
	}}
	a := newTestAdapter(t, Options{Plain: Path{Backend: b, Retry: fastRetry}})

	out, err := a.Translate(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "[translated] Hello", out)
	assert.Equal(t, int32(3), b.calls.Load())
}

func TestAdapterRetriesExhausted(t *testing.T) {
	retryable := &BackendError{Backend: "stub", Retryable: true, Message: "server error"}
	b := &countingBackend{name: "stub", errs: []error{retryable, retryable, retryable, retryable}}
	a := newTestAdapter(t, Options{Plain: Path{Backend: b, Retry: fastRetry}})

	_, err := a.Translate(context.Background(), "Hello")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrTranslationFailure))
	assert.Equal(t, int32(3), b.calls.Load())
}

func TestAdapterNonRetryablePropagatesImmediately(t *testing.T) {
	auth := &BackendError{Backend: "stub", StatusCode: 401, Message: "API authentication failed"}
	b := &countingBackend{name: "stub", errs: []error{auth}}
	llm := &countingBackend{name: "llm"}
	a := newTestAdapter(t, Options{
		Plain: Path{Backend: b, Retry: fastRetry},
		LLM:   &Path{Backend: llm, Retry: fastRetry},
	})

	_, err := a.Translate(context.Background(), "Hello")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrTranslationFailure))
	assert.ErrorIs(t, err, auth)
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Equal(t, int32(0), llm.calls.Load(), "auth failures must not fall back")
}

func TestAdapterFallsBackWhenPlainUnavailable(t *testing.T) {
	plain := &countingBackend{name: "plain", errs: []error{ErrPlainUnavailable}}
	llm := &countingBackend{name: "llm"}
	a := newTestAdapter(t, Options{
		Plain: Path{Backend: plain, Retry: fastRetry},
		LLM:   &Path{Backend: llm, Retry: fastRetry},
	})

	out, err := a.Translate(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "[translated] Hello", out)
	assert.Equal(t, int32(1), plain.calls.Load())
	assert.Equal(t, int32(1), llm.calls.Load())
	assert.True(t, a.LLMBacked())
	assert.Equal(t, "plain=plain;llm=llm", a.Identity())
}

func TestAdapterFallsBackAfterRetryableFailures(t *testing.T) {
	retryable := &BackendError{Backend: "plain", Retryable: true, Message: "timeout"}
	plain := &countingBackend{name: "plain", errs: []error{retryable, retryable, retryable}}
	llm := &countingBackend{name: "llm"}
	a := newTestAdapter(t, Options{
		Plain: Path{Backend: plain, Retry: fastRetry},
		LLM:   &Path{Backend: llm, Retry: fastRetry},
	})

	_, err := a.Translate(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, int32(3), plain.calls.Load())
	assert.Equal(t, int32(1), llm.calls.Load())
}

func TestAdapterUnavailableWithoutLLM(t *testing.T) {
	plain := &countingBackend{name: "plain", errs: []error{ErrPlainUnavailable}}
	a := newTestAdapter(t, Options{Plain: Path{Backend: plain, Retry: fastRetry}})

	_, err := a.Translate(context.Background(), "Hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlainUnavailable)
	assert.True(t, types.IsCode(err, types.ErrTranslationFailure))
}

func TestAdapterCallTimeoutIsRetried(t *testing.T) {
	b := &countingBackend{name: "slow", delay: 200 * time.Millisecond}
	a := newTestAdapter(t, Options{
		Plain:       Path{Backend: b, Retry: RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}},
		CallTimeout: 10 * time.Millisecond,
	})

	_, err := a.Translate(context.Background(), "Hello")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrTranslationFailure))
	assert.Equal(t, int32(2), b.calls.Load())
	assert.Equal(t, 10*time.Millisecond, a.CallTimeout())
}

func TestAdapterRateLimitSuspends(t *testing.T) {
	b := &countingBackend{name: "stub"}
	a := newTestAdapter(t, Options{Plain: Path{
		Backend:   b,
		RateLimit: RateLimit{RequestsPerSecond: 20, Burst: 1},
	}})

	start := time.Now()
	for _, text := range []string{"one", "two", "three"} {
		_, err := a.Translate(context.Background(), text)
		require.NoError(t, err)
	}
	// 第一次使用 burst，其后每次约 50ms
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, int32(3), b.calls.Load())
}

func TestAdapterRateLimitWaitTimeout(t *testing.T) {
	b := &countingBackend{name: "stub"}
	a := newTestAdapter(t, Options{Plain: Path{
		Backend:   b,
		RateLimit: RateLimit{RequestsPerSecond: 0.1, Burst: 1, WaitTimeout: 20 * time.Millisecond},
		Retry:     fastRetry,
	}})

	_, err := a.Translate(context.Background(), "first")
	require.NoError(t, err)

	_, err = a.Translate(context.Background(), "second")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrTranslationFailure))
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestAdapterTokenBudget(t *testing.T) {
	b := &countingBackend{name: "stub"}
	a := newTestAdapter(t, Options{Plain: Path{
		Backend:   b,
		RateLimit: RateLimit{TokensPerSecond: 1000, TokenBurst: 10},
	}})

	// 超过 burst 的请求按 burst 计费，不会永久阻塞
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	_, err := a.Translate(context.Background(), string(long))
	require.NoError(t, err)
}

func TestAdapterRequestCarriesPathRateLimit(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]Request{}
	record := func(name string) BackendFunc {
		return BackendFunc{ID: name, Fn: func(ctx context.Context, req Request) (string, error) {
			mu.Lock()
			seen[name] = req
			mu.Unlock()
			if name == "plain" {
				return "", ErrPlainUnavailable
			}
			return "ok", nil
		}}
	}
	plainLimit := RateLimit{RequestsPerSecond: 100, Burst: 5}
	llmLimit := RateLimit{TokensPerSecond: 5000, TokenBurst: 500, WaitTimeout: time.Second}
	a := newTestAdapter(t, Options{
		Plain:   Path{Backend: record("plain"), RateLimit: plainLimit, Retry: fastRetry},
		LLM:     &Path{Backend: record("llm"), RateLimit: llmLimit, Retry: fastRetry},
		LangIn:  "en",
		LangOut: "de",
	})

	_, err := a.Translate(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, Request{Text: "Hello", LangIn: "en", LangOut: "de", RateLimit: plainLimit}, seen["plain"])
	assert.Equal(t, Request{Text: "Hello", LangIn: "en", LangOut: "de", RateLimit: llmLimit}, seen["llm"])
}

func TestAdapterCallerContextCancelled(t *testing.T) {
	b := &countingBackend{name: "slow", delay: time.Second}
	a := newTestAdapter(t, Options{Plain: Path{Backend: b}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := a.Translate(ctx, "Hello")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestBackoff(t *testing.T) {
	p := RetryPolicy{}.withDefaults()
	assert.Equal(t, 2*time.Second, p.backoff(1))
	assert.Equal(t, 4*time.Second, p.backoff(2))
	assert.Equal(t, 8*time.Second, p.backoff(3))
	assert.Equal(t, 30*time.Second, p.backoff(5))
	assert.Equal(t, 30*time.Second, p.backoff(40))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable backend error", &BackendError{Retryable: true}, true},
		{"non-retryable backend error", &BackendError{StatusCode: 400}, false},
		{"plain unavailable", ErrPlainUnavailable, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"unknown", errors.New("something odd"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
