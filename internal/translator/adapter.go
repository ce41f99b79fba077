package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"pdf-translator/internal/cache"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

const (
	// DefaultCallTimeout bounds a single backend call.
	DefaultCallTimeout = 60 * time.Second
	// DefaultMaxAttempts is the default attempt count per path.
	DefaultMaxAttempts = 3
	// BaseRetryDelay is the first backoff delay; it doubles per attempt.
	BaseRetryDelay = 2 * time.Second
	// MaxRetryDelay caps the backoff delay.
	MaxRetryDelay = 30 * time.Second
)

// RateLimit 限流参数，零值表示不限流。
// 预算耗尽时调用会挂起等待；WaitTimeout > 0 时等待超时则失败。
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
	// TokensPerSecond limits estimated tokens (about 4 characters each).
	TokensPerSecond float64
	TokenBurst      int
	WaitTimeout     time.Duration
}

// RetryPolicy 重试策略
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = BaseRetryDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = MaxRetryDelay
	}
	return p
}

// backoff returns BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if attempt > 30 {
		return p.MaxDelay
	}
	delay := p.BaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	return delay
}

// Path is one backend with its own rate-limit and retry policy.
type Path struct {
	Backend   Backend
	RateLimit RateLimit
	Retry     RetryPolicy
}

// Options configures an Adapter.
type Options struct {
	Plain Path
	// LLM 为 nil 表示该翻译器不支持 LLM 路径
	LLM *Path

	LangIn  string
	LangOut string

	// CallTimeout bounds each backend call. Default DefaultCallTimeout.
	CallTimeout time.Duration

	// IgnoreCache disables cache reads and writes for this instance.
	// Concurrent identical requests are still collapsed.
	IgnoreCache bool
	// Store 缓存后端，默认内存
	Store cache.Store

	// Extra option bits that change the output and so take part in the
	// cache fingerprint.
	Extra map[string]string
}

type path struct {
	backend  Backend
	requests *rate.Limiter
	tokens   *rate.Limiter
	limit    RateLimit
	retry    RetryPolicy
}

func newPath(p Path) *path {
	out := &path{backend: p.Backend, limit: p.RateLimit, retry: p.Retry.withDefaults()}
	if p.RateLimit.RequestsPerSecond > 0 {
		burst := p.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		out.requests = rate.NewLimiter(rate.Limit(p.RateLimit.RequestsPerSecond), burst)
	}
	if p.RateLimit.TokensPerSecond > 0 {
		burst := p.RateLimit.TokenBurst
		if burst <= 0 {
			burst = int(p.RateLimit.TokensPerSecond)
			if burst < 1 {
				burst = 1
			}
		}
		out.tokens = rate.NewLimiter(rate.Limit(p.RateLimit.TokensPerSecond), burst)
	}
	return out
}

// shared is the state common to an Adapter and its language views.
type shared struct {
	cache       *cache.Cache
	plain       *path
	llm         *path
	callTimeout time.Duration
	identity    string
	extra       map[string]string
}

// Adapter 在后端之上实现：指纹缓存 -> single-flight -> 限流 -> 普通路径 -> LLM 降级 -> 重试。
type Adapter struct {
	*shared
	langIn  string
	langOut string
}

// New builds an Adapter. Plain.Backend is required.
func New(opts Options) (*Adapter, error) {
	if opts.Plain.Backend == nil {
		return nil, errors.New("translator: plain backend is required")
	}

	store := opts.Store
	if opts.IgnoreCache {
		store = cache.NopStore{}
	}

	s := &shared{
		cache:       cache.New(store),
		plain:       newPath(opts.Plain),
		callTimeout: opts.CallTimeout,
		extra:       make(map[string]string, len(opts.Extra)),
	}
	if s.callTimeout <= 0 {
		s.callTimeout = DefaultCallTimeout
	}
	for k, v := range opts.Extra {
		s.extra[k] = v
	}

	identity := "plain=" + opts.Plain.Backend.Name()
	if opts.LLM != nil && opts.LLM.Backend != nil {
		s.llm = newPath(*opts.LLM)
		identity += ";llm=" + opts.LLM.Backend.Name()
	}
	s.identity = identity

	return &Adapter{shared: s, langIn: opts.LangIn, langOut: opts.LangOut}, nil
}

// ForLanguages returns a view bound to another language pair that shares
// this Adapter's cache, limiters and backends.
func (a *Adapter) ForLanguages(langIn, langOut string) Translator {
	return &Adapter{shared: a.shared, langIn: langIn, langOut: langOut}
}

// Identity is the translator identity used in cache fingerprints.
func (a *Adapter) Identity() string {
	return a.identity
}

// CallTimeout returns the per-call backend timeout.
func (a *Adapter) CallTimeout() time.Duration {
	return a.callTimeout
}

// LLMBacked reports whether an LLM path is configured.
func (a *Adapter) LLMBacked() bool {
	return a.llm != nil
}

// CacheStats returns the cache counters.
func (a *Adapter) CacheStats() cache.Stats {
	return a.cache.Stats()
}

// Translate translates text. Blank text is returned unchanged without a
// backend call. Errors are TranslationFailure AppErrors, or ctx.Err() when
// the caller's context ended.
func (a *Adapter) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	key := cache.Fingerprint(text, a.langIn, a.langOut, a.identity, a.extra)
	req := Request{Text: text, LangIn: a.langIn, LangOut: a.langOut}

	out, _, err := a.cache.Do(ctx, key, func(ctx context.Context) (string, error) {
		return a.dispatch(ctx, req)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", err
	}
	return out, nil
}

// dispatch runs the plain path and falls back to the LLM path when the plain
// path is unavailable or its retryable failures are exhausted.
func (a *Adapter) dispatch(ctx context.Context, req Request) (string, error) {
	out, err := a.plain.run(ctx, req, a.callTimeout)
	if err == nil {
		return out, nil
	}

	if a.llm != nil && (errors.Is(err, ErrPlainUnavailable) || IsRetryable(err)) {
		logger.Warn("plain translation failed, falling back to LLM path",
			logger.String("backend", a.plain.backend.Name()),
			logger.String("llm", a.llm.backend.Name()),
			logger.Err(err))
		out, err = a.llm.run(ctx, req, a.callTimeout)
		if err == nil {
			return out, nil
		}
	}

	return "", translationFailure(err)
}

func (p *path) run(ctx context.Context, req Request, callTimeout time.Duration) (string, error) {
	req.RateLimit = p.limit
	var lastErr error
	for attempt := 1; attempt <= p.retry.MaxAttempts; attempt++ {
		if err := p.wait(ctx, req.Text); err != nil {
			return "", err
		}

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		out, err := p.backend.Translate(callCtx, req)
		timedOut := callCtx.Err() == context.DeadlineExceeded
		cancel()
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if timedOut {
			err = &BackendError{Backend: p.backend.Name(), Retryable: true, Message: "call timed out", Err: err}
		}

		lastErr = err
		if !IsRetryable(err) {
			logger.Debug("non-retryable translation error",
				logger.String("backend", p.backend.Name()), logger.Err(err))
			return "", err
		}

		logger.Warn("translation attempt failed",
			logger.String("backend", p.backend.Name()),
			logger.Int("attempt", attempt),
			logger.Int("maxAttempts", p.retry.MaxAttempts),
			logger.Err(err))

		if attempt < p.retry.MaxAttempts {
			delay := p.retry.backoff(attempt)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return "", lastErr
}

// wait blocks until the path's rate-limit budget admits the request.
func (p *path) wait(ctx context.Context, text string) error {
	if p.requests == nil && p.tokens == nil {
		return nil
	}

	waitCtx := ctx
	if p.limit.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.limit.WaitTimeout)
		defer cancel()
	}

	if p.requests != nil {
		if err := p.requests.Wait(waitCtx); err != nil {
			return rateLimitError(ctx, p, err)
		}
	}
	if p.tokens != nil {
		n := estimateTokens(text)
		if burst := p.tokens.Burst(); n > burst {
			n = burst
		}
		if err := p.tokens.WaitN(waitCtx, n); err != nil {
			return rateLimitError(ctx, p, err)
		}
	}
	return nil
}

func rateLimitError(ctx context.Context, p *path, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return types.NewAppErrorWithDetails(types.ErrTranslationFailure, "rate limit budget not available",
		fmt.Sprintf("%s: waited longer than %s", p.backend.Name(), p.limit.WaitTimeout), err)
}

func estimateTokens(text string) int {
	return utf8.RuneCountInString(text)/4 + 1
}

func translationFailure(err error) error {
	if err == nil || types.CodeOf(err) != "" {
		return err
	}
	return types.NewAppError(types.ErrTranslationFailure, "translation failed", err)
}
