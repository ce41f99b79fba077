// Package translator 提供翻译能力：普通（HTTP）与 LLM 两条后端路径，
// 以及在其之上做缓存、限流、重试与降级的 Adapter。
package translator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Translator is the capability the pipeline consumes.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Request is a single backend translation call.
type Request struct {
	Text    string
	LangIn  string
	LangOut string
	// RateLimit is the budget of the path making the call, for backends
	// that forward it to their provider.
	RateLimit RateLimit
}

// Backend is one concrete translation path.
type Backend interface {
	// Name identifies the backend in cache fingerprints and logs.
	Name() string
	Translate(ctx context.Context, req Request) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc struct {
	ID string
	Fn func(ctx context.Context, req Request) (string, error)
}

func (f BackendFunc) Name() string {
	if f.ID == "" {
		return "func"
	}
	return f.ID
}

func (f BackendFunc) Translate(ctx context.Context, req Request) (string, error) {
	return f.Fn(ctx, req)
}

// ErrPlainUnavailable is returned by a plain backend that cannot serve
// requests at all; the Adapter then switches to the LLM path directly.
var ErrPlainUnavailable = errors.New("plain translation path unavailable")

// BackendError 后端调用错误，Retryable 决定是否重试
type BackendError struct {
	Backend    string
	StatusCode int
	Retryable  bool
	Message    string
	Err        error
}

func (e *BackendError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Backend)
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.StatusCode != 0 {
		sb.WriteString(fmt.Sprintf(" (status %d)", e.StatusCode))
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsRetryable determines if an error should trigger a retry.
// Retryable: rate limits (429), server errors (5xx), timeouts, network errors.
// Non-retryable: authentication failures, invalid requests, unavailability.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPlainUnavailable) || errors.Is(err, context.Canceled) {
		return false
	}

	var be *BackendError
	if errors.As(err, &be) {
		return be.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return looksTransient(err.Error())
}

// looksTransient matches error text from clients that do not expose typed errors.
func looksTransient(msg string) bool {
	msg = strings.ToLower(msg)
	for _, s := range []string{"rate limit", "too many requests", "timeout", "connection", "network", "eof", "reset by peer", "status 5", "server error", "overloaded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
