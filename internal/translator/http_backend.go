package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pdf-translator/internal/logger"
)

// DefaultHTTPTimeout is the HTTP client timeout of HTTPBackend.
const DefaultHTTPTimeout = 180 * time.Second

// HTTPBackendConfig holds configuration options for creating an HTTPBackend
type HTTPBackendConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// HTTPBackend 普通翻译路径：直接调用 OpenAI 兼容的 chat/completions 接口
type HTTPBackend struct {
	apiKey string
	apiURL string
	model  string
	client *http.Client
}

func NewHTTPBackend(cfg HTTPBackendConfig) *HTTPBackend {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPBackend{
		apiKey: cfg.APIKey,
		apiURL: normalizeAPIURL(cfg.BaseURL),
		model:  cfg.Model,
		client: client,
	}
}

func (b *HTTPBackend) Name() string {
	return "http:" + b.model
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Translate calls the chat/completions endpoint once.
func (b *HTTPBackend) Translate(ctx context.Context, req Request) (string, error) {
	if b.apiKey == "" {
		return "", ErrPlainUnavailable
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model: b.model,
		Messages: []chatMessage{
			{Role: "system", Content: buildSystemPrompt(req.LangIn, req.LangOut)},
			{Role: "user", Content: buildUserPrompt(req.Text)},
		},
		Temperature: 0, // 同一输入尽量得到同一输出
	})
	if err != nil {
		return "", &BackendError{Backend: b.Name(), Message: "failed to marshal request body", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", &BackendError{Backend: b.Name(), Message: "failed to create HTTP request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	logger.Debug("calling translation API", logger.String("model", b.model), logger.Int("textLen", len(req.Text)))

	resp, err := b.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", &BackendError{Backend: b.Name(), Retryable: true, Message: "API request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &BackendError{Backend: b.Name(), Retryable: true, Message: "failed to read API response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", b.handleHTTPError(resp.StatusCode, respBody)
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", &BackendError{Backend: b.Name(), Message: "failed to parse API response", Err: err}
	}
	if chatResp.Error != nil {
		return "", &BackendError{Backend: b.Name(), Message: "API returned error: " + chatResp.Error.Message}
	}
	if len(chatResp.Choices) == 0 {
		return "", &BackendError{Backend: b.Name(), Retryable: true, Message: "API returned no choices"}
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// handleHTTPError maps a non-200 status to a BackendError.
func (b *HTTPBackend) handleHTTPError(statusCode int, body []byte) error {
	var errResp struct {
		Error apiError `json:"error"`
	}
	details := ""
	if err := json.Unmarshal(body, &errResp); err == nil {
		details = errResp.Error.Message
	}

	be := &BackendError{Backend: b.Name(), StatusCode: statusCode}
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		be.Message = "API authentication failed"
	case statusCode == http.StatusBadRequest:
		be.Message = "invalid API request"
	case statusCode == http.StatusNotFound || statusCode == http.StatusNotImplemented:
		be.Message = "translation endpoint not available"
		be.Err = ErrPlainUnavailable
	case statusCode == http.StatusTooManyRequests:
		be.Message = "API rate limit exceeded"
		be.Retryable = true
	case statusCode == http.StatusRequestTimeout || statusCode >= 500:
		be.Message = "API server error"
		be.Retryable = true
	default:
		be.Message = "API request failed"
	}
	if details != "" {
		be.Message += ": " + details
	}
	return be
}

// normalizeAPIURL ensures the API URL ends with /chat/completions
func normalizeAPIURL(url string) string {
	if url == "" {
		return "https://api.openai.com/v1/chat/completions"
	}
	url = strings.TrimSuffix(url, "/")
	if strings.HasSuffix(url, "/chat/completions") {
		return url
	}
	return fmt.Sprintf("%s/chat/completions", url)
}
