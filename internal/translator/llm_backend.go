package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// LLMConfig holds the OpenAI-compatible model settings of the LLM path.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// LLMBackend 基于 eino ChatModel 的 LLM 翻译路径
type LLMBackend struct {
	name  string
	model model.BaseChatModel
}

// NewLLMBackend wraps an existing chat model.
func NewLLMBackend(name string, m model.BaseChatModel) *LLMBackend {
	return &LLMBackend{name: "llm:" + name, model: m}
}

// NewOpenAILLMBackend builds the chat model with eino-ext's OpenAI component.
func NewOpenAILLMBackend(ctx context.Context, cfg LLMConfig) (*LLMBackend, error) {
	chatModelConfig := &openai.ChatModelConfig{
		Model:  cfg.Model,
		APIKey: cfg.APIKey,
	}
	if cfg.BaseURL != "" {
		chatModelConfig.BaseURL = cfg.BaseURL
	}

	chatModel, err := openai.NewChatModel(ctx, chatModelConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewLLMBackend(cfg.Model, chatModel), nil
}

func (b *LLMBackend) Name() string {
	return b.name
}

func (b *LLMBackend) Translate(ctx context.Context, req Request) (string, error) {
	resp, err := b.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(buildSystemPrompt(req.LangIn, req.LangOut)),
		schema.UserMessage(buildUserPrompt(req.Text)),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", &BackendError{
			Backend:   b.name,
			Retryable: errors.Is(err, context.DeadlineExceeded) || looksTransient(err.Error()),
			Message:   "chat model call failed",
			Err:       err,
		}
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", &BackendError{Backend: b.name, Retryable: true, Message: "chat model returned empty content"}
	}
	return strings.TrimSpace(resp.Content), nil
}
