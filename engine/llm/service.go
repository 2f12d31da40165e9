// Package llm provides a minimal OpenAI-compatible chat client shared by
// the planner's decomposer and the illustrative LLM-backed task handlers.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Message represents a single chat turn.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// CallStats carries token usage and timing for a single Chat call.
type CallStats struct {
	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalTokens      int   `json:"total_tokens"`
	DurationMs       int64 `json:"duration_ms"`
}

// Service is the chat-completion interface consumed by the planner and
// the reference handlers. It deliberately exposes only synchronous,
// non-tool-calling chat: neither the planner's decomposition call nor
// the illustrative handlers need streaming or function calling.
type Service interface {
	Chat(ctx context.Context, messages []Message) (string, *CallStats, error)
}

// Config configures the underlying OpenAI-compatible client.
type Config struct {
	Provider    string // deepseek, openai, siliconflow, ollama, zai, ...
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Timeout     int // seconds, default 120
}

type service struct {
	client      *openai.Client
	model       string
	provider    string
	maxTokens   int
	temperature float32
	timeout     int
}

var providerDefaultBaseURL = map[string]string{
	"deepseek":    "https://api.deepseek.com",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"zai":         "https://open.bigmodel.cn/api/paas/v4",
	"dashscope":   "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"openrouter":  "https://openrouter.ai/api/v1",
	"ollama":      "http://localhost:11434",
}

// NewService builds a Service for the given provider configuration.
func NewService(cfg *Config) (Service, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = newHTTPClient()

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = providerDefaultBaseURL[cfg.Provider]
	}
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if cfg.Provider == "" || (baseURL == "" && cfg.Provider != "openai") {
		slog.Info("llm: using generic OpenAI-compatible provider", "provider", cfg.Provider)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120
	}

	return &service{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		provider:    cfg.Provider,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
	}, nil
}

func (s *service) Chat(ctx context.Context, messages []Message) (string, *CallStats, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout)*time.Second)
	defer cancel()

	slog.Debug("llm: chat request", "model", s.model, "messages_count", len(messages))

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Messages:    convertMessages(messages),
	})
	if err != nil {
		return "", nil, fmt.Errorf("llm chat failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("empty response from llm")
	}

	duration := time.Since(start)
	stats := &CallStats{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		DurationMs:       duration.Milliseconds(),
	}

	slog.Debug("llm: chat response", "total_tokens", stats.TotalTokens, "duration_ms", stats.DurationMs)
	return resp.Choices[0].Message.Content, stats, nil
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// SystemPrompt builds a system-role message.
func SystemPrompt(content string) Message { return Message{Role: "system", Content: content} }

// UserMessage builds a user-role message.
func UserMessage(content string) Message { return Message{Role: "user", Content: content} }
