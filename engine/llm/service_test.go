package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newFakeOpenAIServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]any{
				"prompt_tokens":     12,
				"completion_tokens": 4,
				"total_tokens":      16,
			},
		})
	}))
}

func TestService_Chat(t *testing.T) {
	srv := newFakeOpenAIServer(t, `{"ok":true}`)
	defer srv.Close()

	svc, err := NewService(&Config{
		Provider: "openai",
		Model:    "test-model",
		APIKey:   "sk-test",
		BaseURL:  srv.URL,
		Timeout:  5,
	})
	require.NoError(t, err)

	content, stats, err := svc.Chat(context.Background(), []Message{
		SystemPrompt("you are a planner"),
		UserMessage("decompose: build a widget"),
	})
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, content)
	require.NotNil(t, stats)
	require.Equal(t, 16, stats.TotalTokens)
}

func TestService_Chat_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-empty",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{},
		})
	}))
	defer srv.Close()

	svc, err := NewService(&Config{Provider: "openai", Model: "test-model", APIKey: "sk-test", BaseURL: srv.URL, Timeout: 5})
	require.NoError(t, err)

	_, _, err = svc.Chat(context.Background(), []Message{UserMessage("hi")})
	require.Error(t, err)
}
