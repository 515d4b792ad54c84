package ai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/myrjola/inkwell/internal/ai"
	"github.com/myrjola/inkwell/internal/config"
	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *ai.OpenAIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return ai.NewOpenAIClient(ai.OpenAIConfig{
		Provider:  config.ProviderOpenAI,
		APIKey:    "sk-test",
		BaseURL:   server.URL + "/v1",
		Model:     "test-model",
		Timeout:   5 * time.Second,
		MaxTokens: 100,
	}, testhelpers.NewLogger(io.Discard))
}

func TestOpenAIClient_Chat(t *testing.T) {
	t.Parallel()
	var gotRequest struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float32 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "model": "test-model",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "你好"}, "finish_reason": "length"}],
  "usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
}`)
	})

	temperature := float32(0.5)
	resp, err := client.Chat(context.Background(), []ai.Message{
		{Role: ai.RoleSystem, Content: "You are the Writer"},
		{Role: ai.RoleUser, Content: "写一段"},
	}, ai.Options{Temperature: &temperature, MaxOutput: 42, OnDelta: nil})
	require.NoError(t, err)

	require.Equal(t, "你好", resp.Content)
	require.Equal(t, ai.FinishReasonLength, resp.FinishReason, "truncation is reported, not hidden")
	require.Equal(t, ai.Usage{InputTokens: 12, OutputTokens: 3}, resp.Usage)

	require.Equal(t, "test-model", gotRequest.Model)
	require.Equal(t, 42, gotRequest.MaxTokens)
	require.InDelta(t, 0.5, gotRequest.Temperature, 0.0001)
	require.Len(t, gotRequest.Messages, 2)
	require.Equal(t, "system", gotRequest.Messages[0].Role)
}

func TestOpenAIClient_ChatErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		status        int
		wantRetryable bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, wantRetryable: true},
		{name: "server error", status: http.StatusBadGateway, wantRetryable: true},
		{name: "bad request", status: http.StatusBadRequest, wantRetryable: false},
		{name: "unauthorized", status: http.StatusUnauthorized, wantRetryable: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprintf(w, `{"error": {"message": "%s", "type": "test_error"}}`, tt.name)
			})

			_, err := client.Chat(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, ai.Options{})
			require.ErrorIs(t, err, errors.ErrProvider)
			var pe *ai.ProviderError
			require.ErrorAs(t, err, &pe)
			require.Equal(t, tt.status, pe.StatusCode)
			require.Equal(t, tt.wantRetryable, pe.Retryable)
		})
	}
}

func TestOpenAIClient_ChatTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	client := newTestClient(t, func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Chat(ctx, []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, ai.Options{})
	var pe *ai.ProviderError
	require.ErrorAs(t, err, &pe)
	require.True(t, pe.Retryable)
}

func TestOpenAIClient_ChatStream(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"雨", "夜", ""} {
			finish := "null"
			if chunk == "" {
				finish = `"stop"`
			}
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"model\":\"test-model\","+
				"\"choices\":[{\"index\":0,\"delta\":{\"content\":%q},\"finish_reason\":%s}]}\n\n", chunk, finish)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	var deltas []string
	resp, err := client.Chat(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, ai.Options{
		OnDelta: func(chunk string) { deltas = append(deltas, chunk) },
	})
	require.NoError(t, err)
	require.Equal(t, "雨夜", resp.Content)
	require.Equal(t, []string{"雨", "夜"}, deltas)
	require.Equal(t, "stop", resp.FinishReason)
}

func TestNew(t *testing.T) {
	t.Parallel()
	logger := testhelpers.NewLogger(io.Discard)

	generator, err := ai.New(config.LLMConfig{Provider: config.ProviderAuto}, logger)
	require.NoError(t, err)
	require.IsType(t, &ai.Mock{}, generator)

	generator, err = ai.New(config.LLMConfig{Provider: config.ProviderAuto, DeepSeekAPIKey: "sk"}, logger)
	require.NoError(t, err)
	require.IsType(t, &ai.OpenAIClient{}, generator)

	_, err = ai.New(config.LLMConfig{Provider: config.ProviderOpenAI}, logger)
	require.ErrorIs(t, err, errors.ErrValidation)
}

func TestMock_roleAwareOutput(t *testing.T) {
	t.Parallel()
	mock := ai.NewMock()
	prompt := "Chapter: ch03\nGoal: 找到纸条\nCharacters: 李明, 王芳\n"

	for role, want := range map[string]string{
		"Archivist":  "beats:",
		"Writer":     "canon_updates:",
		"Reviewer":   "verdict:",
		"Editor":     "雨声渐渐小了",
		"Summarizer": "brief_summary:",
	} {
		resp, err := mock.Chat(context.Background(), []ai.Message{
			{Role: ai.RoleSystem, Content: "You are the " + role + " of a novel writing team."},
			{Role: ai.RoleUser, Content: prompt},
		}, ai.Options{})
		require.NoError(t, err)
		require.Contains(t, resp.Content, want, role)
		require.Equal(t, "stop", resp.FinishReason)
	}

	var streamed strings.Builder
	resp, err := mock.Chat(context.Background(), []ai.Message{
		{Role: ai.RoleSystem, Content: "You are the Writer"},
		{Role: ai.RoleUser, Content: prompt},
	}, ai.Options{OnDelta: func(chunk string) { streamed.WriteString(chunk) }})
	require.NoError(t, err)
	require.Equal(t, resp.Content, streamed.String())
	require.Contains(t, resp.Content, "ch03-F01")
}
