package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/common"
	"github.com/avencast/tutorbridge/internal/interfaces"
)

func newTestOpenAIService(baseURL string) *OpenAIService {
	return NewOpenAIService(&common.OpenAIConfig{
		APIKey:      "test-key",
		Model:       "gpt-4o-mini",
		BaseURL:     baseURL,
		Timeout:     "5s",
		Temperature: 0.7,
	}, nil, arbor.NewLogger())
}

func TestOpenAIService_GenerateContent(t *testing.T) {
	t.Setenv("TUTORBRIDGE_OPENAI_API_KEY", "test-key")

	var captured openAIChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "Paris is the capital."}, "finish_reason": "stop"},
			},
		})
	}))
	defer server.Close()

	service := newTestOpenAIService(server.URL)
	resp, err := service.GenerateContent(context.Background(), &ContentRequest{
		Messages:          []interfaces.Message{{Role: "user", Content: "Capital of France?"}},
		SystemInstruction: "Answer briefly.",
	})

	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital.", resp.Text)
	assert.Equal(t, ProviderOpenAI, resp.Provider)

	// System instruction is prepended as the first message
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "Answer briefly.", captured.Messages[0].Content)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.False(t, captured.Stream)
}

func TestOpenAIService_GenerateContent_ErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "Incorrect API key provided"},
		})
	}))
	defer server.Close()

	service := newTestOpenAIService(server.URL)
	_, err := service.GenerateContent(context.Background(), &ContentRequest{
		Messages: []interfaces.Message{{Role: "user", Content: "hi"}},
	})

	require.Error(t, err)
	perr, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, KindUpstream, perr.Kind)
	assert.Equal(t, http.StatusUnauthorized, perr.Status)
	assert.Equal(t, "Incorrect API key provided", perr.Message)
}

func TestOpenAIService_GenerateContent_MalformedErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "not json at all")
	}))
	defer server.Close()

	service := newTestOpenAIService(server.URL)
	_, err := service.GenerateContent(context.Background(), &ContentRequest{
		Messages: []interfaces.Message{{Role: "user", Content: "hi"}},
	})

	require.Error(t, err)
	perr, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "OpenAI request failed.", perr.Message)
}

func TestOpenAIService_GenerateContent_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer server.Close()

	service := newTestOpenAIService(server.URL)
	_, err := service.GenerateContent(context.Background(), &ContentRequest{
		Messages: []interfaces.Message{{Role: "user", Content: "hi"}},
	})

	require.Error(t, err)
	perr, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, KindEmptyResponse, perr.Kind)
}

func TestOpenAIService_StreamContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			`data: {garbled json`,
			`data: {"choices":[{"delta":{"content":" world"}}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			`data: [DONE]`,
		}
		for _, frame := range frames {
			fmt.Fprintf(w, "%s\n\n", frame)
		}
	}))
	defer server.Close()

	service := newTestOpenAIService(server.URL)

	var tokens []string
	err := service.StreamContent(context.Background(), &ContentRequest{
		Messages: []interfaces.Message{{Role: "user", Content: "hi"}},
	}, func(token string) error {
		tokens = append(tokens, token)
		return nil
	})

	require.NoError(t, err)
	// Malformed frame and empty delta are skipped, not fatal
	assert.Equal(t, []string{"Hel", "lo", " world"}, tokens)
}

func TestOpenAIService_StreamContent_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "Rate limit reached"},
		})
	}))
	defer server.Close()

	service := newTestOpenAIService(server.URL)
	err := service.StreamContent(context.Background(), &ContentRequest{
		Messages: []interfaces.Message{{Role: "user", Content: "hi"}},
	}, func(token string) error { return nil })

	require.Error(t, err)
	perr, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, perr.Status)
	assert.Equal(t, "Rate limit reached", perr.Message)
}

func TestOpenAIService_StreamContent_EOFWithoutSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
		// Connection ends without [DONE]
	}))
	defer server.Close()

	service := newTestOpenAIService(server.URL)

	var tokens []string
	err := service.StreamContent(context.Background(), &ContentRequest{
		Messages: []interfaces.Message{{Role: "user", Content: "hi"}},
	}, func(token string) error {
		tokens = append(tokens, token)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"partial"}, tokens)
}

func TestOpenAIService_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{
				{"id": "gpt-4o-mini"},
				{"id": "whisper-1"},
				{"id": "gpt-4o"},
				{"id": "dall-e-3"},
			},
		})
	}))
	defer server.Close()

	service := newTestOpenAIService(server.URL)
	models, err := service.ListModels(context.Background())

	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "gpt-4o", models[0].ID)
	assert.Equal(t, "gpt-4o-mini", models[1].ID)
}

func TestOpenAIService_RoleSanitization(t *testing.T) {
	service := newTestOpenAIService("http://unused")
	body := service.buildRequest(&ContentRequest{
		Messages: []interfaces.Message{
			{Role: "tool", Content: "weird role"},
			{Role: "assistant", Content: "kept"},
		},
	}, false)

	require.Len(t, body.Messages, 2)
	assert.Equal(t, "user", body.Messages[0].Role)
	assert.Equal(t, "assistant", body.Messages[1].Role)
	assert.Equal(t, "gpt-4o-mini", body.Model)
}
