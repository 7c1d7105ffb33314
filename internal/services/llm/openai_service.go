package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/avencast/tutorbridge/internal/common"
	"github.com/avencast/tutorbridge/internal/interfaces"
)

// OpenAIService adapts the OpenAI chat completions API to the Provider
// interface. It talks to the REST API directly so the gateway keeps full
// control over SSE frame decoding and error envelope handling.
type OpenAIService struct {
	config    *common.OpenAIConfig
	kvStorage interfaces.KeyValueStorage
	logger    arbor.ILogger
	client    *http.Client
	limiter   *rate.Limiter
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// NewOpenAIService creates a new OpenAI adapter
func NewOpenAIService(config *common.OpenAIConfig, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) *OpenAIService {
	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &OpenAIService{
		config:    config,
		kvStorage: kvStorage,
		logger:    logger,
		client:    &http.Client{Timeout: timeout},
		limiter:   newRateLimiter(config.RateLimit),
	}
}

// GetProviderType returns the provider identifier
func (s *OpenAIService) GetProviderType() ProviderType {
	return ProviderOpenAI
}

func (s *OpenAIService) resolveKey(ctx context.Context) (string, error) {
	apiKey, err := common.ResolveAPIKey(ctx, s.kvStorage, "openai_api_key", s.config.APIKey)
	if err != nil {
		return "", NewConfigError(ProviderOpenAI, "OPENAI_API_KEY is not configured.")
	}
	return apiKey, nil
}

func (s *OpenAIService) buildRequest(request *ContentRequest, stream bool) *openAIChatRequest {
	model := request.Model
	if model == "" {
		model = s.config.Model
	}

	temperature := s.config.Temperature
	if request.Temperature != nil {
		temperature = *request.Temperature
	}

	messages := make([]openAIMessage, 0, len(request.Messages)+1)
	if request.SystemInstruction != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: request.SystemInstruction})
	}
	for _, msg := range request.Messages {
		role := msg.Role
		switch role {
		case "user", "assistant", "system":
		default:
			role = "user"
		}
		messages = append(messages, openAIMessage{Role: role, Content: msg.Content})
	}

	return &openAIChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   request.MaxTokens,
		Stream:      stream,
	}
}

func (s *OpenAIService) post(ctx context.Context, apiKey string, body *openAIChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, NewTransportError(ProviderOpenAI, err)
	}

	url := strings.TrimRight(s.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, NewTransportError(ProviderOpenAI, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, NewTransportError(ProviderOpenAI, err)
	}
	return resp, nil
}

// GenerateContent runs a single non-streaming completion
func (s *OpenAIService) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	apiKey, err := s.resolveKey(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, NewTransportError(ProviderOpenAI, err)
	}

	body := s.buildRequest(request, false)

	s.logger.Debug().
		Str("model", body.Model).
		Int("message_count", len(body.Messages)).
		Msg("OpenAI chat completion request")

	resp, err := s.post(ctx, apiKey, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewTransportError(ProviderOpenAI, err)
	}

	if resp.StatusCode != http.StatusOK {
		message := extractErrorMessage(data, "OpenAI request failed.")
		return nil, NewUpstreamError(ProviderOpenAI, resp.StatusCode, message)
	}

	var parsed openAIChatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, NewTransportError(ProviderOpenAI, err)
	}

	if len(parsed.Choices) == 0 {
		return nil, NewEmptyResponseError(ProviderOpenAI, "")
	}

	choice := parsed.Choices[0]
	text := choice.Message.Content
	if strings.TrimSpace(text) == "" {
		return nil, NewEmptyResponseError(ProviderOpenAI, choice.FinishReason)
	}

	return &ContentResponse{
		Text:     text,
		Provider: ProviderOpenAI,
		Model:    body.Model,
	}, nil
}

// StreamContent streams a completion, emitting delta fragments in order.
// SSE lines are decoded one at a time; a trailing partial line stays in the
// reader buffer until the next read completes it. Malformed data lines are
// skipped rather than failing the stream.
func (s *OpenAIService) StreamContent(ctx context.Context, request *ContentRequest, emit EmitFunc) error {
	apiKey, err := s.resolveKey(ctx)
	if err != nil {
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return NewTransportError(ProviderOpenAI, err)
	}

	body := s.buildRequest(request, true)

	s.logger.Debug().
		Str("model", body.Model).
		Int("message_count", len(body.Messages)).
		Msg("OpenAI streaming request")

	resp, err := s.post(ctx, apiKey, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return NewTransportError(ProviderOpenAI, readErr)
		}
		message := extractErrorMessage(data, "OpenAI request failed.")
		return NewUpstreamError(ProviderOpenAI, resp.StatusCode, message)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			if emitErr := s.handleStreamLine(line, emit); emitErr != nil {
				if emitErr == errStreamDone {
					return nil
				}
				return emitErr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return NewTransportError(ProviderOpenAI, err)
		}
	}
}

// errStreamDone signals the [DONE] sentinel internally
var errStreamDone = fmt.Errorf("stream done")

func (s *OpenAIService) handleStreamLine(line string, emit EmitFunc) error {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "data:") {
		return nil
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "[DONE]" {
		return errStreamDone
	}

	var chunk openAIStreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		// Partial or malformed chunk, skip it
		return nil
	}

	if len(chunk.Choices) == 0 {
		return nil
	}
	if content := chunk.Choices[0].Delta.Content; content != "" {
		return emit(content)
	}
	return nil
}

// ListModels returns the chat-capable models on the account
func (s *OpenAIService) ListModels(ctx context.Context) ([]interfaces.ModelInfo, error) {
	apiKey, err := s.resolveKey(ctx)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(s.config.BaseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewTransportError(ProviderOpenAI, err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, NewTransportError(ProviderOpenAI, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewTransportError(ProviderOpenAI, err)
	}

	if resp.StatusCode != http.StatusOK {
		message := extractErrorMessage(data, "OpenAI model list failed.")
		return nil, NewUpstreamError(ProviderOpenAI, resp.StatusCode, message)
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, NewTransportError(ProviderOpenAI, err)
	}

	models := make([]interfaces.ModelInfo, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		if strings.HasPrefix(m.ID, "gpt-") {
			models = append(models, interfaces.ModelInfo{ID: m.ID})
		}
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	return models, nil
}

// Close releases resources held by the adapter
func (s *OpenAIService) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
