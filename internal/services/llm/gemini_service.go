package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/avencast/tutorbridge/internal/common"
	"github.com/avencast/tutorbridge/internal/interfaces"
)

const geminiModelsURL = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiService adapts the Google Gemini API to the Provider interface
type GeminiService struct {
	config    *common.GeminiConfig
	kvStorage interfaces.KeyValueStorage
	logger    arbor.ILogger
	limiter   *rate.Limiter

	mu     sync.Mutex
	client *genai.Client
	apiKey string
}

// NewGeminiService creates a new Gemini adapter. The genai client is built
// lazily on first use so key resolution can consult the KV store.
func NewGeminiService(config *common.GeminiConfig, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) *GeminiService {
	return &GeminiService{
		config:    config,
		kvStorage: kvStorage,
		logger:    logger,
		limiter:   newRateLimiter(config.RateLimit),
	}
}

// GetProviderType returns the provider identifier
func (s *GeminiService) GetProviderType() ProviderType {
	return ProviderGemini
}

func (s *GeminiService) getClient(ctx context.Context) (*genai.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, s.kvStorage, "gemini_api_key", s.config.APIKey)
	if err != nil {
		return nil, NewConfigError(ProviderGemini, "GEMINI_API_KEY is not configured.")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, NewTransportError(ProviderGemini, fmt.Errorf("failed to create Gemini client: %w", err))
	}

	s.client = client
	s.apiKey = apiKey
	return client, nil
}

// convertMessagesToGemini converts []interfaces.Message to Gemini Content
// format. System messages are pulled out and joined into one system
// instruction; assistant turns map to the model role, everything else to user.
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, string) {
	contents := make([]*genai.Content, 0, len(messages))
	var systemParts []string

	for _, msg := range messages {
		if msg.Role == "system" {
			systemParts = append(systemParts, msg.Content)
			continue
		}

		geminiRole := genai.RoleUser
		if msg.Role == "assistant" {
			geminiRole = genai.RoleModel
		}

		contents = append(contents, &genai.Content{
			Role:  geminiRole,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}

	return contents, strings.Join(systemParts, "\n\n")
}

func (s *GeminiService) buildConfig(request *ContentRequest) *genai.GenerateContentConfig {
	temperature := s.config.Temperature
	if request.Temperature != nil {
		temperature = *request.Temperature
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
	}
	if request.MaxTokens > 0 {
		config.MaxOutputTokens = int32(request.MaxTokens)
	}
	return config
}

func (s *GeminiService) prepare(request *ContentRequest) (string, []*genai.Content, *genai.GenerateContentConfig) {
	model := request.Model
	if model == "" {
		model = s.config.Model
	}

	contents, systemText := convertMessagesToGemini(request.Messages)
	if request.SystemInstruction != "" {
		if systemText != "" {
			systemText = systemText + "\n\n" + request.SystemInstruction
		} else {
			systemText = request.SystemInstruction
		}
	}

	config := s.buildConfig(request)
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	return model, contents, config
}

// GenerateContent runs a single non-streaming completion with rate limit
// retry
func (s *GeminiService) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, NewTransportError(ProviderGemini, err)
	}

	model, contents, config := s.prepare(request)

	s.logger.Debug().
		Str("model", model).
		Int("message_count", len(contents)).
		Msg("Gemini chat completion request")

	var resp *genai.GenerateContentResponse
	var apiErr error
	retryConfig := NewDefaultRetryConfig()

	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		resp, apiErr = client.Models.GenerateContent(ctx, model, contents, config)
		if apiErr == nil {
			break
		}

		if attempt == retryConfig.MaxRetries || !IsRateLimitError(apiErr) {
			break
		}

		apiDelay := ExtractRetryDelay(apiErr)
		backoff := retryConfig.CalculateBackoff(attempt, apiDelay)

		s.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Gemini API call")

		select {
		case <-ctx.Done():
			return nil, NewTransportError(ProviderGemini, ctx.Err())
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return nil, NewUpstreamError(ProviderGemini, 502, UserMessage(apiErr, "Gemini request failed."))
	}

	if resp == nil || len(resp.Candidates) == 0 {
		reason := ""
		if resp != nil && resp.PromptFeedback != nil {
			reason = string(resp.PromptFeedback.BlockReason)
		}
		return nil, NewEmptyResponseError(ProviderGemini, reason)
	}

	responseText := resp.Text()
	if responseText == "" {
		return nil, NewEmptyResponseError(ProviderGemini, string(resp.Candidates[0].FinishReason))
	}

	return &ContentResponse{
		Text:     responseText,
		Provider: ProviderGemini,
		Model:    model,
	}, nil
}

// StreamContent streams a completion, emitting text fragments in order
func (s *GeminiService) StreamContent(ctx context.Context, request *ContentRequest, emit EmitFunc) error {
	client, err := s.getClient(ctx)
	if err != nil {
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return NewTransportError(ProviderGemini, err)
	}

	model, contents, config := s.prepare(request)

	s.logger.Debug().
		Str("model", model).
		Int("message_count", len(contents)).
		Msg("Gemini streaming request")

	for resp, err := range client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			return NewUpstreamError(ProviderGemini, 502, UserMessage(err, "Gemini request failed."))
		}
		if resp == nil {
			continue
		}
		if text := resp.Text(); text != "" {
			if emitErr := emit(text); emitErr != nil {
				return emitErr
			}
		}
	}

	return nil
}

// ListModels returns Gemini models that support content generation.
// The SDK is bypassed here: the REST models endpoint carries the
// supportedGenerationMethods field the filter needs.
func (s *GeminiService) ListModels(ctx context.Context) ([]interfaces.ModelInfo, error) {
	apiKey, err := common.ResolveAPIKey(ctx, s.kvStorage, "gemini_api_key", s.config.APIKey)
	if err != nil {
		return nil, NewConfigError(ProviderGemini, "GEMINI_API_KEY is not configured.")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, geminiModelsURL+"?key="+apiKey, nil)
	if err != nil {
		return nil, NewTransportError(ProviderGemini, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, NewTransportError(ProviderGemini, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewTransportError(ProviderGemini, err)
	}

	if resp.StatusCode != http.StatusOK {
		message := extractErrorMessage(data, "Gemini model list failed.")
		return nil, NewUpstreamError(ProviderGemini, resp.StatusCode, message)
	}

	var parsed struct {
		Models []struct {
			Name                       string   `json:"name"`
			DisplayName                string   `json:"displayName"`
			SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
		} `json:"models"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, NewTransportError(ProviderGemini, err)
	}

	models := make([]interfaces.ModelInfo, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		supported := false
		for _, method := range m.SupportedGenerationMethods {
			if method == "generateContent" {
				supported = true
				break
			}
		}
		if !supported {
			continue
		}
		models = append(models, interfaces.ModelInfo{
			ID:    strings.TrimPrefix(m.Name, "models/"),
			Label: m.DisplayName,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	return models, nil
}

// Close releases the cached client
func (s *GeminiService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	s.apiKey = ""
	return nil
}
