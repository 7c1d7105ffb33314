package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/avencast/tutorbridge/internal/common"
	"github.com/avencast/tutorbridge/internal/interfaces"
)

// ClaudeService adapts the Anthropic Claude API to the Provider interface
type ClaudeService struct {
	config    *common.ClaudeConfig
	kvStorage interfaces.KeyValueStorage
	logger    arbor.ILogger
	limiter   *rate.Limiter

	mu     sync.Mutex
	client anthropic.Client
	apiKey string
}

// NewClaudeService creates a new Claude adapter. The SDK client is built
// lazily on first use so key resolution can consult the KV store.
func NewClaudeService(config *common.ClaudeConfig, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) *ClaudeService {
	return &ClaudeService{
		config:    config,
		kvStorage: kvStorage,
		logger:    logger,
		limiter:   newRateLimiter(config.RateLimit),
	}
}

// GetProviderType returns the provider identifier
func (s *ClaudeService) GetProviderType() ProviderType {
	return ProviderClaude
}

func (s *ClaudeService) getClient(ctx context.Context) (anthropic.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.apiKey != "" {
		return s.client, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, s.kvStorage, "anthropic_api_key", s.config.APIKey)
	if err != nil {
		return anthropic.Client{}, NewConfigError(ProviderClaude, "ANTHROPIC_API_KEY is not configured.")
	}

	s.client = anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	s.apiKey = apiKey
	return s.client, nil
}

// convertMessagesToClaude converts []interfaces.Message to Claude
// MessageParam format. System messages are pulled out and joined into one
// system text block; unknown roles default to user.
func convertMessagesToClaude(messages []interfaces.Message) ([]anthropic.MessageParam, string) {
	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemParts []string

	for _, msg := range messages {
		if msg.Role == "system" {
			systemParts = append(systemParts, msg.Content)
			continue
		}

		switch msg.Role {
		case "assistant":
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	return claudeMessages, strings.Join(systemParts, "\n\n")
}

func (s *ClaudeService) buildParams(request *ContentRequest) anthropic.MessageNewParams {
	model := request.Model
	if model == "" {
		model = s.config.Model
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.config.MaxTokens
	}

	claudeMessages, systemText := convertMessagesToClaude(request.Messages)
	if request.SystemInstruction != "" {
		if systemText != "" {
			systemText = systemText + "\n\n" + request.SystemInstruction
		} else {
			systemText = request.SystemInstruction
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  claudeMessages,
	}

	temperature := s.config.Temperature
	if request.Temperature != nil {
		temperature = *request.Temperature
	}
	params.Temperature = anthropic.Float(temperature)

	if systemText != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemText},
		}
	}

	return params
}

// GenerateContent runs a single non-streaming completion
func (s *ClaudeService) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, NewTransportError(ProviderClaude, err)
	}

	params := s.buildParams(request)

	s.logger.Debug().
		Str("model", string(params.Model)).
		Int("message_count", len(params.Messages)).
		Msg("Claude chat completion request")

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, NewUpstreamError(ProviderClaude, 502, UserMessage(err, "Claude request failed."))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if strings.TrimSpace(text.String()) == "" {
		return nil, NewEmptyResponseError(ProviderClaude, string(resp.StopReason))
	}

	return &ContentResponse{
		Text:     text.String(),
		Provider: ProviderClaude,
		Model:    string(params.Model),
	}, nil
}

// StreamContent streams a completion, emitting text deltas in order
func (s *ClaudeService) StreamContent(ctx context.Context, request *ContentRequest, emit EmitFunc) error {
	client, err := s.getClient(ctx)
	if err != nil {
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return NewTransportError(ProviderClaude, err)
	}

	params := s.buildParams(request)

	s.logger.Debug().
		Str("model", string(params.Model)).
		Int("message_count", len(params.Messages)).
		Msg("Claude streaming request")

	stream := client.Messages.NewStreaming(ctx, params)
	for stream.Next() {
		event := stream.Current()
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if deltaVariant.Text != "" {
					if emitErr := emit(deltaVariant.Text); emitErr != nil {
						return emitErr
					}
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return NewUpstreamError(ProviderClaude, 502, UserMessage(err, "Claude request failed."))
	}

	return nil
}

// ListModels returns the models on the Anthropic account
func (s *ClaudeService) ListModels(ctx context.Context) ([]interfaces.ModelInfo, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}

	page, err := client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, NewUpstreamError(ProviderClaude, 502, UserMessage(err, "Claude model list failed."))
	}

	models := make([]interfaces.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, interfaces.ModelInfo{
			ID:    string(m.ID),
			Label: m.DisplayName,
		})
	}

	return models, nil
}

// Close releases the cached client
func (s *ClaudeService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = anthropic.Client{}
	s.apiKey = ""
	return nil
}
