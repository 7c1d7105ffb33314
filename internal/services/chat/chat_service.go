package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/common"
	"github.com/avencast/tutorbridge/internal/interfaces"
	"github.com/avencast/tutorbridge/internal/models"
	"github.com/avencast/tutorbridge/internal/services/llm"
	"github.com/avencast/tutorbridge/internal/services/retrieval"
)

// ProviderSource resolves provider adapters and model routing. Satisfied by
// llm.ProviderFactory.
type ProviderSource interface {
	GetProvider(providerType llm.ProviderType) (llm.Provider, error)
	DetectProvider(model string) llm.ProviderType
	NormalizeModel(model string) string
	GetDefaultModel(provider llm.ProviderType) string
}

// Service is the gateway orchestrator. It resolves a provider, grounds the
// prompt with retrieved passages, runs the completion (streaming with a
// one-shot unary fallback), and records history on a best-effort basis.
type Service struct {
	factory    ProviderSource
	aggregator *llm.Aggregator
	engine     *retrieval.Engine
	documents  interfaces.DocumentStorage
	history    interfaces.HistoryStorage
	llmConfig  *common.LLMConfig
	retrieval  *common.RetrievalConfig
	logger     arbor.ILogger
}

// Compile-time assertion
var _ interfaces.ChatService = (*Service)(nil)

// NewService creates the gateway orchestrator
func NewService(
	factory ProviderSource,
	engine *retrieval.Engine,
	storage interfaces.StorageManager,
	config *common.Config,
	logger arbor.ILogger,
) *Service {
	return &Service{
		factory:    factory,
		aggregator: llm.NewAggregator(logger),
		engine:     engine,
		documents:  storage.DocumentStorage(),
		history:    storage.HistoryStorage(),
		llmConfig:  &config.LLM,
		retrieval:  &config.Retrieval,
		logger:     logger,
	}
}

// plan is a fully resolved request ready to hand to a provider adapter
type plan struct {
	provider  llm.ProviderType
	adapter   llm.Provider
	request   *llm.ContentRequest
	citations []interfaces.Citation
	model     string
	prompt    string
}

// prepare resolves routing, runs retrieval, and assembles the provider
// request. An explicit provider override wins; an explicit model implies its
// provider; otherwise the prompt heuristic decides.
func (s *Service) prepare(ctx context.Context, req *interfaces.ChatRequest) (*plan, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages are required")
	}

	prompt := lastUserPrompt(req.Messages)
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("at least one user message is required")
	}

	language := req.ResponseLanguage
	if language == "" {
		language = s.llmConfig.DefaultLanguage
	}

	var provider llm.ProviderType
	switch {
	case req.Provider != "":
		if !llm.IsKnownProvider(req.Provider) {
			return nil, fmt.Errorf("unknown provider: %s", req.Provider)
		}
		provider = llm.ProviderType(strings.ToLower(req.Provider))
	case req.Model != "":
		provider = s.factory.DetectProvider(req.Model)
	default:
		selection := llm.SelectProvider(prompt, language, s.llmConfig.DefaultLanguage)
		provider = selection.Provider
		s.logger.Debug().
			Str("provider", string(provider)).
			Str("class", string(selection.Class)).
			Msg("Provider selected from prompt")
	}

	adapter, err := s.factory.GetProvider(provider)
	if err != nil {
		return nil, err
	}

	model := s.factory.NormalizeModel(req.Model)
	if model == "" {
		model = s.factory.GetDefaultModel(provider)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.retrieval.TopK
	}

	docs, err := s.documents.ListDocuments(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load context documents, answering without retrieval")
		docs = nil
	}
	bundle := s.engine.BuildBundle(prompt, docs, topK)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.llmConfig.MaxTokens
	}

	// Retrieval context goes in as a trailing system instruction and the
	// language directive goes last so it cannot be overridden.
	system := bundle.ContextBlock + "\n\n" + languageDirective(language)

	return &plan{
		provider: provider,
		adapter:  adapter,
		request: &llm.ContentRequest{
			Messages:          req.Messages,
			Model:             model,
			Temperature:       req.Temperature,
			MaxTokens:         maxTokens,
			SystemInstruction: system,
		},
		citations: bundle.Citations,
		model:     model,
		prompt:    prompt,
	}, nil
}

// recordTurn persists a history turn, swallowing storage failures
func (s *Service) recordTurn(ctx context.Context, role, content, provider, model string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	turn := &models.ChatTurn{
		ID:       common.NewTurnID(),
		Role:     role,
		Content:  content,
		Provider: provider,
		Model:    model,
	}
	if err := s.history.AppendTurn(ctx, turn); err != nil {
		s.logger.Warn().Err(err).Str("role", role).Msg("Failed to record chat turn")
	}
}

// Chat runs a single non-streaming completion
func (s *Service) Chat(ctx context.Context, req *interfaces.ChatRequest) (*interfaces.ChatResult, error) {
	p, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	s.recordTurn(ctx, "user", p.prompt, "", "")

	resp, err := p.adapter.GenerateContent(ctx, p.request)
	if err != nil {
		return nil, err
	}

	s.recordTurn(ctx, "assistant", resp.Text, string(p.provider), p.model)

	return &interfaces.ChatResult{
		Answer:    resp.Text,
		Provider:  string(p.provider),
		Model:     p.model,
		Citations: p.citations,
	}, nil
}

// StreamChat runs a streaming completion. Once at least one token has been
// delivered the stream outcome is final: a mid-stream failure finalizes the
// delivered tokens with an error terminal. A stream that produced no tokens
// is retried exactly once through the unary path with an identical payload.
func (s *Service) StreamChat(ctx context.Context, req *interfaces.ChatRequest) (*interfaces.ChatStream, error) {
	p, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	s.recordTurn(ctx, "user", p.prompt, "", "")

	out := make(chan interfaces.TokenEvent, 32)

	go func() {
		defer close(out)

		var answer strings.Builder
		tokens := 0
		failed := false

		handle := s.aggregator.Run(ctx, p.adapter, p.request)
		for event := range handle.Events {
			if event.Token != "" {
				tokens++
				answer.WriteString(event.Token)
			}

			if event.Done && tokens == 0 {
				// Nothing was delivered, the unary fallback owns the outcome
				failed = true
				break
			}

			select {
			case out <- event:
			case <-ctx.Done():
				return
			}

			if event.Done {
				if event.Error != "" {
					s.logger.Warn().
						Str("provider", string(p.provider)).
						Int("tokens", tokens).
						Str("error", event.Error).
						Msg("Stream failed after delivering tokens, finalizing partial answer")
				}
				s.recordTurn(ctx, "assistant", answer.String(), string(p.provider), p.model)
				return
			}
		}

		if !failed && tokens > 0 {
			// Channel closed without a terminal event (cancellation)
			s.recordTurn(ctx, "assistant", answer.String(), string(p.provider), p.model)
			return
		}

		// Zero tokens delivered: one unary retry with the identical payload
		s.logger.Info().
			Str("provider", string(p.provider)).
			Str("model", p.model).
			Msg("Stream produced no tokens, retrying once via unary request")

		resp, unaryErr := p.adapter.GenerateContent(ctx, p.request)
		if unaryErr != nil {
			terminal := interfaces.TokenEvent{
				Error: llm.UserMessage(unaryErr, "Request failed."),
				Done:  true,
			}
			select {
			case out <- terminal:
			case <-ctx.Done():
			}
			return
		}

		select {
		case out <- interfaces.TokenEvent{Token: resp.Text}:
		case <-ctx.Done():
			return
		}
		select {
		case out <- interfaces.TokenEvent{Done: true}:
		case <-ctx.Done():
			return
		}

		s.recordTurn(ctx, "assistant", resp.Text, string(p.provider), p.model)
	}()

	return &interfaces.ChatStream{
		Events:    out,
		Provider:  string(p.provider),
		Model:     p.model,
		Citations: p.citations,
	}, nil
}

// History returns the most recent turns, oldest first
func (s *Service) History(ctx context.Context, limit int) ([]*models.ChatTurn, error) {
	if limit <= 0 {
		limit = s.llmConfig.HistoryLimit
	}
	return s.history.ListRecent(ctx, limit)
}
