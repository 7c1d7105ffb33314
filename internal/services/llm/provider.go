package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/avencast/tutorbridge/internal/common"
	"github.com/avencast/tutorbridge/internal/interfaces"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderOpenAI uses the OpenAI chat completions API
	ProviderOpenAI ProviderType = "openai"
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

// KnownProviders lists every provider the gateway can route to
var KnownProviders = []ProviderType{ProviderOpenAI, ProviderGemini, ProviderClaude}

// IsKnownProvider reports whether name identifies a routable provider
func IsKnownProvider(name string) bool {
	for _, p := range KnownProviders {
		if string(p) == strings.ToLower(strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// ContentRequest represents a provider-agnostic content generation request
type ContentRequest struct {
	Messages          []interfaces.Message
	Model             string
	Temperature       *float64
	MaxTokens         int
	SystemInstruction string
}

// ContentResponse represents a provider-agnostic content generation response
type ContentResponse struct {
	Text     string
	Provider ProviderType
	Model    string
}

// EmitFunc receives one text fragment from a streaming adapter. Returning an
// error aborts the stream.
type EmitFunc func(token string) error

// Provider defines the interface for AI content generation. Adapters
// normalize each upstream API onto this shape.
type Provider interface {
	GetProviderType() ProviderType

	// GenerateContent runs a single non-streaming completion
	GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error)

	// StreamContent emits text fragments in arrival order. A nil return
	// means the upstream stream finished cleanly.
	StreamContent(ctx context.Context, request *ContentRequest, emit EmitFunc) error

	// ListModels returns the models this provider currently offers
	ListModels(ctx context.Context) ([]interfaces.ModelInfo, error)

	Close() error
}

// ProviderFactory creates and manages AI providers
type ProviderFactory struct {
	openaiConfig *common.OpenAIConfig
	geminiConfig *common.GeminiConfig
	claudeConfig *common.ClaudeConfig
	llmConfig    *common.LLMConfig
	kvStorage    interfaces.KeyValueStorage
	logger       arbor.ILogger

	mu        sync.Mutex
	providers map[ProviderType]Provider
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(
	config *common.Config,
	kvStorage interfaces.KeyValueStorage,
	logger arbor.ILogger,
) *ProviderFactory {
	return &ProviderFactory{
		openaiConfig: &config.OpenAI,
		geminiConfig: &config.Gemini,
		claudeConfig: &config.Claude,
		llmConfig:    &config.LLM,
		kvStorage:    kvStorage,
		logger:       logger,
		providers:    make(map[ProviderType]Provider),
	}
}

// DefaultProvider returns the configured fallback provider
func (f *ProviderFactory) DefaultProvider() ProviderType {
	if IsKnownProvider(f.llmConfig.DefaultProvider) {
		return ProviderType(strings.ToLower(f.llmConfig.DefaultProvider))
	}
	return ProviderOpenAI
}

// DetectProvider determines the provider type from a model string.
// Model strings can be:
// - "claude-3-5-haiku-latest" -> Claude
// - "claude/claude-3-5-haiku-latest" -> Claude (with prefix)
// - "gemini-2.5-flash" -> Gemini
// - "gpt-4o-mini" or "o4-mini" -> OpenAI
// - Empty string -> uses default provider from config
func (f *ProviderFactory) DetectProvider(model string) ProviderType {
	if model == "" {
		return f.DefaultProvider()
	}

	model = strings.ToLower(model)

	// Check for explicit provider prefix
	if strings.HasPrefix(model, "claude/") || strings.HasPrefix(model, "anthropic/") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini/") || strings.HasPrefix(model, "google/") {
		return ProviderGemini
	}
	if strings.HasPrefix(model, "openai/") {
		return ProviderOpenAI
	}

	// Check for model name patterns
	if strings.HasPrefix(model, "claude-") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini-") {
		return ProviderGemini
	}
	if strings.HasPrefix(model, "gpt-") || strings.HasPrefix(model, "o1") ||
		strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") {
		return ProviderOpenAI
	}

	return f.DefaultProvider()
}

// NormalizeModel removes provider prefix from model name if present
func (f *ProviderFactory) NormalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/", "openai/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// GetDefaultModel returns the default model for a provider
func (f *ProviderFactory) GetDefaultModel(provider ProviderType) string {
	switch provider {
	case ProviderClaude:
		return f.claudeConfig.Model
	case ProviderGemini:
		return f.geminiConfig.Model
	default:
		return f.openaiConfig.Model
	}
}

// GetProvider returns an adapter for the given provider type, creating and
// caching it on first use
func (f *ProviderFactory) GetProvider(provider ProviderType) (Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.providers[provider]; ok {
		return p, nil
	}

	var p Provider
	switch provider {
	case ProviderOpenAI:
		p = NewOpenAIService(f.openaiConfig, f.kvStorage, f.logger)
	case ProviderGemini:
		p = NewGeminiService(f.geminiConfig, f.kvStorage, f.logger)
	case ProviderClaude:
		p = NewClaudeService(f.claudeConfig, f.kvStorage, f.logger)
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	f.providers[provider] = p
	return p, nil
}

// Close releases every cached adapter
func (f *ProviderFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for name, p := range f.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s provider: %w", name, err)
		}
		delete(f.providers, name)
	}
	return firstErr
}

// newRateLimiter builds a limiter from a minimum-interval duration string.
// An unparsable or empty interval disables limiting.
func newRateLimiter(interval string) *rate.Limiter {
	d, err := time.ParseDuration(interval)
	if err != nil || d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}
