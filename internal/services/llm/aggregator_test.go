package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/interfaces"
)

// fakeProvider implements Provider with scripted streaming behavior
type fakeProvider struct {
	providerType ProviderType
	streamFunc   func(ctx context.Context, request *ContentRequest, emit EmitFunc) error
	generateFunc func(ctx context.Context, request *ContentRequest) (*ContentResponse, error)
}

func (f *fakeProvider) GetProviderType() ProviderType {
	if f.providerType == "" {
		return ProviderOpenAI
	}
	return f.providerType
}

func (f *fakeProvider) GenerateContent(ctx context.Context, request *ContentRequest) (*ContentResponse, error) {
	if f.generateFunc != nil {
		return f.generateFunc(ctx, request)
	}
	return &ContentResponse{Text: "ok"}, nil
}

func (f *fakeProvider) StreamContent(ctx context.Context, request *ContentRequest, emit EmitFunc) error {
	if f.streamFunc != nil {
		return f.streamFunc(ctx, request, emit)
	}
	return nil
}

func (f *fakeProvider) ListModels(ctx context.Context) ([]interfaces.ModelInfo, error) {
	return nil, nil
}

func (f *fakeProvider) Close() error { return nil }

func collectEvents(t *testing.T, handle *StreamHandle) []interfaces.TokenEvent {
	t.Helper()

	var events []interfaces.TokenEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-handle.Events:
			if !ok {
				return events
			}
			events = append(events, event)
		case <-timeout:
			t.Fatal("timed out waiting for stream events")
		}
	}
}

func TestAggregator_CleanStream(t *testing.T) {
	provider := &fakeProvider{
		streamFunc: func(ctx context.Context, request *ContentRequest, emit EmitFunc) error {
			for _, token := range []string{"The ", "answer ", "is ", "42."} {
				if err := emit(token); err != nil {
					return err
				}
			}
			return nil
		},
	}

	aggregator := NewAggregator(arbor.NewLogger())
	handle := aggregator.Run(context.Background(), provider, &ContentRequest{})

	events := collectEvents(t, handle)
	require.Len(t, events, 5)

	// Tokens arrive in upstream order
	assert.Equal(t, "The ", events[0].Token)
	assert.Equal(t, "answer ", events[1].Token)
	assert.Equal(t, "is ", events[2].Token)
	assert.Equal(t, "42.", events[3].Token)

	// Exactly one terminal event, last
	terminal := events[4]
	assert.True(t, terminal.Done)
	assert.Empty(t, terminal.Error)
	for _, event := range events[:4] {
		assert.False(t, event.Done)
	}

	assert.Equal(t, StreamClosed, handle.State())
	assert.Equal(t, 4, handle.TokenCount())
}

func TestAggregator_ErrorAfterTokens(t *testing.T) {
	provider := &fakeProvider{
		providerType: ProviderClaude,
		streamFunc: func(ctx context.Context, request *ContentRequest, emit EmitFunc) error {
			if err := emit("partial"); err != nil {
				return err
			}
			return NewUpstreamError(ProviderClaude, 500, "upstream exploded")
		},
	}

	aggregator := NewAggregator(arbor.NewLogger())
	handle := aggregator.Run(context.Background(), provider, &ContentRequest{})

	events := collectEvents(t, handle)
	require.Len(t, events, 2)

	assert.Equal(t, "partial", events[0].Token)

	terminal := events[1]
	assert.True(t, terminal.Done)
	assert.Equal(t, "upstream exploded", terminal.Error)

	assert.Equal(t, 1, handle.TokenCount())
}

func TestAggregator_ImmediateError(t *testing.T) {
	provider := &fakeProvider{
		streamFunc: func(ctx context.Context, request *ContentRequest, emit EmitFunc) error {
			return NewConfigError(ProviderOpenAI, "OpenAI API key not configured")
		},
	}

	aggregator := NewAggregator(arbor.NewLogger())
	handle := aggregator.Run(context.Background(), provider, &ContentRequest{})

	events := collectEvents(t, handle)
	require.Len(t, events, 1)
	assert.True(t, events[0].Done)
	assert.Equal(t, "OpenAI API key not configured", events[0].Error)
	assert.Equal(t, 0, handle.TokenCount())
}

func TestAggregator_EmptyCleanStream(t *testing.T) {
	provider := &fakeProvider{}

	aggregator := NewAggregator(arbor.NewLogger())
	handle := aggregator.Run(context.Background(), provider, &ContentRequest{})

	events := collectEvents(t, handle)
	require.Len(t, events, 1)
	assert.True(t, events[0].Done)
	assert.Empty(t, events[0].Error)
}

func TestAggregator_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	provider := &fakeProvider{
		streamFunc: func(ctx context.Context, request *ContentRequest, emit EmitFunc) error {
			if err := emit("first"); err != nil {
				return err
			}
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	}

	aggregator := NewAggregator(arbor.NewLogger())
	handle := aggregator.Run(ctx, provider, &ContentRequest{})

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never started")
	}
	cancel()

	// The channel always closes, even when cancellation swallows the
	// terminal event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-handle.Events:
			if !ok {
				assert.Equal(t, StreamClosed, handle.State())
				return
			}
		case <-timeout:
			t.Fatal("channel never closed after cancellation")
		}
	}
}
