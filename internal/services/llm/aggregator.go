package llm

import (
	"context"
	"sync/atomic"

	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/interfaces"
)

// StreamState tracks an aggregated stream through its lifecycle
type StreamState int32

const (
	StreamIdle StreamState = iota
	StreamStreaming
	StreamCompleted
	StreamErrored
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "idle"
	case StreamStreaming:
		return "streaming"
	case StreamCompleted:
		return "completed"
	case StreamErrored:
		return "errored"
	case StreamClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// aggregatorBuffer bounds the event channel so a slow consumer applies
// backpressure to the upstream read instead of growing memory
const aggregatorBuffer = 32

// StreamHandle is the consumer side of an aggregated stream. Events carries
// tokens in upstream order followed by exactly one terminal event, then
// closes.
type StreamHandle struct {
	Events <-chan interfaces.TokenEvent

	state  *atomic.Int32
	tokens *atomic.Int64
}

// State reports where the stream currently is in its lifecycle
func (h *StreamHandle) State() StreamState {
	return StreamState(h.state.Load())
}

// TokenCount reports how many token events have been emitted so far
func (h *StreamHandle) TokenCount() int {
	return int(h.tokens.Load())
}

// Aggregator converts a provider adapter's push-style stream into the
// canonical event channel. Every failure mode converges to one terminal
// event: a clean finish yields {done}, anything else yields {error, done}.
type Aggregator struct {
	logger arbor.ILogger
}

// NewAggregator creates a stream aggregator
func NewAggregator(logger arbor.ILogger) *Aggregator {
	return &Aggregator{logger: logger}
}

// Run starts the provider stream and returns a handle for consuming it.
// Cancelling ctx aborts the upstream read; the channel still closes.
func (a *Aggregator) Run(ctx context.Context, provider Provider, request *ContentRequest) *StreamHandle {
	events := make(chan interfaces.TokenEvent, aggregatorBuffer)

	var state atomic.Int32
	var tokens atomic.Int64
	state.Store(int32(StreamIdle))

	handle := &StreamHandle{
		Events: events,
		state:  &state,
		tokens: &tokens,
	}

	go func() {
		defer func() {
			state.Store(int32(StreamClosed))
			close(events)
		}()

		state.Store(int32(StreamStreaming))

		err := provider.StreamContent(ctx, request, func(token string) error {
			select {
			case events <- interfaces.TokenEvent{Token: token}:
				tokens.Add(1)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})

		if err != nil {
			state.Store(int32(StreamErrored))
			a.logger.Warn().
				Err(err).
				Str("provider", string(provider.GetProviderType())).
				Int("tokens", int(tokens.Load())).
				Msg("Stream aggregation ended with error")

			terminal := interfaces.TokenEvent{
				Error: UserMessage(err, "Streaming failed."),
				Done:  true,
			}
			select {
			case events <- terminal:
			case <-ctx.Done():
			}
			return
		}

		state.Store(int32(StreamCompleted))
		select {
		case events <- interfaces.TokenEvent{Done: true}:
		case <-ctx.Done():
		}
	}()

	return handle
}
