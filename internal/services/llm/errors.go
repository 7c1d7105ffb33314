package llm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind classifies gateway failures so callers can decide between
// surfacing, retrying, or treating the request as misconfigured.
type ErrorKind string

const (
	// KindConfig indicates a missing API key or bad provider configuration
	KindConfig ErrorKind = "configuration"
	// KindUpstream indicates the provider rejected or failed the request
	KindUpstream ErrorKind = "upstream_request"
	// KindEmptyResponse indicates the provider answered with no content
	KindEmptyResponse ErrorKind = "upstream_empty_response"
	// KindTransport indicates a network or decode failure mid-exchange
	KindTransport ErrorKind = "transport"
)

// ProviderError is the typed error every adapter returns
type ProviderError struct {
	Provider ProviderType
	Kind     ErrorKind
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// NewConfigError reports a provider that cannot be used as configured
func NewConfigError(provider ProviderType, message string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindConfig, Status: 400, Message: message}
}

// NewUpstreamError reports a failed upstream request
func NewUpstreamError(provider ProviderType, status int, message string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindUpstream, Status: status, Message: message}
}

// NewEmptyResponseError reports a response that carried no usable text.
// The reason (finish or block reason) is folded into the message.
func NewEmptyResponseError(provider ProviderType, reason string) *ProviderError {
	message := "Provider returned an empty response."
	if reason != "" {
		message = fmt.Sprintf("Provider returned an empty response (%s).", reason)
	}
	return &ProviderError{Provider: provider, Kind: KindEmptyResponse, Status: 502, Message: message}
}

// NewTransportError reports a network or decode failure
func NewTransportError(provider ProviderType, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindTransport, Status: 502, Message: err.Error()}
}

// AsProviderError unwraps a ProviderError from an error chain
func AsProviderError(err error) (*ProviderError, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// UserMessage extracts the client-facing message from any gateway error
func UserMessage(err error, fallback string) string {
	if perr, ok := AsProviderError(err); ok && perr.Message != "" {
		return perr.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}

// extractErrorMessage pulls error.message out of a provider error body,
// returning the fallback when the envelope is absent or malformed
func extractErrorMessage(body []byte, fallback string) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fallback
	}
	if envelope.Error.Message == "" {
		return fallback
	}
	return envelope.Error.Message
}
