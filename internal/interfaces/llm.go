package interfaces

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string `json:"role"`

	// Content contains the text content of the message
	Content string `json:"content"`
}

// TokenEvent is one event in the canonical token stream produced by any
// provider adapter. Exactly one terminal event is emitted per stream:
// either {done:true} after the last token, or {error, done:true}.
type TokenEvent struct {
	Token string `json:"token,omitempty"`
	Error string `json:"error,omitempty"`
	Done  bool   `json:"done,omitempty"`
}

// Terminal reports whether the event ends the stream
func (e TokenEvent) Terminal() bool {
	return e.Done
}

// ModelInfo describes one model offered by an upstream provider
type ModelInfo struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}
