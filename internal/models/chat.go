package models

import (
	"time"
)

// ChatTurn is one persisted message in the conversation history
type ChatTurn struct {
	ID      string `json:"id"` // turn_{uuid}
	Role    string `json:"role"`
	Content string `json:"content"`

	// Provider and Model record the routing decision for assistant turns
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	CreatedAt time.Time `json:"created_at" badgerhold:"index"`
}
