package common

import (
	"github.com/google/uuid"
)

// NewDocumentID generates a unique context document ID with the "doc_" prefix
// Format: doc_<uuid>
func NewDocumentID() string {
	return "doc_" + uuid.New().String()
}

// NewTurnID generates a unique chat turn ID with the "turn_" prefix
// Format: turn_<uuid>
func NewTurnID() string {
	return "turn_" + uuid.New().String()
}
