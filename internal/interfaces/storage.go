package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/avencast/tutorbridge/internal/models"
)

// ErrKeyNotFound is returned when a key is not found in the key/value store
var ErrKeyNotFound = errors.New("key not found")

// ErrDocumentNotFound is returned when a context document does not exist
var ErrDocumentNotFound = errors.New("document not found")

// KeyValuePair represents a single key/value pair with metadata
type KeyValuePair struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KeyValueStorage defines operations for generic key/value storage (API keys
// and other secrets loaded from disk or set at runtime)
type KeyValueStorage interface {
	// Get retrieves a value by key, returns ErrKeyNotFound if missing
	Get(ctx context.Context, key string) (string, error)

	// Set inserts or updates a key/value pair with optional description
	Set(ctx context.Context, key string, value string, description string) error

	// Delete removes a key/value pair, returns ErrKeyNotFound if missing
	Delete(ctx context.Context, key string) error

	// List returns all key/value pairs ordered by updated_at DESC
	List(ctx context.Context) ([]KeyValuePair, error)

	// GetAll returns all key/value pairs as a map
	GetAll(ctx context.Context) (map[string]string, error)
}

// DocumentStorage - interface for context document persistence
type DocumentStorage interface {
	StoreDocument(ctx context.Context, doc *models.ContextDocument) error
	GetDocument(ctx context.Context, id string) (*models.ContextDocument, error)

	// GetByChecksum finds a document with identical title and content,
	// returns nil without error when no duplicate exists
	GetByChecksum(ctx context.Context, checksum string) (*models.ContextDocument, error)

	// ListDocuments returns all documents in insertion order (oldest first)
	ListDocuments(ctx context.Context) ([]*models.ContextDocument, error)

	DeleteDocument(ctx context.Context, id string) error

	// DeleteUploadedBefore removes uploaded documents created before the
	// cutoff, returning how many were deleted. Manual documents are kept.
	DeleteUploadedBefore(ctx context.Context, cutoff time.Time) (int, error)

	CountDocuments(ctx context.Context) (int, error)
}

// HistoryStorage - interface for chat turn persistence
type HistoryStorage interface {
	AppendTurn(ctx context.Context, turn *models.ChatTurn) error

	// ListRecent returns up to limit turns, oldest first
	ListRecent(ctx context.Context, limit int) ([]*models.ChatTurn, error)

	CountTurns(ctx context.Context) (int, error)
}

// StorageManager - interface for managing all storage components
type StorageManager interface {
	DocumentStorage() DocumentStorage
	HistoryStorage() HistoryStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
