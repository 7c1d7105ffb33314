package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/avencast/tutorbridge/internal/interfaces"
	"github.com/avencast/tutorbridge/internal/models"
)

// DocumentStorage implements the DocumentStorage interface for Badger
type DocumentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDocumentStorage creates a new DocumentStorage instance
func NewDocumentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DocumentStorage {
	return &DocumentStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DocumentStorage) StoreDocument(ctx context.Context, doc *models.ContextDocument) error {
	if doc.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	if doc.Checksum == "" {
		doc.Checksum = models.DocumentChecksum(doc.Title, doc.Content)
	}

	if err := s.db.Store().Upsert(doc.ID, doc); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	return nil
}

func (s *DocumentStorage) GetDocument(ctx context.Context, id string) (*models.ContextDocument, error) {
	var doc models.ContextDocument
	if err := s.db.Store().Get(id, &doc); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (s *DocumentStorage) GetByChecksum(ctx context.Context, checksum string) (*models.ContextDocument, error) {
	var docs []models.ContextDocument
	err := s.db.Store().Find(&docs, badgerhold.Where("Checksum").Eq(checksum).Index("Checksum"))
	if err != nil {
		return nil, fmt.Errorf("failed to find document by checksum: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return &docs[0], nil
}

func (s *DocumentStorage) ListDocuments(ctx context.Context) ([]*models.ContextDocument, error) {
	var docs []models.ContextDocument
	if err := s.db.Store().Find(&docs, nil); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	// Insertion order matters to the retrieval fallback
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})

	result := make([]*models.ContextDocument, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}

func (s *DocumentStorage) DeleteDocument(ctx context.Context, id string) error {
	err := s.db.Store().Delete(id, &models.ContextDocument{})
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrDocumentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (s *DocumentStorage) DeleteUploadedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var docs []models.ContextDocument
	query := badgerhold.Where("Source").Eq(models.DocumentSourceUpload).
		And("CreatedAt").Lt(cutoff)
	if err := s.db.Store().Find(&docs, query); err != nil {
		return 0, fmt.Errorf("failed to find expired documents: %w", err)
	}

	deleted := 0
	for i := range docs {
		if err := s.db.Store().Delete(docs[i].ID, &models.ContextDocument{}); err != nil {
			s.logger.Warn().Err(err).Str("id", docs[i].ID).Msg("Failed to delete expired document")
			continue
		}
		deleted++
	}
	return deleted, nil
}

func (s *DocumentStorage) CountDocuments(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.ContextDocument{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return int(count), nil
}
