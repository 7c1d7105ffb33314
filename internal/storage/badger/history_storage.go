package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/interfaces"
	"github.com/avencast/tutorbridge/internal/models"
)

// HistoryStorage implements the HistoryStorage interface for Badger
type HistoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewHistoryStorage creates a new HistoryStorage instance
func NewHistoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.HistoryStorage {
	return &HistoryStorage{
		db:     db,
		logger: logger,
	}
}

func (s *HistoryStorage) AppendTurn(ctx context.Context, turn *models.ChatTurn) error {
	if turn.ID == "" {
		return fmt.Errorf("turn ID is required")
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	if err := s.db.Store().Insert(turn.ID, turn); err != nil {
		return fmt.Errorf("failed to append chat turn: %w", err)
	}
	return nil
}

func (s *HistoryStorage) ListRecent(ctx context.Context, limit int) ([]*models.ChatTurn, error) {
	var turns []models.ChatTurn
	if err := s.db.Store().Find(&turns, nil); err != nil {
		return nil, fmt.Errorf("failed to list chat turns: %w", err)
	}

	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].CreatedAt.Before(turns[j].CreatedAt)
	})

	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	result := make([]*models.ChatTurn, len(turns))
	for i := range turns {
		result[i] = &turns[i]
	}
	return result, nil
}

func (s *HistoryStorage) CountTurns(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.ChatTurn{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count chat turns: %w", err)
	}
	return int(count), nil
}
