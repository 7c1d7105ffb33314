package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/common"
	"github.com/avencast/tutorbridge/internal/models"
)

func seedTurns(t *testing.T, db *BadgerDB, count int) {
	t.Helper()

	storage := NewHistoryStorage(db, arbor.NewLogger())
	base := time.Now().Add(-time.Hour)
	for i := 0; i < count; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		turn := &models.ChatTurn{
			ID:        common.NewTurnID(),
			Role:      role,
			Content:   fmt.Sprintf("turn %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, storage.AppendTurn(context.Background(), turn))
	}
}

func TestHistoryStorage_AppendAndList(t *testing.T) {
	db := newTestDB(t)
	storage := NewHistoryStorage(db, arbor.NewLogger())
	ctx := context.Background()

	seedTurns(t, db, 6)

	turns, err := storage.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, turns, 6)
	assert.Equal(t, "turn 0", turns[0].Content, "oldest turn comes first")
	assert.Equal(t, "turn 5", turns[5].Content)

	count, err := storage.CountTurns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestHistoryStorage_TailLimit(t *testing.T) {
	db := newTestDB(t)
	storage := NewHistoryStorage(db, arbor.NewLogger())

	seedTurns(t, db, 6)

	turns, err := storage.ListRecent(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, turns, 4)

	// Limit keeps the newest turns but preserves oldest-first order
	assert.Equal(t, "turn 2", turns[0].Content)
	assert.Equal(t, "turn 5", turns[3].Content)
}

func TestHistoryStorage_RequiresID(t *testing.T) {
	db := newTestDB(t)
	storage := NewHistoryStorage(db, arbor.NewLogger())

	err := storage.AppendTurn(context.Background(), &models.ChatTurn{Role: "user", Content: "no id"})
	assert.Error(t, err)
}

func TestHistoryStorage_SetsCreatedAt(t *testing.T) {
	db := newTestDB(t)
	storage := NewHistoryStorage(db, arbor.NewLogger())
	ctx := context.Background()

	turn := &models.ChatTurn{ID: common.NewTurnID(), Role: "user", Content: "hello"}
	require.NoError(t, storage.AppendTurn(ctx, turn))
	assert.False(t, turn.CreatedAt.IsZero())
}
