package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/avencast/tutorbridge/internal/common"
	"github.com/avencast/tutorbridge/internal/interfaces"
	"github.com/avencast/tutorbridge/internal/models"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	tmpDir := t.TempDir()
	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store, logger: arbor.NewLogger()}
}

func TestDocumentStorage_StoreAndGet(t *testing.T) {
	db := newTestDB(t)
	storage := NewDocumentStorage(db, arbor.NewLogger())
	ctx := context.Background()

	doc := &models.ContextDocument{
		ID:      common.NewDocumentID(),
		Source:  models.DocumentSourceManual,
		Title:   "Newton's Laws",
		Content: "Force equals mass times acceleration.",
	}
	require.NoError(t, storage.StoreDocument(ctx, doc))

	assert.False(t, doc.CreatedAt.IsZero(), "StoreDocument should set CreatedAt")
	assert.False(t, doc.UpdatedAt.IsZero(), "StoreDocument should set UpdatedAt")
	assert.NotEmpty(t, doc.Checksum, "StoreDocument should fill in the checksum")

	got, err := storage.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Content, got.Content)
	assert.Equal(t, doc.Checksum, got.Checksum)
}

func TestDocumentStorage_RequiresID(t *testing.T) {
	db := newTestDB(t)
	storage := NewDocumentStorage(db, arbor.NewLogger())

	err := storage.StoreDocument(context.Background(), &models.ContextDocument{Title: "no id"})
	assert.Error(t, err)
}

func TestDocumentStorage_GetByChecksum(t *testing.T) {
	db := newTestDB(t)
	storage := NewDocumentStorage(db, arbor.NewLogger())
	ctx := context.Background()

	doc := &models.ContextDocument{
		ID:      common.NewDocumentID(),
		Source:  models.DocumentSourceManual,
		Title:   "Photosynthesis",
		Content: "Plants convert light into chemical energy.",
	}
	require.NoError(t, storage.StoreDocument(ctx, doc))

	found, err := storage.GetByChecksum(ctx, doc.Checksum)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, doc.ID, found.ID)

	missing, err := storage.GetByChecksum(ctx, "no-such-checksum")
	require.NoError(t, err)
	assert.Nil(t, missing, "unknown checksum should return nil without error")
}

func TestDocumentStorage_ListOrder(t *testing.T) {
	db := newTestDB(t)
	storage := NewDocumentStorage(db, arbor.NewLogger())
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, title := range []string{"first", "second", "third"} {
		doc := &models.ContextDocument{
			ID:        common.NewDocumentID(),
			Source:    models.DocumentSourceManual,
			Title:     title,
			Content:   "content " + title,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, storage.StoreDocument(ctx, doc))
	}

	docs, err := storage.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "first", docs[0].Title)
	assert.Equal(t, "second", docs[1].Title)
	assert.Equal(t, "third", docs[2].Title)
}

func TestDocumentStorage_Delete(t *testing.T) {
	db := newTestDB(t)
	storage := NewDocumentStorage(db, arbor.NewLogger())
	ctx := context.Background()

	doc := &models.ContextDocument{
		ID:      common.NewDocumentID(),
		Source:  models.DocumentSourceManual,
		Title:   "Ephemeral",
		Content: "gone soon",
	}
	require.NoError(t, storage.StoreDocument(ctx, doc))
	require.NoError(t, storage.DeleteDocument(ctx, doc.ID))

	_, err := storage.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, interfaces.ErrDocumentNotFound)

	err = storage.DeleteDocument(ctx, "doc_never_existed")
	assert.ErrorIs(t, err, interfaces.ErrDocumentNotFound)
}

func TestDocumentStorage_DeleteUploadedBefore(t *testing.T) {
	db := newTestDB(t)
	storage := NewDocumentStorage(db, arbor.NewLogger())
	ctx := context.Background()

	now := time.Now()
	store := func(source string, age time.Duration, title string) string {
		doc := &models.ContextDocument{
			ID:        common.NewDocumentID(),
			Source:    source,
			Title:     title,
			Content:   "content",
			CreatedAt: now.Add(-age),
		}
		require.NoError(t, storage.StoreDocument(ctx, doc))
		return doc.ID
	}

	oldUpload := store(models.DocumentSourceUpload, 48*time.Hour, "old upload")
	freshUpload := store(models.DocumentSourceUpload, time.Hour, "fresh upload")
	oldManual := store(models.DocumentSourceManual, 48*time.Hour, "old manual")

	deleted, err := storage.DeleteUploadedBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = storage.GetDocument(ctx, oldUpload)
	assert.ErrorIs(t, err, interfaces.ErrDocumentNotFound, "expired upload should be gone")

	_, err = storage.GetDocument(ctx, freshUpload)
	assert.NoError(t, err, "upload inside the window should survive")

	_, err = storage.GetDocument(ctx, oldManual)
	assert.NoError(t, err, "manual documents are never swept")

	count, err := storage.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
