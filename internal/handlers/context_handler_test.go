package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/common"
	"github.com/avencast/tutorbridge/internal/interfaces"
	"github.com/avencast/tutorbridge/internal/models"
	"github.com/avencast/tutorbridge/internal/services/ingest"
)

type fakeDocumentStore struct {
	docs []*models.ContextDocument
}

func (f *fakeDocumentStore) StoreDocument(ctx context.Context, doc *models.ContextDocument) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeDocumentStore) GetDocument(ctx context.Context, id string) (*models.ContextDocument, error) {
	for _, doc := range f.docs {
		if doc.ID == id {
			return doc, nil
		}
	}
	return nil, interfaces.ErrDocumentNotFound
}

func (f *fakeDocumentStore) GetByChecksum(ctx context.Context, checksum string) (*models.ContextDocument, error) {
	for _, doc := range f.docs {
		if doc.Checksum == checksum {
			return doc, nil
		}
	}
	return nil, nil
}

func (f *fakeDocumentStore) ListDocuments(ctx context.Context) ([]*models.ContextDocument, error) {
	return f.docs, nil
}

func (f *fakeDocumentStore) DeleteDocument(ctx context.Context, id string) error {
	for i, doc := range f.docs {
		if doc.ID == id {
			f.docs = append(f.docs[:i], f.docs[i+1:]...)
			return nil
		}
	}
	return interfaces.ErrDocumentNotFound
}

func (f *fakeDocumentStore) DeleteUploadedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (f *fakeDocumentStore) CountDocuments(ctx context.Context) (int, error) {
	return len(f.docs), nil
}

type fakeIngestService struct {
	doc        *models.ContextDocument
	err        error
	lastUpload *interfaces.PDFUpload
}

func (f *fakeIngestService) IngestPDF(ctx context.Context, upload *interfaces.PDFUpload) (*models.ContextDocument, error) {
	f.lastUpload = upload
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

func newTestContextHandler(store *fakeDocumentStore, svc *fakeIngestService) *ContextHandler {
	cfg := &common.IngestConfig{MaxUploadBytes: 10 << 20}
	return NewContextHandler(store, svc, cfg, arbor.NewLogger())
}

func TestContextCreate(t *testing.T) {
	store := &fakeDocumentStore{}
	handler := newTestContextHandler(store, &fakeIngestService{})

	body := `{"title":"  Trig Identities  ","content":"sin^2 + cos^2 = 1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/context", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.CreateHandler(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, store.docs, 1)
	assert.Equal(t, "Trig Identities", store.docs[0].Title, "title should be trimmed")
	assert.Equal(t, models.DocumentSourceManual, store.docs[0].Source)
	assert.True(t, strings.HasPrefix(store.docs[0].ID, "doc_"))
}

func TestContextCreate_Validation(t *testing.T) {
	handler := newTestContextHandler(&fakeDocumentStore{}, &fakeIngestService{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{broken"},
		{"missing title", `{"content":"something"}`},
		{"missing content", `{"title":"something"}`},
		{"whitespace only", `{"title":"   ","content":"  "}`},
		{"title too long", `{"title":"` + strings.Repeat("x", 301) + `","content":"ok"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/context", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.CreateHandler(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestContextCreate_Dedup(t *testing.T) {
	store := &fakeDocumentStore{}
	handler := newTestContextHandler(store, &fakeIngestService{})

	body := `{"title":"Notes","content":"same content"}`
	first := httptest.NewRecorder()
	handler.CreateHandler(first, httptest.NewRequest(http.MethodPost, "/api/context", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	handler.CreateHandler(second, httptest.NewRequest(http.MethodPost, "/api/context", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, second.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["existing"])
	assert.Len(t, store.docs, 1, "duplicate must not create a second document")
}

func TestContextDelete(t *testing.T) {
	store := &fakeDocumentStore{docs: []*models.ContextDocument{
		{ID: "doc_abc", Title: "Keep", Content: "x"},
	}}
	handler := newTestContextHandler(store, &fakeIngestService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/context/doc_abc", nil)
	rec := httptest.NewRecorder()
	handler.DeleteHandler(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.docs)

	req = httptest.NewRequest(http.MethodDelete, "/api/context/doc_missing", nil)
	rec = httptest.NewRecorder()
	handler.DeleteHandler(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContextList(t *testing.T) {
	longContent := strings.Repeat("අ", 300)
	store := &fakeDocumentStore{docs: []*models.ContextDocument{
		{ID: "doc_1", Source: models.DocumentSourceUpload, Title: "Paper", Content: longContent, Filename: "paper.pdf", PageCount: 3, OCRUsed: true},
	}}
	handler := newTestContextHandler(store, &fakeIngestService{})

	req := httptest.NewRequest(http.MethodGet, "/api/context", nil)
	rec := httptest.NewRecorder()
	handler.ListHandler(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Documents []map[string]interface{} `json:"documents"`
		Count     int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)

	preview, _ := resp.Documents[0]["preview"].(string)
	assert.Equal(t, 200, len([]rune(preview)), "preview is cut at 200 runes, not bytes")
	assert.Equal(t, "paper.pdf", resp.Documents[0]["filename"])
	assert.Equal(t, true, resp.Documents[0]["ocr_used"])
}

func multipartUpload(t *testing.T, fieldName, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := writer.CreateFormFile(fieldName, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestContextUpload(t *testing.T) {
	svc := &fakeIngestService{doc: &models.ContextDocument{
		ID:       "doc_up",
		Source:   models.DocumentSourceUpload,
		Title:    "notes",
		Content:  "extracted text",
		Filename: "notes.pdf",
	}}
	handler := newTestContextHandler(&fakeDocumentStore{}, svc)

	body, contentType := multipartUpload(t, "file", "notes.pdf", []byte("%PDF-1.4 fake"), map[string]string{
		"ocr":  "TRUE",
		"lang": "sinhala",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/context/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.UploadHandler(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.lastUpload)
	assert.Equal(t, "notes.pdf", svc.lastUpload.Filename)
	assert.True(t, svc.lastUpload.OCR, "ocr flag is case-insensitive")
	assert.Equal(t, "sin", svc.lastUpload.Language)
}

func TestContextUpload_Errors(t *testing.T) {
	tests := []struct {
		name       string
		ingestErr  error
		wantStatus int
	}{
		{"not a pdf", ingest.ErrNotPDF, http.StatusBadRequest},
		{"too large", ingest.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{"no text", ingest.ErrNoText, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeIngestService{err: tt.ingestErr}
			handler := newTestContextHandler(&fakeDocumentStore{}, svc)

			body, contentType := multipartUpload(t, "file", "bad.pdf", []byte("junk"), nil)
			req := httptest.NewRequest(http.MethodPost, "/api/context/upload", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			handler.UploadHandler(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestContextUpload_MissingFile(t *testing.T) {
	handler := newTestContextHandler(&fakeDocumentStore{}, &fakeIngestService{})

	body, contentType := multipartUpload(t, "file", "", nil, map[string]string{"ocr": "false"})
	req := httptest.NewRequest(http.MethodPost, "/api/context/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.UploadHandler(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No file uploaded.")
}
