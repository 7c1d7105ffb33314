package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/common"
	"github.com/avencast/tutorbridge/internal/interfaces"
	"github.com/avencast/tutorbridge/internal/models"
	"github.com/avencast/tutorbridge/internal/services/ingest"
)

// ContextHandler manages the context document corpus: manual notes plus
// uploaded PDFs that feed retrieval.
type ContextHandler struct {
	documents     interfaces.DocumentStorage
	ingestService interfaces.IngestService
	maxUpload     int64
	validate      *validator.Validate
	logger        arbor.ILogger
}

// createDocumentRequest is the POST /api/context body
type createDocumentRequest struct {
	Title   string `json:"title" validate:"required,max=300"`
	Content string `json:"content" validate:"required"`
}

// NewContextHandler creates a new context document handler
func NewContextHandler(
	documents interfaces.DocumentStorage,
	ingestService interfaces.IngestService,
	config *common.IngestConfig,
	logger arbor.ILogger,
) *ContextHandler {
	return &ContextHandler{
		documents:     documents,
		ingestService: ingestService,
		maxUpload:     config.MaxUploadBytes,
		validate:      validator.New(),
		logger:        logger,
	}
}

// ListHandler handles GET /api/context requests
func (h *ContextHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	docs, err := h.documents.ListDocuments(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list context documents")
		WriteError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}

	summaries := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, documentSummary(doc))
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"documents": summaries,
		"count":     len(summaries),
	})
}

// CreateHandler handles POST /api/context requests for manual notes
func (h *ContextHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Content = strings.TrimSpace(req.Content)
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Title and content are required")
		return
	}

	// Identical title+content resolves to the existing document
	checksum := models.DocumentChecksum(req.Title, req.Content)
	if existing, err := h.documents.GetByChecksum(r.Context(), checksum); err == nil && existing != nil {
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"document": documentSummary(existing),
			"existing": true,
		})
		return
	}

	doc := &models.ContextDocument{
		ID:       common.NewDocumentID(),
		Source:   models.DocumentSourceManual,
		Title:    req.Title,
		Content:  req.Content,
		Checksum: checksum,
	}

	if err := h.documents.StoreDocument(r.Context(), doc); err != nil {
		h.logger.Error().Err(err).Msg("Failed to store context document")
		WriteError(w, http.StatusInternalServerError, "Failed to store document")
		return
	}

	h.logger.Info().Str("doc_id", doc.ID).Str("title", doc.Title).Msg("Context document created")

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"document": documentSummary(doc),
	})
}

// DeleteHandler handles DELETE /api/context/{id} requests
func (h *ContextHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/context/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	if err := h.documents.DeleteDocument(r.Context(), id); err != nil {
		if errors.Is(err, interfaces.ErrDocumentNotFound) {
			WriteError(w, http.StatusNotFound, "Document not found")
			return
		}
		h.logger.Error().Err(err).Str("doc_id", id).Msg("Failed to delete context document")
		WriteError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}

	WriteSuccess(w, "Document deleted")
}

// UploadHandler handles POST /api/context/upload multipart requests. Form
// fields: file (the PDF), ocr ("true" to allow OCR re-extraction), lang
// (OCR language hint).
func (h *ContextHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	// One megabyte of slack covers the multipart framing around the file cap
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		WriteError(w, http.StatusRequestEntityTooLarge, ingest.ErrTooLarge.Message)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, ingest.ErrNoFile.Message)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read uploaded file")
		WriteError(w, http.StatusInternalServerError, "Failed to read uploaded file")
		return
	}

	upload := &interfaces.PDFUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		OCR:         strings.EqualFold(r.FormValue("ocr"), "true"),
		Language:    ingest.NormalizeOCRLanguage(r.FormValue("lang")),
	}

	doc, err := h.ingestService.IngestPDF(r.Context(), upload)
	if err != nil {
		var ingestErr *ingest.Error
		if errors.As(err, &ingestErr) {
			WriteError(w, ingestErr.Status, ingestErr.Message)
			return
		}
		h.logger.Error().Err(err).Str("filename", header.Filename).Msg("PDF ingestion failed")
		WriteError(w, http.StatusInternalServerError, "Failed to ingest PDF")
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"document": documentSummary(doc),
	})
}

// documentSummary strips content down to a preview for list responses
func documentSummary(doc *models.ContextDocument) map[string]interface{} {
	preview := doc.Content
	if runes := []rune(preview); len(runes) > 200 {
		preview = string(runes[:200])
	}
	return map[string]interface{}{
		"id":         doc.ID,
		"source":     doc.Source,
		"title":      doc.Title,
		"preview":    preview,
		"filename":   doc.Filename,
		"page_count": doc.PageCount,
		"ocr_used":   doc.OCRUsed,
		"created_at": doc.CreatedAt,
	}
}
