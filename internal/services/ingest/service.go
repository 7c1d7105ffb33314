package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/common"
	"github.com/avencast/tutorbridge/internal/interfaces"
	"github.com/avencast/tutorbridge/internal/models"
)

// Error is an ingestion failure with a stable client-facing message
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Stable ingestion errors. The messages are part of the API surface.
var (
	ErrNoFile   = &Error{Status: 400, Message: "No file uploaded."}
	ErrNotPDF   = &Error{Status: 400, Message: "Only PDF files are supported."}
	ErrTooLarge = &Error{Status: 413, Message: "PDF is too large (max 10MB)."}
	ErrNoText   = &Error{Status: 422, Message: "No extractable text found in PDF. Enable OCR for scanned PDFs."}
)

// Service runs the upload pipeline: extract, gate, optionally OCR, dedupe,
// store
type Service struct {
	config    *common.IngestConfig
	extractor interfaces.PDFExtractor
	ocr       interfaces.OCREngine
	documents interfaces.DocumentStorage
	logger    arbor.ILogger
}

// NewService creates the ingestion service
func NewService(config *common.IngestConfig, extractor interfaces.PDFExtractor, ocr interfaces.OCREngine, documents interfaces.DocumentStorage, logger arbor.ILogger) *Service {
	return &Service{
		config:    config,
		extractor: extractor,
		ocr:       ocr,
		documents: documents,
		logger:    logger,
	}
}

// IngestPDF validates and ingests one uploaded PDF. When the extraction is
// garbled and OCR is requested (and enabled), the OCR text replaces the
// extraction only if OCR produced anything; a poor extraction that OCR could
// not improve is still stored. Only empty post-extraction text fails with
// ErrNoText. Identical title+content uploads return the existing document
// unchanged.
func (s *Service) IngestPDF(ctx context.Context, upload *interfaces.PDFUpload) (*models.ContextDocument, error) {
	if upload == nil || len(upload.Data) == 0 {
		return nil, ErrNoFile
	}
	if !isPDFUpload(upload) {
		return nil, ErrNotPDF
	}
	if int64(len(upload.Data)) > s.config.MaxUploadBytes {
		return nil, ErrTooLarge
	}

	extracted, err := s.extractor.Extract(upload.Data)
	if err != nil {
		s.logger.Warn().Err(err).Str("filename", upload.Filename).Msg("PDF extraction failed")
		return nil, ErrNoText
	}

	text := extracted.Text
	gate := CheckText(text, upload.Language)
	ocrUsed := false

	if gate.Garbled && upload.OCR && s.config.OCREnabled {
		s.logger.Info().
			Str("filename", upload.Filename).
			Int("collapsed_length", gate.CollapsedLength).
			Msg("Extraction looks garbled, running OCR")

		ocrText, ocrErr := s.ocr.ExtractText(ctx, upload.Data, upload.Language)
		if ocrErr != nil {
			s.logger.Warn().Err(ocrErr).Str("filename", upload.Filename).Msg("OCR re-extraction failed")
		} else if strings.TrimSpace(ocrText) != "" {
			text = ocrText
			ocrUsed = true
		}
	}

	// The gate only decides whether OCR runs. Whatever non-empty text is
	// left gets stored, poor or not.
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}

	title := documentTitle(upload.Filename)
	checksum := models.DocumentChecksum(title, text)

	existing, err := s.documents.GetByChecksum(ctx, checksum)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup failed: %w", err)
	}
	if existing != nil {
		s.logger.Info().
			Str("id", existing.ID).
			Str("filename", upload.Filename).
			Msg("Duplicate upload, returning existing document")
		return existing, nil
	}

	doc := &models.ContextDocument{
		ID:        common.NewDocumentID(),
		Source:    models.DocumentSourceUpload,
		Title:     title,
		Content:   text,
		Checksum:  checksum,
		Filename:  upload.Filename,
		PageCount: extracted.PageCount,
		OCRUsed:   ocrUsed,
	}

	if err := s.documents.StoreDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	s.logger.Info().
		Str("id", doc.ID).
		Str("filename", upload.Filename).
		Int("pages", doc.PageCount).
		Bool("ocr", ocrUsed).
		Msg("PDF ingested")

	return doc, nil
}

// isPDFUpload accepts the PDF content type or a .pdf filename with the
// magic header
func isPDFUpload(upload *interfaces.PDFUpload) bool {
	contentType := strings.ToLower(strings.TrimSpace(upload.ContentType))
	if contentType != "" && contentType != "application/pdf" {
		return false
	}
	if contentType == "" && !strings.EqualFold(filepath.Ext(upload.Filename), ".pdf") {
		return false
	}
	return strings.HasPrefix(string(upload.Data), "%PDF")
}

// documentTitle derives a title from the uploaded filename
func documentTitle(filename string) string {
	base := filepath.Base(filename)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	title = strings.TrimSpace(title)
	if title == "" {
		return "Uploaded document"
	}
	return title
}
