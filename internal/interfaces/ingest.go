package interfaces

import (
	"context"

	"github.com/avencast/tutorbridge/internal/models"
)

// PDFUpload is one uploaded file plus its ingestion options
type PDFUpload struct {
	Filename    string
	ContentType string
	Data        []byte

	// OCR opts in to Tesseract re-extraction for scanned documents
	OCR bool

	// Language hints the OCR engine: "sinhala", "tamil" or anything else
	// for English
	Language string
}

// IngestService turns uploaded PDFs into stored context documents
type IngestService interface {
	IngestPDF(ctx context.Context, upload *PDFUpload) (*models.ContextDocument, error)
}
