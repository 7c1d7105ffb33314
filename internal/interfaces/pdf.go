package interfaces

import "context"

// PDFExtraction carries the text pulled from an uploaded PDF
type PDFExtraction struct {
	Text      string
	PageCount int
}

// PDFExtractor extracts text content from PDF bytes
type PDFExtractor interface {
	Extract(data []byte) (*PDFExtraction, error)
}

// OCREngine re-extracts text from a PDF by rasterizing pages and running
// recognition in the requested language
type OCREngine interface {
	ExtractText(ctx context.Context, data []byte, lang string) (string, error)
}
