package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/interfaces"
)

// extractSeq disambiguates temp files when uploads land concurrently
var extractSeq atomic.Int64

var _ interfaces.PDFExtractor = (*Extractor)(nil)

// Extractor pulls text content out of PDF bytes using pdfcpu
type Extractor struct {
	logger  arbor.ILogger
	tempDir string
}

// NewExtractor creates a new PDF extractor
func NewExtractor(logger arbor.ILogger) *Extractor {
	tempDir := filepath.Join(os.TempDir(), "tutorbridge-pdf")
	os.MkdirAll(tempDir, 0755)

	return &Extractor{
		logger:  logger,
		tempDir: tempDir,
	}
}

// Extract writes the PDF to a temp file and extracts per-page content.
// Pages are concatenated in order with blank lines between them. A PDF
// whose pages yield no text returns an empty Text with no error; the
// ingestion gate decides what to do with it.
func (e *Extractor) Extract(data []byte) (*interfaces.PDFExtraction, error) {
	seq := extractSeq.Add(1)
	tempFile := filepath.Join(e.tempDir, fmt.Sprintf("extract_%d_%d.pdf", os.Getpid(), seq))
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF file: %w", err)
	}
	defer os.Remove(tempFile)

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(e.tempDir, fmt.Sprintf("pages_%d_%d", os.Getpid(), seq))
	os.MkdirAll(outDir, 0755)
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		e.logger.Warn().Err(err).Msg("PDF content extraction failed")
		return &interfaces.PDFExtraction{Text: "", PageCount: pageCount}, nil
	}

	files, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction output: %w", err)
	}

	pageTexts := make(map[int]string)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err != nil {
			if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err != nil {
				continue
			}
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		pageTexts[pageNum] = string(content)
	}

	pageNums := make([]int, 0, len(pageTexts))
	for n := range pageTexts {
		pageNums = append(pageNums, n)
	}
	sort.Ints(pageNums)

	var builder strings.Builder
	for i, n := range pageNums {
		if i > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(pageTexts[n])
	}

	e.logger.Debug().
		Int("pages", pageCount).
		Int("chars", builder.Len()).
		Msg("PDF text extracted")

	return &interfaces.PDFExtraction{
		Text:      builder.String(),
		PageCount: pageCount,
	}, nil
}
