package ingest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/interfaces"
)

// ocrDPI renders pages at twice the PDF's native 72 DPI, enough for
// Tesseract without ballooning raster size
const ocrDPI = 144

var _ interfaces.OCREngine = (*OCREngine)(nil)

// OCREngine re-extracts text from scanned PDFs. Pages are rasterized to PNG
// with pdftoppm (Poppler) and each raster is run through Tesseract.
type OCREngine struct {
	logger   arbor.ILogger
	maxPages int
}

// NewOCREngine creates an OCR engine capped at maxPages per document
func NewOCREngine(logger arbor.ILogger, maxPages int) *OCREngine {
	if maxPages <= 0 {
		maxPages = 5
	}
	return &OCREngine{
		logger:   logger,
		maxPages: maxPages,
	}
}

// Available reports whether the rasterizer is on PATH
func (e *OCREngine) Available() bool {
	_, err := exec.LookPath("pdftoppm")
	return err == nil
}

// ExtractText OCRs up to maxPages pages of the PDF. lang is a request
// language ("sinhala", "tamil", anything else means English). An empty
// result with no error means OCR ran but recognized nothing.
func (e *OCREngine) ExtractText(ctx context.Context, pdfData []byte, lang string) (string, error) {
	tessLang := NormalizeOCRLanguage(lang)

	tmpDir, err := os.MkdirTemp("", "tutorbridge-ocr-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(pdfPath, pdfData, 0644); err != nil {
		return "", fmt.Errorf("failed to write temp PDF: %w", err)
	}

	imagePrefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-r", fmt.Sprintf("%d", ocrDPI),
		"-f", "1",
		"-l", fmt.Sprintf("%d", e.maxPages),
		pdfPath, imagePrefix)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftoppm failed (is Poppler installed?): %w", err)
	}

	imageFiles, err := filepath.Glob(imagePrefix + "*")
	if err != nil || len(imageFiles) == 0 {
		return "", fmt.Errorf("no page images generated from PDF")
	}
	sort.Strings(imageFiles)

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(tessLang); err != nil {
		return "", fmt.Errorf("tesseract language %q not available: %w", tessLang, err)
	}

	var pages []string
	for _, imageFile := range imageFiles {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err := client.SetImage(imageFile); err != nil {
			e.logger.Warn().Err(err).Str("image", imageFile).Msg("Failed to load page raster")
			continue
		}
		text, err := client.Text()
		if err != nil {
			e.logger.Warn().Err(err).Str("image", imageFile).Msg("OCR failed for page")
			continue
		}
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			pages = append(pages, trimmed)
		}
	}

	result := strings.Join(pages, "\n\n")

	e.logger.Debug().
		Int("pages_ocr", len(imageFiles)).
		Int("pages_with_text", len(pages)).
		Str("lang", tessLang).
		Msg("OCR extraction complete")

	return result, nil
}
