package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	// DocumentSourceManual indicates the document text was entered directly
	DocumentSourceManual = "manual"
	// DocumentSourceUpload indicates the document was extracted from an uploaded PDF
	DocumentSourceUpload = "upload"
)

// ContextDocument is one unit of study material the retrieval engine can
// draw passages from: a pasted note, a lesson plan, or an uploaded PDF.
type ContextDocument struct {
	// Identity
	ID     string `json:"id"` // doc_{uuid}
	Source string `json:"source" badgerhold:"index"`

	// Content
	Title   string `json:"title"`
	Content string `json:"content"`

	// Checksum covers title and content, used for upload dedup
	Checksum string `json:"checksum" badgerhold:"index"`

	// Upload provenance
	Filename  string `json:"filename,omitempty"`
	PageCount int    `json:"page_count,omitempty"`
	OCRUsed   bool   `json:"ocr_used,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at" badgerhold:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentChecksum hashes a title/content pair the way upload dedup expects
func DocumentChecksum(title, content string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}
