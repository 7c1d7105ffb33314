package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/services/pdf"
)

// ExportHandler renders a markdown answer into a downloadable PDF
type ExportHandler struct {
	exporter *pdf.Exporter
	logger   arbor.ILogger
}

// exportRequest is the POST /api/export/pdf body
type exportRequest struct {
	Markdown string `json:"markdown"`
	Title    string `json:"title,omitempty"`
}

// NewExportHandler creates a new export handler
func NewExportHandler(exporter *pdf.Exporter, logger arbor.ILogger) *ExportHandler {
	return &ExportHandler{
		exporter: exporter,
		logger:   logger,
	}
}

// ExportHandler handles POST /api/export/pdf requests
func (h *ExportHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Markdown) == "" {
		WriteError(w, http.StatusBadRequest, "Markdown field is required")
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Tutorbridge Answer"
	}

	data, err := h.exporter.Export(req.Markdown, title)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to render PDF export")
		WriteError(w, http.StatusInternalServerError, "Failed to render PDF")
		return
	}

	filename := fmt.Sprintf("tutorbridge-%s.pdf", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
