package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/services/pdf"
)

func TestExportHandler(t *testing.T) {
	handler := NewExportHandler(pdf.NewExporter(arbor.NewLogger()), arbor.NewLogger())

	body := `{"markdown":"# Kinematics\n\nVelocity is **speed with direction**.","title":"Kinematics"}`
	req := httptest.NewRequest(http.MethodPost, "/api/export/pdf", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ExportHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".pdf")

	pdfBytes := rec.Body.Bytes()
	require.Greater(t, len(pdfBytes), 4)
	assert.Equal(t, "%PDF", string(pdfBytes[:4]))
}

func TestExportHandler_BadRequests(t *testing.T) {
	handler := NewExportHandler(pdf.NewExporter(arbor.NewLogger()), arbor.NewLogger())

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{broken"},
		{"empty markdown", `{"markdown":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/export/pdf", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ExportHandler(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
