package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/common"
	"github.com/avencast/tutorbridge/internal/interfaces"
	"github.com/avencast/tutorbridge/internal/services/llm"
)

// APIHandler serves the system endpoints: version, health and the API 404
type APIHandler struct {
	storage interfaces.StorageManager
	factory *llm.ProviderFactory
	logger  arbor.ILogger
}

// NewAPIHandler creates a new system API handler
func NewAPIHandler(storage interfaces.StorageManager, factory *llm.ProviderFactory, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		storage: storage,
		factory: factory,
		logger:  logger,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
	})
}

// HealthHandler returns health check status including corpus counts and the
// provider the gateway would route to by default
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	resp := map[string]interface{}{
		"status":           "ok",
		"default_provider": string(h.factory.DefaultProvider()),
	}

	if docs, err := h.storage.DocumentStorage().CountDocuments(r.Context()); err == nil {
		resp["documents"] = docs
	} else {
		resp["status"] = "degraded"
		h.logger.Warn().Err(err).Msg("Health check could not count documents")
	}

	if turns, err := h.storage.HistoryStorage().CountTurns(r.Context()); err == nil {
		resp["turns"] = turns
	}

	WriteJSON(w, http.StatusOK, resp)
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
