package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/services/llm"
)

// ModelsHandler lists the models each configured provider currently offers
type ModelsHandler struct {
	factory *llm.ProviderFactory
	logger  arbor.ILogger
}

// NewModelsHandler creates a new models handler
func NewModelsHandler(factory *llm.ProviderFactory, logger arbor.ILogger) *ModelsHandler {
	return &ModelsHandler{
		factory: factory,
		logger:  logger,
	}
}

// ListHandler handles GET /api/models?provider= requests
func (h *ModelsHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	name := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("provider")))
	if name == "" {
		name = string(h.factory.DefaultProvider())
	}
	if !llm.IsKnownProvider(name) {
		WriteError(w, http.StatusBadRequest, "Unknown provider: "+name)
		return
	}

	provider, err := h.factory.GetProvider(llm.ProviderType(name))
	if err != nil {
		h.logger.Error().Err(err).Str("provider", name).Msg("Failed to initialize provider")
		WriteError(w, http.StatusBadRequest, llm.UserMessage(err, "Provider is not configured."))
		return
	}

	models, err := provider.ListModels(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Str("provider", name).Msg("Failed to list models")
		WriteError(w, chatErrorStatus(err), llm.UserMessage(err, "Failed to list models."))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"provider": name,
		"models":   models,
	})
}
