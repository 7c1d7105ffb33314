package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Chat (retrieval-grounded chat)
	mux.HandleFunc("/api/chat", s.app.ChatHandler.ChatHandler)
	mux.HandleFunc("/api/chat/stream", s.app.ChatHandler.StreamHandler)
	mux.HandleFunc("/api/chat/history", s.app.ChatHandler.HistoryHandler)

	// API routes - Context corpus
	mux.HandleFunc("/api/context", s.handleContextRoute)
	mux.HandleFunc("/api/context/upload", s.app.ContextHandler.UploadHandler)
	mux.HandleFunc("/api/context/", s.app.ContextHandler.DeleteHandler) // DELETE /{id}

	// API routes - Models
	mux.HandleFunc("/api/models", s.app.ModelsHandler.ListHandler)

	// API routes - Export
	mux.HandleFunc("/api/export/pdf", s.app.ExportHandler.ExportHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleContextRoute dispatches /api/context by method
func (s *Server) handleContextRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.ContextHandler.ListHandler(w, r)
	case http.MethodPost:
		s.app.ContextHandler.CreateHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
