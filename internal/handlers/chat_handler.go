package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/interfaces"
	"github.com/avencast/tutorbridge/internal/services/llm"
)

// ChatHandler handles chat-related HTTP requests
type ChatHandler struct {
	chatService interfaces.ChatService
	logger      arbor.ILogger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService interfaces.ChatService, logger arbor.ILogger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// decodeChatRequest reads and sanity-checks the request body shared by the
// unary and streaming endpoints
func (h *ChatHandler) decodeChatRequest(w http.ResponseWriter, r *http.Request) (*interfaces.ChatRequest, bool) {
	var req interfaces.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode chat request")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}

	if len(req.Messages) == 0 {
		WriteError(w, http.StatusBadRequest, "Messages field is required")
		return nil, false
	}

	return &req, true
}

// ChatHandler handles POST /api/chat requests
func (h *ChatHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	req, ok := h.decodeChatRequest(w, r)
	if !ok {
		return
	}

	h.logger.Info().
		Int("messages", len(req.Messages)).
		Str("provider", req.Provider).
		Str("model", req.Model).
		Msg("Processing chat request")

	result, err := h.chatService.Chat(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to generate chat response")
		WriteError(w, chatErrorStatus(err), "Failed to generate response: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"answer":    result.Answer,
		"provider":  result.Provider,
		"model":     result.Model,
		"citations": result.Citations,
	})
}

// StreamHandler handles POST /api/chat/stream requests. Each token is
// delivered as an SSE data frame and the stream always terminates with a
// [DONE] sentinel, including after an error frame.
func (h *ChatHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	req, ok := h.decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	stream, err := h.chatService.StreamChat(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to start chat stream")
		WriteError(w, chatErrorStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	flusher.Flush()

	// Routing decision and citations go first so the client can render
	// attribution before tokens arrive
	h.sendFrame(w, flusher, map[string]interface{}{
		"provider":  stream.Provider,
		"model":     stream.Model,
		"citations": stream.Citations,
	})

	for event := range stream.Events {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		switch {
		case event.Error != "":
			h.sendFrame(w, flusher, map[string]interface{}{
				"error": event.Error,
				"done":  true,
			})
		case event.Done:
			// Sentinel below carries the termination
		default:
			h.sendFrame(w, flusher, map[string]interface{}{
				"token": event.Token,
			})
		}
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// HistoryHandler handles GET /api/chat/history requests
func (h *ChatHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := QueryInt(r, "limit", 0)

	turns, err := h.chatService.History(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load chat history")
		WriteError(w, http.StatusInternalServerError, "Failed to load chat history")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"turns": turns,
		"count": len(turns),
	})
}

// chatErrorStatus maps provider failures onto HTTP status codes. Caller
// mistakes (bad provider, missing key) are 400s, upstream failures are 502s.
func chatErrorStatus(err error) int {
	if perr, ok := llm.AsProviderError(err); ok {
		switch perr.Kind {
		case llm.KindConfig:
			return http.StatusBadRequest
		case llm.KindEmptyResponse, llm.KindUpstream, llm.KindTransport:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

// sendFrame writes one SSE data frame and flushes it
func (h *ChatHandler) sendFrame(w http.ResponseWriter, flusher http.Flusher, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal SSE frame")
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
