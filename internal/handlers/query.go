package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// QueryRequest is the body of POST /api/query
type QueryRequest struct {
	Query      string `json:"query"`
	DocumentID string `json:"documentId,omitempty"`
}

// QueryResponse carries the backend's answer
type QueryResponse struct {
	Answer  string            `json:"answer"`
	Sources []json.RawMessage `json:"sources"`
}

// QueryHandler handles POST /api/query
type QueryHandler struct {
	docs   DocumentService
	logger *slog.Logger
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(docs DocumentService, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{docs: docs, logger: logger}
}

func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	answer, err := h.docs.Query(r.Context(), identityFrom(r), req.Query, req.DocumentID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{Answer: answer.Answer, Sources: answer.Sources})
}
