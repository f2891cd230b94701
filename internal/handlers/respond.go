package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"

	"github.com/maneesh/docsync/internal/apperr"
	"github.com/maneesh/docsync/internal/session"
)

var tracer = otel.Tracer("docsync-handlers")

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError maps err to its status code and logs it with the caller identity
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	attrs := []any{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	}
	if id, ok := session.IdentityFromContext(r.Context()); ok {
		attrs = append(attrs, slog.String("owner_id", id.Subject))
	}
	if docID := documentID(r); docID != "" {
		attrs = append(attrs, slog.String("document_id", docID))
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}

	msg := apperr.Message(err)
	if kind == apperr.Internal {
		msg = "Internal server error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Kind: kind})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return apperr.New(apperr.Validation, "handlers.decode", "Invalid JSON body")
	}
	return nil
}
