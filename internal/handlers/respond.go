package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/commenter/backend/internal/logging"
	"github.com/commenter/backend/internal/relationships"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, map[string]string{"error": message})
}

// respondRelationshipError maps relationship error kinds to HTTP statuses with a
// fixed message per kind. The wrapped detail only reaches the log.
func respondRelationshipError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		status  int
		message string
	)
	switch {
	case errors.Is(err, relationships.ErrInvalidArgument):
		status, message = http.StatusBadRequest, "invalid relationship target"
	case errors.Is(err, relationships.ErrForbidden):
		status, message = http.StatusForbidden, "not allowed"
	case errors.Is(err, relationships.ErrNotFound):
		status, message = http.StatusNotFound, "not found"
	case errors.Is(err, relationships.ErrConflict):
		status, message = http.StatusConflict, "conflict"
	default:
		logging.FromContext(ctx).Error("relationship operation failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "internal error")
		return
	}
	logging.FromContext(ctx).Debug("relationship operation rejected", "error", err)
	respondError(ctx, w, status, message)
}
