package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/zedaapi/instance-gateway/internal/apierr"
	"github.com/zedaapi/instance-gateway/internal/logging"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// handleServiceError translates an apierr.Error into its HTTP status, and
// logs anything that wasn't already classified.
func handleServiceError(ctx context.Context, w http.ResponseWriter, log *slog.Logger, err error) {
	if apiErr, ok := apierr.As(err); ok {
		if apiErr.Kind == apierr.KindInternal || apiErr.Kind == apierr.KindUpstream {
			logging.ContextLogger(ctx, log).Error("service error", slog.String("error", apiErr.Error()))
		}
		respondError(w, apiErr.StatusCode(), apiErr.Error())
		return
	}
	logging.ContextLogger(ctx, log).Error("unclassified service error", slog.String("error", err.Error()))
	respondError(w, http.StatusInternalServerError, "internal error")
}
