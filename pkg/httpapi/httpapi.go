// Package httpapi is the C9 HTTP edge: a thin chi router mapping the
// external contracts onto the domain packages (signalstore, emr, ingest,
// parameters, orchestrator, output). Route handlers never hold business
// logic; every status-code decision is derived from an
// internal/errors.AppError via writeError.
package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	ae := apperrors.As(err)
	if ae.StatusCode >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("type", string(ae.Type)), zap.Error(ae))
	}
	writeJSON(w, ae.StatusCode, map[string]any{
		"error":   string(ae.Type),
		"message": ae.Message,
		"details": ae.Details,
	})
}

// gone writes a 410 response pointing callers at the HTTP-only replacement.
func gone(w http.ResponseWriter, directive string) {
	writeJSON(w, http.StatusGone, map[string]any{
		"error":     "gone",
		"message":   "this endpoint has been retired",
		"directive": directive,
	})
}
