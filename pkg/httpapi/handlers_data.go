package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
	"github.com/meintechblog/eos-backend/pkg/signalstore"
)

// dataHandlers implements GET /api/data/signals, /latest, /series,
// /retention/status.
type dataHandlers struct {
	store  *signalstore.Store
	logger *zap.Logger
}

func (h *dataHandlers) listSignals(w http.ResponseWriter, r *http.Request) {
	limit := 500
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	rows, err := h.store.ListSignalsWithLatest(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *dataHandlers) latest(w http.ResponseWriter, r *http.Request) {
	keys := r.URL.Query()["signal_key"]
	if len(keys) == 0 {
		writeError(w, h.logger, apperrors.Validation("at least one signal_key is required"))
		return
	}
	rows, err := h.store.ListLatestByKeys(r.Context(), keys, 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *dataHandlers) series(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	signalKey := q.Get("signal_key")
	if signalKey == "" {
		writeError(w, h.logger, apperrors.Validation("signal_key is required"))
		return
	}
	from, to, ok := parseFromTo(w, h.logger, q)
	if !ok {
		return
	}
	resolution := signalstore.Resolution(q.Get("resolution"))
	if resolution == "" {
		resolution = signalstore.ResolutionRaw
	}
	points, err := h.store.FetchSeries(r.Context(), signalKey, from, to, resolution)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (h *dataHandlers) retentionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.store.GetPipelineStatus(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func parseFromTo(w http.ResponseWriter, logger *zap.Logger, q map[string][]string) (time.Time, time.Time, bool) {
	fromRaw := first(q["from"])
	toRaw := first(q["to"])
	if fromRaw == "" || toRaw == "" {
		writeError(w, logger, apperrors.Validation("from and to are required"))
		return time.Time{}, time.Time{}, false
	}
	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		writeError(w, logger, apperrors.Validation("invalid from timestamp"))
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.RFC3339, toRaw)
	if err != nil {
		writeError(w, logger, apperrors.Validation("invalid to timestamp"))
		return time.Time{}, time.Time{}, false
	}
	if !from.Before(to) {
		writeError(w, logger, apperrors.Validation("from must be before to"))
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
