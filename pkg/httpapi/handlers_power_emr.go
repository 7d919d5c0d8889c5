package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
	"github.com/meintechblog/eos-backend/pkg/emr"
)

// powerEmrHandlers implements GET /api/data/power/{latest,series} and
// /api/data/emr/{latest,series}.
type powerEmrHandlers struct {
	store  *emr.Store
	logger *zap.Logger
}

func (h *powerEmrHandlers) powerLatest(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.LatestPowerSamples(r.Context(), r.URL.Query()["key"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *powerEmrHandlers) powerSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("key")
	if key == "" {
		writeError(w, h.logger, apperrors.Validation("key is required"))
		return
	}
	from, to, ok := parseFromTo(w, h.logger, q)
	if !ok {
		return
	}
	rows, err := h.store.PowerSeries(r.Context(), key, from, to)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *powerEmrHandlers) emrLatest(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.LatestEMR(r.Context(), r.URL.Query()["key"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *powerEmrHandlers) emrSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("key")
	if key == "" {
		writeError(w, h.logger, apperrors.Validation("key is required"))
		return
	}
	from, to, ok := parseFromTo(w, h.logger, q)
	if !ok {
		return
	}
	rows, err := h.store.EMRSeries(r.Context(), key, from, to)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
