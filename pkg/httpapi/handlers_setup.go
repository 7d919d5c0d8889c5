package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
	"github.com/meintechblog/eos-backend/pkg/parameters"
)

// setupHandlers implements POST /api/setup/fields, PUT /eos/set/{...},
// GET /api/setup/layout, and GET /api/setup/readiness.
type setupHandlers struct {
	surface         *parameters.Surface
	layout          *parameters.FieldLayout
	httpOverrideTTL time.Duration
	validate        *validator.Validate
	logger          *zap.Logger
}

func newSetupHandlers(surface *parameters.Surface, layout *parameters.FieldLayout, httpOverrideTTL time.Duration, logger *zap.Logger) *setupHandlers {
	return &setupHandlers{surface: surface, layout: layout, httpOverrideTTL: httpOverrideTTL, validate: validator.New(), logger: logger}
}

type setupFieldWrite struct {
	FieldID  string `json:"field_id" validate:"required"`
	Selector string `json:"selector"`
	Value    string `json:"value" validate:"required"`
}

type setupFieldsBatchRequest struct {
	Fields []setupFieldWrite `json:"fields" validate:"required,min=1,dive"`
}

type setupFieldResult struct {
	FieldID string `json:"field_id"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// batchWrite implements POST /api/setup/fields: apply each field write in
// request order, continuing past per-field failures so one bad field
// doesn't block the rest of the batch.
func (h *setupHandlers) batchWrite(w http.ResponseWriter, r *http.Request) {
	var req setupFieldsBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperrors.Validation("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, h.logger, apperrors.Validation(err.Error()))
		return
	}

	now := time.Now().UTC()
	results := make([]setupFieldResult, 0, len(req.Fields))
	for _, field := range req.Fields {
		status, err := h.surface.WriteField(r.Context(), field.FieldID, field.Selector, field.Value, parameters.FieldSourceUI, now, 0)
		if err != nil {
			ae := apperrors.As(err)
			results = append(results, setupFieldResult{FieldID: field.FieldID, Status: "rejected", Error: ae.Message})
			continue
		}
		results = append(results, setupFieldResult{FieldID: status.Definition.FieldID, Status: "saved"})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// externalSet implements PUT /eos/set/{field_id}?value=&selector=, the
// HTTP-override write path: accepted writes additionally mark the field
// override-active for httpOverrideTTL.
func (h *setupHandlers) externalSet(w http.ResponseWriter, r *http.Request) {
	fieldID := chi.URLParam(r, "field_id")
	if fieldID == "" {
		writeError(w, h.logger, apperrors.Validation("field_id is required"))
		return
	}
	value := r.URL.Query().Get("value")
	if value == "" {
		writeError(w, h.logger, apperrors.Validation("value query parameter is required"))
		return
	}
	selector := r.URL.Query().Get("selector")

	status, err := h.surface.WriteField(r.Context(), fieldID, selector, value, parameters.FieldSourceHTTP, time.Now().UTC(), h.httpOverrideTTL)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, setupFieldResult{FieldID: status.Definition.FieldID, Status: "saved"})
}

func (h *setupHandlers) layoutView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": h.layout.Categories()})
}

type readinessResponse struct {
	Ready         bool     `json:"ready"`
	MissingFields []string `json:"missing_fields"`
}

// readiness implements GET /api/setup/readiness: every required field
// across the layout must have a current value for the installation to be
// considered ready.
func (h *setupHandlers) readiness(w http.ResponseWriter, r *http.Request) {
	missing := make([]string, 0)
	for _, category := range h.layout.Categories() {
		for _, field := range category.Fields {
			if !field.Required {
				continue
			}
			status, err := h.surface.ReadField(r.Context(), field.FieldID)
			if err != nil {
				writeError(w, h.logger, err)
				return
			}
			if status.Missing || !status.HasValue {
				missing = append(missing, field.FieldID)
			}
		}
	}
	writeJSON(w, http.StatusOK, readinessResponse{Ready: len(missing) == 0, MissingFields: missing})
}
