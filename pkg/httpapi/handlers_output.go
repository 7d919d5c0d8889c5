package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/meintechblog/eos-backend/pkg/orchestrator"
	"github.com/meintechblog/eos-backend/pkg/output"
)

// orchestratorRunAdapter narrows orchestrator.Store to output.RunLookup,
// treating each plan instruction's resource_id as its output signal_key
// (the original resolve_output_bundle service module was not part of the
// retrieved source; this 1:1 mapping is the simplest one consistent with
// eos_output_signals.py's signal_key-keyed bundle).
type orchestratorRunAdapter struct {
	store *orchestrator.Store
}

func (a *orchestratorRunAdapter) LatestSucceededRunID(ctx context.Context) (int64, bool, error) {
	run, err := a.store.LatestSucceededRun(ctx)
	if err != nil {
		return 0, false, err
	}
	if run == nil {
		return 0, false, nil
	}
	return run.ID, true, nil
}

func (a *orchestratorRunAdapter) InstructionsForRun(ctx context.Context, runID int64) ([]output.Instruction, error) {
	instructions, err := a.store.PlanInstructionsForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([]output.Instruction, 0, len(instructions))
	for _, instr := range instructions {
		out = append(out, output.Instruction{
			ID:               instr.ID,
			InstructionIndex: instr.InstructionIndex,
			ResourceID:       instr.ResourceID,
			SignalKey:        instr.ResourceID,
			ExecutionTime:    instr.ExecutionTime,
			StartsAt:         instr.StartsAt,
			EndsAt:           instr.EndsAt,
			OperationMode:    instr.OperationMode,
			RequestedPowerKW: instr.RequestedPowerKW,
			GuardApplied:     instr.GuardApplied,
		})
	}
	return out, nil
}

// outputHandlers implements GET /api/eos/output-signals and
// /eos/get/outputs.
type outputHandlers struct {
	projector *output.Projector
	logger    *zap.Logger
}

func (h *outputHandlers) bundle(w http.ResponseWriter, r *http.Request) {
	runID := parseRunID(r)
	b, err := h.projector.Bundle(r.Context(), runID, time.Now().UTC())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *outputHandlers) externalBundle(w http.ResponseWriter, r *http.Request) {
	runID := parseRunID(r)
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "loxone"
	}

	b, err := h.projector.Bundle(r.Context(), runID, time.Now().UTC())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	client := output.ExtractClientID(r)
	if err := h.projector.RecordBundleFetch(r.Context(), b, client); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if format == "json" {
		writeJSON(w, http.StatusOK, b)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(output.RenderLoxone(b.Signals)))
}

func parseRunID(r *http.Request) int64 {
	raw := r.URL.Query().Get("run_id")
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
