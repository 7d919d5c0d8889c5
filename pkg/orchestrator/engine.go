package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
	"github.com/meintechblog/eos-backend/pkg/metrics"
)

// Snapshot bundles the inputs ExecuteRun needs to assemble EOS input and
// run the optimizer, gathered by the caller from the parameter/signal
// stores.
type Snapshot struct {
	ParameterPayload map[string]any
	HTTPOverrides    map[string]any
	Mappings         map[string]any
	LiveState        map[string]any
	RuntimeConfig    map[string]any
}

// NoGridChargeGuardSettings parameterizes ApplyNoGridChargeGuard.
type NoGridChargeGuardSettings struct {
	Enabled     bool
	ThresholdW  float64
}

// Engine runs the C6 state machine: open → assemble → optimize → guard
// → persist. Only one run may be "running" at a time.
type Engine struct {
	store   *Store
	client  *EOSClient
	guard   NoGridChargeGuardSettings
	metrics *metrics.Registry
	logger  *zap.Logger

	mu         sync.Mutex
	forceInFlight bool
}

// NewEngine builds an Engine. metricsRegistry may be nil.
func NewEngine(store *Store, client *EOSClient, guard NoGridChargeGuardSettings, metricsRegistry *metrics.Registry, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, client: client, guard: guard, metrics: metricsRegistry, logger: logger.With(zap.String("component", "orchestrator_engine"))}
}

// TriggerAlignedRun is called by the aligned scheduler when the current
// time crosses a trigger instant. If a run is already in progress it
// starts nothing, logs skip_reason "overlap" and returns (nil, nil); the
// skip is not written to eos_runs.
func (e *Engine) TriggerAlignedRun(ctx context.Context, snapshot Snapshot) (*Run, error) {
	running, err := e.store.HasRunningRun(ctx)
	if err != nil {
		return nil, err
	}
	if running {
		e.logger.Info("aligned trigger skipped: run already in progress", zap.String("skip_reason", "overlap"))
		return nil, nil
	}
	return e.ExecuteRun(ctx, TriggerAlignedScheduler, snapshot)
}

// ForceRun starts an immediate run. A force request while another force
// run is still executing, or while any run is in the "running" state, is
// rejected with force_run_in_progress.
func (e *Engine) ForceRun(ctx context.Context, snapshot Snapshot) (*Run, error) {
	e.mu.Lock()
	if e.forceInFlight {
		e.mu.Unlock()
		return nil, apperrors.Conflict("force_run_in_progress")
	}
	e.forceInFlight = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.forceInFlight = false
		e.mu.Unlock()
	}()

	running, err := e.store.HasRunningRun(ctx)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, apperrors.Conflict("force_run_in_progress")
	}

	return e.ExecuteRun(ctx, TriggerForce, snapshot)
}

// ExecuteRun runs the full C6 pipeline for one run. Pre-refresh and PV fallback are orchestrated by the caller via
// snapshot fields / separate helper calls (ExtractWarmStart,
// AttemptPVImportFallback) — ExecuteRun covers open/assemble/optimize/
// guard/persist/finalize.
func (e *Engine) ExecuteRun(ctx context.Context, trigger TriggerSource, snapshot Snapshot) (result *Run, resultErr error) {
	started := time.Now()
	defer func() {
		if e.metrics == nil {
			return
		}
		status := string(RunSucceeded)
		if resultErr != nil {
			status = string(RunFailed)
		}
		e.metrics.RunsTotal.WithLabelValues(string(trigger), status).Inc()
		e.metrics.RunDuration.Observe(time.Since(started).Seconds())
	}()

	run, err := e.store.OpenRun(ctx, trigger)
	if err != nil {
		return nil, err
	}
	if err := e.store.TransitionRun(ctx, run.ID, RunRunning, nil); err != nil {
		return nil, err
	}

	if err := e.persistSnapshotArtifacts(ctx, run.ID, snapshot); err != nil {
		e.fail(ctx, run.ID, err)
		return nil, err
	}

	assembled := assembleEOSInput(snapshot)
	if err := e.saveJSONArtifact(ctx, run.ID, ArtifactAssembledEOSInput, assembled); err != nil {
		e.fail(ctx, run.ID, err)
		return nil, err
	}

	warmStart := e.warmStartFor(ctx, run.ID, assembled)
	if warmStart != nil {
		assembled["start_solution"] = warmStart
	} else {
		assembled["start_solution"] = nil
	}

	solution, err := e.client.Optimize(ctx, assembled)
	if err != nil {
		e.fail(ctx, run.ID, err)
		return nil, err
	}
	if err := e.saveJSONArtifact(ctx, run.ID, ArtifactSolution, solution); err != nil {
		e.fail(ctx, run.ID, err)
		return nil, err
	}

	instructions := instructionsFromSolution(run.ID, solution)
	if e.guard.Enabled {
		gridPowerW, _ := liveGridPowerW(snapshot.LiveState)
		instructions = ApplyNoGridChargeGuard(instructions, gridPowerW, e.guard.ThresholdW)
	}
	if err := e.store.SavePlanInstructions(ctx, run.ID, instructions); err != nil {
		e.fail(ctx, run.ID, err)
		return nil, err
	}
	if err := e.saveJSONArtifact(ctx, run.ID, ArtifactPlan, map[string]any{"instructions": instructions}); err != nil {
		e.fail(ctx, run.ID, err)
		return nil, err
	}

	if err := e.store.TransitionRun(ctx, run.ID, RunSucceeded, nil); err != nil {
		return nil, err
	}
	run.Status = RunSucceeded
	return run, nil
}

func (e *Engine) fail(ctx context.Context, runID int64, cause error) {
	msg := cause.Error()
	if err := e.store.TransitionRun(ctx, runID, RunFailed, &msg); err != nil {
		e.logger.Error("failed to record run failure", zap.Error(err))
	}
}

func (e *Engine) persistSnapshotArtifacts(ctx context.Context, runID int64, snapshot Snapshot) error {
	pairs := []struct {
		artifactType ArtifactType
		payload      any
	}{
		{ArtifactParameterPayload, snapshot.ParameterPayload},
		{ArtifactMappings, snapshot.Mappings},
		{ArtifactLiveState, snapshot.LiveState},
		{ArtifactRuntimeConfig, snapshot.RuntimeConfig},
	}
	for _, pair := range pairs {
		if err := e.saveJSONArtifact(ctx, runID, pair.artifactType, pair.payload); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) saveJSONArtifact(ctx context.Context, runID int64, artifactType ArtifactType, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "marshal run artifact")
	}
	_, err = e.store.SaveArtifact(ctx, runID, artifactType, string(encoded))
	return err
}

func (e *Engine) warmStartFor(ctx context.Context, runID int64, assembled map[string]any) []float64 {
	prior, err := e.store.LatestArtifact(ctx, runID-1, ArtifactSolution)
	if err != nil || prior == nil {
		return nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(prior.PayloadJSON), &decoded); err != nil {
		return nil
	}
	expectedLength := expectedDecisionVariableCount(assembled)
	warmStart, ok := ExtractWarmStart(decoded, expectedLength)
	if !ok {
		return nil
	}
	return warmStart
}

func assembleEOSInput(snapshot Snapshot) map[string]any {
	merged := map[string]any{}
	for k, v := range snapshot.ParameterPayload {
		merged[k] = v
	}
	for path, v := range snapshot.HTTPOverrides {
		merged[path] = v
	}
	return merged
}

func expectedDecisionVariableCount(assembled map[string]any) int {
	devices, ok := assembled["devices"].(map[string]any)
	if !ok {
		return 0
	}
	count := 0
	for _, key := range []string{"batteries", "electric_vehicles", "inverters"} {
		if list, ok := devices[key].([]any); ok {
			count += len(list)
		}
	}
	return count
}

func liveGridPowerW(liveState map[string]any) (float64, bool) {
	if liveState == nil {
		return 0, false
	}
	v, ok := liveState["grid_power_w"].(float64)
	return v, ok
}

func instructionsFromSolution(runID int64, solution map[string]any) []PlanInstruction {
	raw, ok := solution["instructions"].([]any)
	if !ok {
		return nil
	}
	out := make([]PlanInstruction, 0, len(raw))
	for i, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		instr := PlanInstruction{RunID: runID, InstructionIndex: i}
		if resourceID, ok := entry["resource_id"].(string); ok {
			instr.ResourceID = resourceID
		}
		if mode, ok := entry["operation_mode"].(string); ok {
			instr.OperationMode = mode
		}
		if power, ok := entry["requested_power_kw"].(float64); ok {
			instr.RequestedPowerKW = power
		}
		if execTime, ok := entry["execution_time"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, execTime); err == nil {
				instr.ExecutionTime = &ts
			}
		}
		if startsAt, ok := entry["starts_at"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, startsAt); err == nil {
				instr.StartsAt = &ts
			}
		}
		if endsAt, ok := entry["ends_at"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, endsAt); err == nil {
				instr.EndsAt = &ts
			}
		}
		out = append(out, instr)
	}
	return out
}
