// Package orchestrator implements the C6 run state machine: the aligned
// scheduler, the EOS client, warm-start extraction, PV fallback, the
// no-grid-charge safety gate, and artifact persistence. Grounded on
// original_source's app/services/eos_orchestrator.py references in
// test_legacy_warm_start.py and test_pv_fallback.py (the orchestrator
// service module itself was not part of the retrieved source; these
// tests pin its exact extraction/fallback semantics).
package orchestrator

import "time"

// RunStatus is the run state machine's state.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunAborted   RunStatus = "aborted"
)

// TriggerSource names what started a run.
type TriggerSource string

const (
	TriggerAlignedScheduler TriggerSource = "aligned_scheduler"
	TriggerForce            TriggerSource = "force"
	TriggerAutoPreset       TriggerSource = "auto_preset"
	TriggerPreRefresh       TriggerSource = "pre_refresh"
)

// ArtifactType names the kind of JSON blob persisted under a run.
type ArtifactType string

const (
	ArtifactParameterPayload  ArtifactType = "parameter_payload"
	ArtifactMappings          ArtifactType = "mappings"
	ArtifactLiveState         ArtifactType = "live_state"
	ArtifactRuntimeConfig     ArtifactType = "runtime_config"
	ArtifactAssembledEOSInput ArtifactType = "assembled_eos_input"
	ArtifactPlan              ArtifactType = "plan"
	ArtifactSolution          ArtifactType = "solution"
	ArtifactHealth            ArtifactType = "health"
)

// Run mirrors an eos_runs row.
type Run struct {
	ID           int64      `db:"id"`
	Status       RunStatus  `db:"status"`
	Trigger      string     `db:"trigger_source"`
	SkipReason   *string    `db:"skip_reason"`
	StartedAt    time.Time  `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
	ErrorText    *string    `db:"error_text"`
}

// Artifact mirrors an eos_run_artifacts row.
type Artifact struct {
	ID           int64        `db:"id"`
	RunID        int64        `db:"run_id"`
	ArtifactType ArtifactType `db:"artifact_type"`
	PayloadJSON  string       `db:"payload_json"`
	CreatedAt    time.Time    `db:"created_at"`
}

// PlanInstruction mirrors an eos_plan_instructions row.
type PlanInstruction struct {
	ID               int64
	RunID            int64
	InstructionIndex int
	ResourceID       string
	ExecutionTime    *time.Time
	StartsAt         *time.Time
	EndsAt           *time.Time
	OperationMode    string
	RequestedPowerKW float64
	GuardApplied     bool
	GuardNote        string
}

// PredictionScope names which prediction series to request during
// pre-refresh.
type PredictionScope string

const (
	PredictionAll    PredictionScope = "all"
	PredictionPV     PredictionScope = "pv"
	PredictionPrices PredictionScope = "prices"
	PredictionLoad   PredictionScope = "load"
)
