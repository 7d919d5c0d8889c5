// Package output implements the C7 output projection: bundle resolution,
// instruction reduction, fetch accounting, and the Loxone text renderer.
// Grounded on original_source/.../app/api/eos_output_signals.py (client
// identification and the Loxone formatter are translated near-verbatim;
// migration 20260222_0015_output_pull_signals.py fixes output access
// tracking as pull-only, replacing the earlier push-dispatch tables —
// dispatch is never actuated, only pulled).
package output

import "time"

// SignalStatus is the safety-overlay status for one bundle item.
type SignalStatus string

const (
	StatusOK      SignalStatus = "ok"
	StatusGuarded SignalStatus = "guarded"
	StatusBlocked SignalStatus = "blocked"
	StatusStale   SignalStatus = "stale"
	StatusMissing SignalStatus = "missing"
)

// BundleItem is one resolved output signal.
type BundleItem struct {
	SignalKey         string       `json:"signal_key"`
	RequestedPowerKW  *float64     `json:"requested_power_kw"`
	OperationMode     string       `json:"operation_mode,omitempty"`
	EffectiveAt       *time.Time   `json:"effective_at,omitempty"`
	SourceInstruction int64        `json:"source_instruction,omitempty"`
	Status            SignalStatus `json:"status"`
	LastFetchTs       *time.Time   `json:"last_fetch_ts,omitempty"`
	LastFetchClient   string       `json:"last_fetch_client,omitempty"`
	FetchCount        int64        `json:"fetch_count"`
}

// Bundle is the resolved output projection.
type Bundle struct {
	CentralHTTPPath string                 `json:"central_http_path"`
	RunID           int64                  `json:"run_id"`
	FetchedAt       time.Time              `json:"fetched_at"`
	Signals         map[string]*BundleItem `json:"signals"`
}

// Instruction is the plan-instruction shape the projector reduces from
// (a narrowed view of orchestrator.PlanInstruction).
type Instruction struct {
	ID               int64
	InstructionIndex int
	ResourceID       string
	SignalKey        string
	ExecutionTime    *time.Time
	StartsAt         *time.Time
	EndsAt           *time.Time
	OperationMode    string
	RequestedPowerKW float64
	GuardApplied     bool
}

// AccessState mirrors an output_signal_access_state row.
type AccessState struct {
	SignalKey       string     `db:"signal_key"`
	ResourceID      *string    `db:"resource_id"`
	LastFetchTs     *time.Time `db:"last_fetch_ts"`
	LastFetchClient *string    `db:"last_fetch_client"`
	FetchCount      int64      `db:"fetch_count"`
}
