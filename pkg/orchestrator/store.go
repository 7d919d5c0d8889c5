package orchestrator

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
)

// Store persists eos_runs / eos_run_artifacts / eos_plan_instructions
// rows.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore builds an orchestrator Store.
func NewStore(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "orchestrator_store"))}
}

// HasRunningRun reports whether any run is currently in the "running"
// state — used both by the aligned scheduler's overlap check and by
// force-run rejection.
func (s *Store) HasRunningRun(ctx context.Context) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM eos_runs WHERE status = $1`, RunRunning)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "check running run")
	}
	return count > 0, nil
}

// OpenRun inserts a new run row in the pending state and returns it.
func (s *Store) OpenRun(ctx context.Context, trigger TriggerSource) (*Run, error) {
	var r Run
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO eos_runs (status, trigger_source, started_at)
		VALUES ($1, $2, now())
		RETURNING id, status, trigger_source, skip_reason, started_at, finished_at, error_text
	`, RunPending, string(trigger)).
		Scan(&r.ID, &r.Status, &r.Trigger, &r.SkipReason, &r.StartedAt, &r.FinishedAt, &r.ErrorText)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "open run")
	}
	return &r, nil
}

// TransitionRun updates a run's status, optionally setting finished_at
// and error_text.
func (s *Store) TransitionRun(ctx context.Context, runID int64, status RunStatus, errText *string) error {
	var finishedAt any
	if status == RunSucceeded || status == RunFailed || status == RunAborted {
		finishedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE eos_runs SET status = $1, finished_at = COALESCE($2, finished_at), error_text = $3
		WHERE id = $4
	`, string(status), finishedAt, errText, runID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "transition run")
	}
	return nil
}

// RecordSkip sets skip_reason on the existing run row runID. The aligned
// scheduler's overlap check does not call it: an overlap skip is only
// logged.
func (s *Store) RecordSkip(ctx context.Context, runID int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE eos_runs SET skip_reason = $1 WHERE id = $2`, reason, runID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "record run skip reason")
	}
	return nil
}

// SaveArtifact persists one artifact row for a run.
func (s *Store) SaveArtifact(ctx context.Context, runID int64, artifactType ArtifactType, payloadJSON string) (int64, error) {
	var id int64
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO eos_run_artifacts (run_id, artifact_type, payload_json, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id
	`, runID, string(artifactType), payloadJSON).Scan(&id)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "save run artifact")
	}
	return id, nil
}

// LatestArtifact returns the most recent artifact of artifactType across
// all runs up to and including runID, or nil if none exists.
func (s *Store) LatestArtifact(ctx context.Context, runID int64, artifactType ArtifactType) (*Artifact, error) {
	var a Artifact
	err := s.db.GetContext(ctx, &a, `
		SELECT id, run_id, artifact_type, payload_json, created_at
		FROM eos_run_artifacts
		WHERE run_id <= $1 AND artifact_type = $2
		ORDER BY run_id DESC, id DESC
		LIMIT 1
	`, runID, string(artifactType))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "load latest run artifact")
	}
	return &a, nil
}

// LatestSucceededRun returns the most recent run with status=succeeded,
// or nil if none exists (used by C7's default run_id resolution).
func (s *Store) LatestSucceededRun(ctx context.Context) (*Run, error) {
	var r Run
	err := s.db.GetContext(ctx, &r, `
		SELECT id, status, trigger_source, skip_reason, started_at, finished_at, error_text
		FROM eos_runs
		WHERE status = $1
		ORDER BY finished_at DESC NULLS LAST, id DESC
		LIMIT 1
	`, RunSucceeded)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "load latest succeeded run")
	}
	return &r, nil
}

// SavePlanInstructions replaces a run's plan instruction rows.
func (s *Store) SavePlanInstructions(ctx context.Context, runID int64, instructions []PlanInstruction) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "begin save plan instructions")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM eos_plan_instructions WHERE run_id = $1`, runID); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "clear plan instructions")
	}
	for _, instr := range instructions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO eos_plan_instructions
				(run_id, instruction_index, resource_id, execution_time, starts_at, ends_at, operation_mode, requested_power_kw, guard_applied, guard_note)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, runID, instr.InstructionIndex, instr.ResourceID, instr.ExecutionTime, instr.StartsAt, instr.EndsAt,
			instr.OperationMode, instr.RequestedPowerKW, instr.GuardApplied, instr.GuardNote); err != nil {
			return apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "insert plan instruction")
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "commit save plan instructions")
	}
	return nil
}

// PlanInstructionsForRun loads a run's plan instructions ordered by index.
func (s *Store) PlanInstructionsForRun(ctx context.Context, runID int64) ([]PlanInstruction, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, run_id, instruction_index, resource_id, execution_time, starts_at, ends_at, operation_mode, requested_power_kw, guard_applied, guard_note
		FROM eos_plan_instructions
		WHERE run_id = $1
		ORDER BY instruction_index
	`, runID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "load plan instructions")
	}
	defer rows.Close()

	var out []PlanInstruction
	for rows.Next() {
		var instr PlanInstruction
		if err := rows.Scan(&instr.ID, &instr.RunID, &instr.InstructionIndex, &instr.ResourceID,
			&instr.ExecutionTime, &instr.StartsAt, &instr.EndsAt, &instr.OperationMode,
			&instr.RequestedPowerKW, &instr.GuardApplied, &instr.GuardNote); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "scan plan instruction")
		}
		out = append(out, instr)
	}
	return out, rows.Err()
}
