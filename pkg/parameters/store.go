package parameters

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
)

// Store is the repository backing the C5 profile/revision lifecycle.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore builds a parameters Store.
func NewStore(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "parameters"))}
}

// GetActiveProfile returns the single active profile row. The engine
// never creates a second one.
func (s *Store) GetActiveProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	err := s.db.GetContext(ctx, &p, `SELECT id, name, description, is_active FROM parameter_profiles WHERE is_active = true LIMIT 1`)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("no active parameter profile")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "load active profile")
	}
	return &p, nil
}

// GetLastAppliedRevision returns the revision with is_last_applied = true.
func (s *Store) GetLastAppliedRevision(ctx context.Context, profileID int64) (*Revision, error) {
	return s.getRevisionWhere(ctx, profileID, "is_last_applied = true")
}

// GetCurrentDraftRevision returns the revision with is_current_draft = true.
func (s *Store) GetCurrentDraftRevision(ctx context.Context, profileID int64) (*Revision, error) {
	return s.getRevisionWhere(ctx, profileID, "is_current_draft = true")
}

func (s *Store) getRevisionWhere(ctx context.Context, profileID int64, predicate string) (*Revision, error) {
	var r Revision
	err := s.db.GetContext(ctx, &r, `
		SELECT id, profile_id, revision_no, source, payload_json, validation_status,
		       validation_issues_json, is_current_draft, is_last_applied, applied_at, created_at
		FROM parameter_profile_revisions
		WHERE profile_id = $1 AND `+predicate+`
		LIMIT 1
	`, profileID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "load revision")
	}
	return &r, nil
}

// GetRevisionByID loads a specific revision scoped to its profile.
func (s *Store) GetRevisionByID(ctx context.Context, profileID, revisionID int64) (*Revision, error) {
	var r Revision
	err := s.db.GetContext(ctx, &r, `
		SELECT id, profile_id, revision_no, source, payload_json, validation_status,
		       validation_issues_json, is_current_draft, is_last_applied, applied_at, created_at
		FROM parameter_profile_revisions
		WHERE profile_id = $1 AND id = $2
	`, profileID, revisionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("revision not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "load revision by id")
	}
	return &r, nil
}

// CreateProfileRevision allocates the next revision_no, optionally clears
// the prior current-draft flag, and inserts the new revision.
func (s *Store) CreateProfileRevision(ctx context.Context, profileID int64, source RevisionSource, payload Value, validationStatus ValidationStatus, issues any, setCurrentDraft bool) (*Revision, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "begin create revision")
	}
	defer tx.Rollback() //nolint:errcheck

	var nextNo sql.NullInt64
	if err := tx.GetContext(ctx, &nextNo, `SELECT MAX(revision_no) FROM parameter_profile_revisions WHERE profile_id = $1`, profileID); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "read max revision_no")
	}
	revisionNo := 1
	if nextNo.Valid {
		revisionNo = int(nextNo.Int64) + 1
	}

	if setCurrentDraft {
		if _, err := tx.ExecContext(ctx, `
			UPDATE parameter_profile_revisions SET is_current_draft = false
			WHERE profile_id = $1 AND is_current_draft = true
		`, profileID); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "clear current draft")
		}
	}

	payloadJSON, err := MarshalPayload(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "marshal revision payload")
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "marshal validation issues")
	}

	var r Revision
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO parameter_profile_revisions
			(profile_id, revision_no, source, payload_json, validation_status, validation_issues_json, is_current_draft, is_last_applied, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,false,now())
		RETURNING id, profile_id, revision_no, source, payload_json, validation_status, validation_issues_json, is_current_draft, is_last_applied, applied_at, created_at
	`, profileID, revisionNo, string(source), payloadJSON, string(validationStatus), string(issuesJSON), setCurrentDraft).
		Scan(&r.ID, &r.ProfileID, &r.RevisionNo, &r.Source, &r.PayloadJSON, &r.ValidationStatus,
			&r.ValidationIssuesJSON, &r.IsCurrentDraft, &r.IsLastApplied, &r.AppliedAt, &r.CreatedAt)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "insert revision")
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "commit create revision")
	}
	return &r, nil
}

// MarkRevisionAsLastApplied clears the prior is_last_applied flag, sets it
// on revisionID, stamps applied_at, and leaves is_current_draft true.
func (s *Store) MarkRevisionAsLastApplied(ctx context.Context, profileID, revisionID int64) (*Revision, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "begin mark applied")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		UPDATE parameter_profile_revisions SET is_last_applied = false
		WHERE profile_id = $1 AND is_last_applied = true
	`, profileID); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "clear last applied")
	}

	var r Revision
	err = tx.QueryRowxContext(ctx, `
		UPDATE parameter_profile_revisions
		SET is_last_applied = true, is_current_draft = true, applied_at = now()
		WHERE profile_id = $1 AND id = $2
		RETURNING id, profile_id, revision_no, source, payload_json, validation_status, validation_issues_json, is_current_draft, is_last_applied, applied_at, created_at
	`, profileID, revisionID).
		Scan(&r.ID, &r.ProfileID, &r.RevisionNo, &r.Source, &r.PayloadJSON, &r.ValidationStatus,
			&r.ValidationIssuesJSON, &r.IsCurrentDraft, &r.IsLastApplied, &r.AppliedAt, &r.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("revision not found")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "mark revision applied")
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "commit mark applied")
	}
	return &r, nil
}
