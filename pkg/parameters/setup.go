package parameters

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
)

// ApplyStatus is the outcome of a setup field write.
type ApplyStatus string

const (
	ApplyStatusSaved    ApplyStatus = "saved"
	ApplyStatusRejected ApplyStatus = "rejected"
)

// FieldSource names who last wrote a setup field.
type FieldSource string

const (
	FieldSourceUI     FieldSource = "ui"
	FieldSourceHTTP   FieldSource = "http"
	FieldSourceImport FieldSource = "import"
	FieldSourceSystem FieldSource = "system"
)

// FieldEvent mirrors a setup_field_events row.
type FieldEvent struct {
	ID            int64     `db:"id"`
	FieldID       string    `db:"field_id"`
	Source        string    `db:"source"`
	RawValueText  sql.NullString `db:"raw_value_text"`
	NormalizedJSON sql.NullString `db:"normalized_value_json"`
	EventTs       time.Time `db:"event_ts"`
	ApplyStatus   string    `db:"apply_status"`
	ErrorText     sql.NullString `db:"error_text"`
	CreatedAt     time.Time `db:"created_at"`
}

// SetupStore persists setup_field_events and answers latest-event-per-
// field reads.
type SetupStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSetupStore builds a SetupStore.
func NewSetupStore(db *sqlx.DB, logger *zap.Logger) *SetupStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SetupStore{db: db, logger: logger.With(zap.String("component", "setup_store"))}
}

// RecordEvent inserts one setup_field_events row and returns its id.
// normalized is nil when the write was rejected before a value could be
// normalized.
func (s *SetupStore) RecordEvent(ctx context.Context, fieldID string, source FieldSource, rawValueText *string, normalized *Value, eventTs time.Time, status ApplyStatus, errText *string) (int64, error) {
	var normalizedJSON *string
	if normalized != nil {
		encoded, err := json.Marshal(normalized.ToJSON())
		if err != nil {
			return 0, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "marshal normalized setup value")
		}
		s := string(encoded)
		normalizedJSON = &s
	}

	var id int64
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO setup_field_events
			(field_id, source, raw_value_text, normalized_value_json, event_ts, apply_status, error_text, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		RETURNING id
	`, fieldID, string(source), rawValueText, normalizedJSON, eventTs, string(status), errText).Scan(&id)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "insert setup field event")
	}
	return id, nil
}

// LatestSuccessfulEvent returns the most recent "saved" event for fieldID,
// or nil if the field has never been written successfully.
func (s *SetupStore) LatestSuccessfulEvent(ctx context.Context, fieldID string) (*FieldEvent, error) {
	var e FieldEvent
	err := s.db.GetContext(ctx, &e, `
		SELECT id, field_id, source, raw_value_text, normalized_value_json, event_ts, apply_status, error_text, created_at
		FROM setup_field_events
		WHERE field_id = $1 AND apply_status = 'saved'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, fieldID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "load latest setup field event")
	}
	return &e, nil
}

// FieldStatus is the read-side projection of one setup field, combining
// the static catalog definition with its latest successful event.
type FieldStatus struct {
	Definition   FieldDefinition
	CurrentValue Value
	HasValue     bool
	LastSource   string
	LastUpdateTs *time.Time
	Missing      bool
}

// Surface ties the field layout catalog, the event store, and the
// HTTP-override tracker into the read/write operations backing the
// setup field surface.
type Surface struct {
	layout    *FieldLayout
	events    *SetupStore
	profiles  *Store
	overrides *OverrideTracker
}

// NewSurface builds a Surface.
func NewSurface(layout *FieldLayout, events *SetupStore, profiles *Store, overrides *OverrideTracker) *Surface {
	return &Surface{layout: layout, events: events, profiles: profiles, overrides: overrides}
}

// ReadField projects field_id's current state: its catalog definition
// plus the most recent successful event, if any.
func (s *Surface) ReadField(ctx context.Context, fieldID string) (FieldStatus, error) {
	def, ok := s.layout.FieldByID(fieldID)
	if !ok {
		return FieldStatus{}, apperrors.NotFound("unknown setup field: " + fieldID)
	}
	event, err := s.events.LatestSuccessfulEvent(ctx, fieldID)
	if err != nil {
		return FieldStatus{}, err
	}
	if event == nil {
		return FieldStatus{Definition: def, Missing: def.Required}, nil
	}
	var decoded any
	if event.NormalizedJSON.Valid {
		if err := json.Unmarshal([]byte(event.NormalizedJSON.String), &decoded); err != nil {
			return FieldStatus{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "decode setup field event value")
		}
	}
	ts := event.EventTs
	return FieldStatus{
		Definition:   def,
		CurrentValue: ValueFromJSON(decoded),
		HasValue:     true,
		LastSource:   event.Source,
		LastUpdateTs: &ts,
		Missing:      false,
	}, nil
}

// WriteField validates rawValue against fieldID's catalog constraints,
// records an event either way, and — on acceptance — merges the
// normalized value into the active profile's draft revision at the
// field's dotted path, producing a new revision with
// source='dynamic_input'. An httpOverrideTTL > 0 additionally marks the
// field HTTP-override-active for that duration.
func (s *Surface) WriteField(ctx context.Context, fieldID, selector string, rawValue string, source FieldSource, eventTs time.Time, httpOverrideTTL time.Duration) (FieldStatus, error) {
	def, ok := s.layout.FieldByID(fieldID)
	if !ok {
		return FieldStatus{}, apperrors.NotFound("unknown setup field: " + fieldID)
	}

	parsed, parseErr := ParseScalarValue(rawValue, def.ValueType)
	if parseErr == nil {
		parseErr = checkFieldConstraints(def, parsed)
	}

	if parseErr != nil {
		msg := parseErr.Error()
		if _, err := s.events.RecordEvent(ctx, fieldID, source, &rawValue, nil, eventTs, ApplyStatusRejected, &msg); err != nil {
			return FieldStatus{}, err
		}
		return FieldStatus{}, apperrors.Validation("setup field rejected: " + msg)
	}

	result := Validate(parsed)
	if !result.Valid {
		msg := "normalization failed"
		if len(result.Errors) > 0 {
			msg = result.Errors[0]
		}
		if _, err := s.events.RecordEvent(ctx, fieldID, source, &rawValue, nil, eventTs, ApplyStatusRejected, &msg); err != nil {
			return FieldStatus{}, err
		}
		return FieldStatus{}, apperrors.Validation("setup field rejected: " + msg)
	}
	normalized := result.NormalizedPayload

	if _, err := s.events.RecordEvent(ctx, fieldID, source, &rawValue, &normalized, eventTs, ApplyStatusSaved, nil); err != nil {
		return FieldStatus{}, err
	}

	profile, err := s.profiles.GetActiveProfile(ctx)
	if err != nil {
		return FieldStatus{}, err
	}
	draft, err := s.profiles.GetCurrentDraftRevision(ctx, profile.ID)
	if err != nil {
		return FieldStatus{}, err
	}
	draftPayload := MapValue(map[string]Value{})
	if draft != nil {
		var decoded any
		if err := json.Unmarshal([]byte(draft.PayloadJSON), &decoded); err != nil {
			return FieldStatus{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "decode draft payload")
		}
		draftPayload = ValueFromJSON(decoded)
	}

	merged, err := MergeAtPath(draftPayload, def.Path, selector, normalized)
	if err != nil {
		return FieldStatus{}, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "merge setup field value")
	}

	if _, err := s.profiles.CreateProfileRevision(ctx, profile.ID, SourceDynamicInput, merged, ValidationValid, []string{}, true); err != nil {
		return FieldStatus{}, err
	}

	if s.overrides != nil && httpOverrideTTL > 0 {
		if err := s.overrides.MarkActive(ctx, fieldID, httpOverrideTTL); err != nil {
			return FieldStatus{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "mark http override active")
		}
	}

	ts := eventTs
	return FieldStatus{Definition: def, CurrentValue: normalized, HasValue: true, LastSource: string(source), LastUpdateTs: &ts}, nil
}

// ActiveOverrides returns, for every setup field still within its HTTP
// override TTL, its field_id and current value — the set the orchestrator
// snapshot layers on top of the parameter payload so a recent external
// write wins even if a UI edit raced it into the same assemble cycle.
func (s *Surface) ActiveOverrides(ctx context.Context) (map[string]any, error) {
	if s.overrides == nil {
		return map[string]any{}, nil
	}
	out := map[string]any{}
	for _, category := range s.layout.Categories() {
		for _, field := range category.Fields {
			active, err := s.overrides.IsActive(ctx, field.FieldID)
			if err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "check http override state")
			}
			if !active {
				continue
			}
			status, err := s.ReadField(ctx, field.FieldID)
			if err != nil {
				return nil, err
			}
			if status.HasValue {
				out[field.FieldID] = status.CurrentValue.ToJSON()
			}
		}
	}
	return out, nil
}

func checkFieldConstraints(def FieldDefinition, v Value) error {
	if def.Constraints.Minimum != nil && v.Kind == KindNumber && v.Number < *def.Constraints.Minimum {
		return apperrors.Validation("value below minimum")
	}
	if def.Constraints.Maximum != nil && v.Kind == KindNumber && v.Number > *def.Constraints.Maximum {
		return apperrors.Validation("value above maximum")
	}
	if len(def.Constraints.Options) > 0 && v.Kind == KindText {
		found := false
		for _, opt := range def.Constraints.Options {
			if opt == v.Text {
				found = true
				break
			}
		}
		if !found {
			return apperrors.Validation("value not among allowed options")
		}
	}
	return nil
}
