package signalstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
)

// Store is the repository for the signal backbone tables. It follows the
// teacher's repository shape: a struct over *sqlx.DB plus a scoped logger,
// constructed once and shared across ingest/HTTP call sites.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore builds a Store.
func NewStore(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "signalstore"))}
}

// IngestMeasurement upserts the catalog row (freezing value_type+unit on
// first sight), inserts the measurement honoring the dedup key, and
// conditionally advances the latest-state cache in one transaction. It
// returns the inserted (or conflicting, pre-existing) measurement id.
func (s *Store) IngestMeasurement(ctx context.Context, m Measurement) (int64, error) {
	if m.SignalKey == "" {
		return 0, apperrors.Validation("signal_key is required")
	}
	if len(m.SignalKey) > 160 {
		return 0, apperrors.Validation("signal_key exceeds 160 characters")
	}
	if !IsAllowedPredictionSignal(m.SignalKey) {
		return 0, apperrors.Validation("signal_key is not in the prediction allowlist").WithDetailsf("key=%s", m.SignalKey)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "begin ingest transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	signalID, err := s.upsertCatalog(ctx, tx, m)
	if err != nil {
		return 0, err
	}

	lagMs := ClampIngestLagMs(m.Ts, m.IngestedAt)
	valueNumber, valueText, valueBool, valueJSON, err := splitValue(m.ValueType, m.Value)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "value does not match catalog value_type")
	}

	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "marshal tags")
	}

	runID := m.RunID
	sourceRefID := m.SourceRefID

	var measurementID int64
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO signal_measurements_raw
			(signal_id, ts, source_type, run_id, source_ref_id,
			 value_number, value_text, value_bool, value_json,
			 quality_status, ingested_at, ingest_lag_ms, tags_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (signal_id, ts, source_type, COALESCE(run_id,0), COALESCE(source_ref_id,0))
		DO NOTHING
		RETURNING id
	`, signalID, m.Ts.UTC(), m.SourceType, runID, sourceRefID,
		valueNumber, valueText, valueBool, valueJSON,
		string(m.Quality), m.IngestedAt.UTC(), lagMs, string(tagsJSON),
	).Scan(&measurementID)

	if err == sql.ErrNoRows {
		// Dedup conflict: treat as a no-op and look up the existing row.
		err = tx.QueryRowxContext(ctx, `
			SELECT id FROM signal_measurements_raw
			WHERE signal_id=$1 AND ts=$2 AND source_type=$3
			  AND COALESCE(run_id,0)=COALESCE($4,0)
			  AND COALESCE(source_ref_id,0)=COALESCE($5,0)
		`, signalID, m.Ts.UTC(), m.SourceType, runID, sourceRefID).Scan(&measurementID)
	}
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "insert measurement")
	}

	if err := s.maybeUpdateLatestState(ctx, tx, signalID, m, valueNumber, valueText, valueBool, valueJSON); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "commit ingest transaction")
	}
	return measurementID, nil
}

func (s *Store) upsertCatalog(ctx context.Context, tx *sqlx.Tx, m Measurement) (int64, error) {
	var signalID int64
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO signal_catalog (signal_key, label, value_type, canonical_unit)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (signal_key) DO UPDATE SET label = signal_catalog.label
		RETURNING id
	`, m.SignalKey, m.Label, string(m.ValueType), m.CanonicalUnit).Scan(&signalID)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "upsert signal catalog")
	}
	return signalID, nil
}

func (s *Store) maybeUpdateLatestState(ctx context.Context, tx *sqlx.Tx, signalID int64, m Measurement, valueNumber sql.NullFloat64, valueText sql.NullString, valueBool sql.NullBool, valueJSON sql.NullString) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO signal_state_latest
			(signal_id, ts, value_number, value_text, value_bool, value_json, quality_status, source_type, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		ON CONFLICT (signal_id) DO UPDATE SET
			ts = EXCLUDED.ts,
			value_number = EXCLUDED.value_number,
			value_text = EXCLUDED.value_text,
			value_bool = EXCLUDED.value_bool,
			value_json = EXCLUDED.value_json,
			quality_status = EXCLUDED.quality_status,
			source_type = EXCLUDED.source_type,
			updated_at = now()
		WHERE EXCLUDED.ts >= signal_state_latest.ts
	`, signalID, m.Ts.UTC(), valueNumber, valueText, valueBool, valueJSON, string(m.Quality), m.SourceType)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "update latest state")
	}
	return nil
}

// FetchSeries returns points in [from, to) for signalKey at the given
// resolution, sorted ascending.
func (s *Store) FetchSeries(ctx context.Context, signalKey string, from, to time.Time, resolution Resolution) ([]Point, error) {
	if !from.Before(to) {
		return nil, apperrors.Validation("from must be before to")
	}

	table := rollupTable(resolution)
	var query string
	switch resolution {
	case ResolutionRaw:
		query = `
			SELECT m.ts AS bucket_start,
			       m.value_number AS last_number,
			       m.value_text AS last_text
			FROM signal_measurements_raw m
			JOIN signal_catalog c ON c.id = m.signal_id
			WHERE c.signal_key = $1 AND m.ts >= $2 AND m.ts < $3
			ORDER BY m.ts ASC`
	default:
		query = fmt.Sprintf(`
			SELECT r.bucket_start, r.min_value, r.max_value, r.avg_value,
			       r.sum_value, r.sample_count, r.last_number, r.last_text
			FROM %s r
			JOIN signal_catalog c ON c.id = r.signal_id
			WHERE c.signal_key = $1 AND r.bucket_start >= $2 AND r.bucket_start < $3
			ORDER BY r.bucket_start ASC`, table)
	}

	var points []Point
	if err := s.db.SelectContext(ctx, &points, query, signalKey, from.UTC(), to.UTC()); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "fetch signal series")
	}
	return points, nil
}

func rollupTable(r Resolution) string {
	switch r {
	case Resolution5m:
		return "signal_rollup_5m"
	case Resolution1h:
		return "signal_rollup_1h"
	case Resolution1d:
		return "signal_rollup_1d"
	default:
		return "signal_rollup_5m"
	}
}

// ListSignalsWithLatest joins catalog x latest-state for every known
// signal, ordered deterministically by key, bounded by limit.
func (s *Store) ListSignalsWithLatest(ctx context.Context, limit int) ([]LatestRow, error) {
	if limit <= 0 {
		limit = 500
	}
	var rows []LatestRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.signal_key, c.label, c.value_type, c.canonical_unit,
		       l.ts, l.value_number, l.value_text, l.value_bool, l.value_json,
		       l.quality_status, l.source_type
		FROM signal_catalog c
		LEFT JOIN signal_state_latest l ON l.signal_id = c.id
		ORDER BY c.signal_key ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "list signals with latest")
	}
	return rows, nil
}

// ListLatestByKeys fetches the latest row for a specific, repeatable set
// of signal keys, ordered deterministically.
func (s *Store) ListLatestByKeys(ctx context.Context, keys []string, limit int) ([]LatestRow, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 500
	}
	query, args, err := sqlx.In(`
		SELECT c.signal_key, c.label, c.value_type, c.canonical_unit,
		       l.ts, l.value_number, l.value_text, l.value_bool, l.value_json,
		       l.quality_status, l.source_type
		FROM signal_catalog c
		LEFT JOIN signal_state_latest l ON l.signal_id = c.id
		WHERE c.signal_key IN (?)
		ORDER BY c.signal_key ASC
		LIMIT ?`, keys, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "build IN query")
	}
	query = s.db.Rebind(query)

	var rows []LatestRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "list latest by keys")
	}
	return rows, nil
}

func splitValue(vt ValueType, value any) (sql.NullFloat64, sql.NullString, sql.NullBool, sql.NullString, error) {
	switch vt {
	case ValueTypeNumber:
		f, ok := toFloat(value)
		if !ok {
			return sql.NullFloat64{}, sql.NullString{}, sql.NullBool{}, sql.NullString{}, fmt.Errorf("expected numeric value, got %T", value)
		}
		return sql.NullFloat64{Float64: f, Valid: true}, sql.NullString{}, sql.NullBool{}, sql.NullString{}, nil
	case ValueTypeText:
		str, ok := value.(string)
		if !ok {
			return sql.NullFloat64{}, sql.NullString{}, sql.NullBool{}, sql.NullString{}, fmt.Errorf("expected text value, got %T", value)
		}
		return sql.NullFloat64{}, sql.NullString{String: str, Valid: true}, sql.NullBool{}, sql.NullString{}, nil
	case ValueTypeBool:
		b, ok := value.(bool)
		if !ok {
			return sql.NullFloat64{}, sql.NullString{}, sql.NullBool{}, sql.NullString{}, fmt.Errorf("expected bool value, got %T", value)
		}
		return sql.NullFloat64{}, sql.NullString{}, sql.NullBool{Bool: b, Valid: true}, sql.NullString{}, nil
	case ValueTypeJSON:
		encoded, err := json.Marshal(value)
		if err != nil {
			return sql.NullFloat64{}, sql.NullString{}, sql.NullBool{}, sql.NullString{}, err
		}
		return sql.NullFloat64{}, sql.NullString{}, sql.NullBool{}, sql.NullString{String: string(encoded), Valid: true}, nil
	default:
		return sql.NullFloat64{}, sql.NullString{}, sql.NullBool{}, sql.NullString{}, fmt.Errorf("unknown value_type %q", vt)
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
