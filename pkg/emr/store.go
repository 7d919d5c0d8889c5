package emr

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
)

// Store persists power_samples and energy_emr rows.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore builds an emr Store.
func NewStore(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "emr"))}
}

// InsertPowerSample stores a power sample honoring the
// (key, ts, source, COALESCE(mapping_id,0)) dedup index. mappingID may be
// nil for non-mapped sources.
func (s *Store) InsertPowerSample(ctx context.Context, sample Sample, quality string, mappingID *int64, rawPayload string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `
		INSERT INTO power_samples (ts, key, value_w, source, quality, mapping_id, raw_payload, ingested_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (key, ts, source, COALESCE(mapping_id, 0)) DO UPDATE SET quality = EXCLUDED.quality
		RETURNING id
	`, sample.Ts.UTC(), sample.Key, sample.ValueW, sample.Source, quality, mappingID, rawPayload)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "insert power sample")
	}
	return id, nil
}

// LastState loads the most recent energy_emr row for emrKey, if any.
func (s *Store) LastState(ctx context.Context, emrKey string) (State, error) {
	var row struct {
		EmrKWh     float64        `db:"emr_kwh"`
		LastPowerW sql.NullFloat64 `db:"last_power_w"`
		LastTs     sql.NullTime   `db:"last_ts"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT emr_kwh, last_power_w, last_ts
		FROM energy_emr
		WHERE emr_key = $1
		ORDER BY ts DESC
		LIMIT 1
	`, emrKey)
	if err != nil {
		if isNoRows(err) {
			return State{}, nil
		}
		return State{}, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "load emr state")
	}

	state := State{EmrKWh: row.EmrKWh}
	if row.LastPowerW.Valid {
		v := row.LastPowerW.Float64
		state.LastPowerW = &v
	}
	if row.LastTs.Valid {
		t := row.LastTs.Time
		state.LastTs = &t
	}
	return state, nil
}

// InsertRow persists an integrated Row.
func (s *Store) InsertRow(ctx context.Context, row Row) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO energy_emr (ts, emr_key, emr_kwh, last_power_w, last_ts, method, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (emr_key, ts) DO UPDATE SET
			emr_kwh = EXCLUDED.emr_kwh,
			last_power_w = EXCLUDED.last_power_w,
			last_ts = EXCLUDED.last_ts,
			method = EXCLUDED.method,
			notes = EXCLUDED.notes
	`, row.Ts.UTC(), row.EmrKey, row.EmrKWh, row.LastPowerW, nullableTime(row.LastTs), row.Method, row.Notes)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "insert energy_emr row")
	}
	return nil
}

// PowerSamplePoint is one row of the power_samples read surface.
type PowerSamplePoint struct {
	Ts     time.Time `db:"ts" json:"ts"`
	Key    string    `db:"key" json:"key"`
	ValueW float64   `db:"value_w" json:"value_w"`
	Source string    `db:"source" json:"source"`
}

// LatestPowerSamples returns the most recent sample per key, optionally
// restricted to keys.
func (s *Store) LatestPowerSamples(ctx context.Context, keys []string) ([]PowerSamplePoint, error) {
	query := `
		SELECT DISTINCT ON (key) ts, key, value_w, source
		FROM power_samples
		WHERE ($1::text[] IS NULL OR key = ANY($1))
		ORDER BY key, ts DESC`
	var rows []PowerSamplePoint
	var keyArg any
	if len(keys) > 0 {
		keyArg = keys
	}
	if err := s.db.SelectContext(ctx, &rows, query, keyArg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "list latest power samples")
	}
	return rows, nil
}

// PowerSeries returns power_samples points for key in [from, to), ascending.
func (s *Store) PowerSeries(ctx context.Context, key string, from, to time.Time) ([]PowerSamplePoint, error) {
	if !from.Before(to) {
		return nil, apperrors.Validation("from must be before to")
	}
	var rows []PowerSamplePoint
	err := s.db.SelectContext(ctx, &rows, `
		SELECT ts, key, value_w, source
		FROM power_samples
		WHERE key = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC`, key, from.UTC(), to.UTC())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "fetch power series")
	}
	return rows, nil
}

// EMRPoint is one row of the energy_emr read surface.
type EMRPoint struct {
	Ts         time.Time       `db:"ts" json:"ts"`
	EmrKey     string          `db:"emr_key" json:"emr_key"`
	EmrKWh     float64         `db:"emr_kwh" json:"emr_kwh"`
	LastPowerW sql.NullFloat64 `db:"last_power_w" json:"-"`
	Method     string          `db:"method" json:"method"`
}

// LatestEMR returns the most recent energy_emr row per key.
func (s *Store) LatestEMR(ctx context.Context, keys []string) ([]EMRPoint, error) {
	var keyArg any
	if len(keys) > 0 {
		keyArg = keys
	}
	var rows []EMRPoint
	err := s.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (emr_key) ts, emr_key, emr_kwh, last_power_w, method
		FROM energy_emr
		WHERE ($1::text[] IS NULL OR emr_key = ANY($1))
		ORDER BY emr_key, ts DESC`, keyArg)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "list latest emr rows")
	}
	return rows, nil
}

// EMRSeries returns energy_emr points for emrKey in [from, to), ascending.
func (s *Store) EMRSeries(ctx context.Context, emrKey string, from, to time.Time) ([]EMRPoint, error) {
	if !from.Before(to) {
		return nil, apperrors.Validation("from must be before to")
	}
	var rows []EMRPoint
	err := s.db.SelectContext(ctx, &rows, `
		SELECT ts, emr_key, emr_kwh, last_power_w, method
		FROM energy_emr
		WHERE emr_key = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC`, emrKey, from.UTC(), to.UTC())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "fetch emr series")
	}
	return rows, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}
