// Package signalstore implements the C2 signal backbone: the canonical
// measurement log, latest-state cache, rollups, catalog, and the
// retention/rollup background jobs, grounded on
// original_source's app/repositories/signal_backbone.py (table names) and
// the teacher's sqlx + zap repository shape
// (test/unit/datastorage/workflow_repository_test.go).
package signalstore

import (
	"database/sql"
	"math"
	"time"
)

// ValueType is the catalog-declared type of a signal's values.
type ValueType string

const (
	ValueTypeNumber ValueType = "number"
	ValueTypeText   ValueType = "text"
	ValueTypeBool   ValueType = "bool"
	ValueTypeJSON   ValueType = "json"
)

// QualityStatus classifies a measurement's provenance.
type QualityStatus string

const (
	QualityOK          QualityStatus = "ok"
	QualityGap         QualityStatus = "gap"
	QualityInterpolated QualityStatus = "interpolated"
)

// Resolution selects which table fetch_signal_series reads from.
type Resolution string

const (
	ResolutionRaw Resolution = "raw"
	Resolution5m  Resolution = "5m"
	Resolution1h  Resolution = "1h"
	Resolution1d  Resolution = "1d"
)

// MaxInt32 bounds ingest_lag_ms.
const MaxInt32 = math.MaxInt32

// Measurement is a single value to ingest into the backbone.
type Measurement struct {
	SignalKey     string
	Label         string
	ValueType     ValueType
	CanonicalUnit sql.NullString
	Value         any // string, float64, bool, or json.RawMessage depending on ValueType
	Ts            time.Time
	Quality       QualityStatus
	SourceType    string
	RunID         sql.NullInt64
	SourceRefID   sql.NullInt64
	Tags          map[string]any
	IngestedAt    time.Time
}

// Point is a single series sample returned by fetch_signal_series.
type Point struct {
	Ts         time.Time       `db:"bucket_start" json:"ts"`
	Min        sql.NullFloat64 `db:"min_value" json:"min,omitempty"`
	Max        sql.NullFloat64 `db:"max_value" json:"max,omitempty"`
	Avg        sql.NullFloat64 `db:"avg_value" json:"avg,omitempty"`
	Sum        sql.NullFloat64 `db:"sum_value" json:"sum,omitempty"`
	Count      sql.NullInt64   `db:"sample_count" json:"count,omitempty"`
	LastNumber sql.NullFloat64 `db:"last_number" json:"last_number,omitempty"`
	LastText   sql.NullString  `db:"last_text" json:"last_text,omitempty"`
}

// LatestRow is the joined catalog x latest-state projection.
type LatestRow struct {
	SignalKey     string          `db:"signal_key"`
	Label         string          `db:"label"`
	ValueType     string          `db:"value_type"`
	CanonicalUnit sql.NullString  `db:"canonical_unit"`
	Ts            sql.NullTime    `db:"ts"`
	ValueNumber   sql.NullFloat64 `db:"value_number"`
	ValueText     sql.NullString  `db:"value_text"`
	ValueBool     sql.NullBool    `db:"value_bool"`
	ValueJSON     sql.NullString  `db:"value_json"`
	Quality       sql.NullString  `db:"quality_status"`
	SourceType    sql.NullString  `db:"source_type"`
}

// JobRunSnapshot mirrors a row in data_pipeline_job_runs.
type JobRunSnapshot struct {
	ID           int64          `db:"id"`
	JobName      string         `db:"job_name"`
	StartedAt    time.Time      `db:"started_at"`
	FinishedAt   sql.NullTime   `db:"finished_at"`
	Status       string         `db:"status"`
	AffectedRows int64          `db:"affected_rows"`
	DetailsJSON  sql.NullString `db:"details_json"`
	ErrorText    sql.NullString `db:"error_text"`
}

// PipelineStatus is the response shape for get_data_pipeline_status.
type PipelineStatus struct {
	LastRollupRun      *JobRunSnapshot
	LastRetentionRun   *JobRunSnapshot
	RawRows24h         int64
	RollupRows24h      int64
	SignalCatalogCount int64
}

// ClampIngestLagMs computes
// ingest_lag_ms = max(0, min(INT32_MAX, (ingested_at - ts) in ms)).
func ClampIngestLagMs(ts, ingestedAt time.Time) int32 {
	lag := ingestedAt.Sub(ts).Milliseconds()
	if lag < 0 {
		return 0
	}
	if lag > MaxInt32 {
		return MaxInt32
	}
	return int32(lag)
}

// predictionAllowlist enumerates the only prediction.* signal keys
// accepted at ingest, per migration 0013.
var predictionAllowlist = map[string]struct{}{
	"prediction.elecprice_marketprice_wh":            {},
	"prediction.elecprice_marketprice_kwh":            {},
	"prediction.pvforecast_ac_power":                  {},
	"prediction.pvforecastakkudoktor_ac_power_any":    {},
	"prediction.loadforecast_power_w":                 {},
	"prediction.load_mean_adjusted":                   {},
	"prediction.load_mean":                            {},
	"prediction.loadakkudoktor_mean_power_w":          {},
}

// IsAllowedPredictionSignal reports whether key is accepted under the
// prediction.* allowlist. Non-prediction keys are always allowed by this
// check (the allowlist only restricts the prediction.* namespace).
func IsAllowedPredictionSignal(key string) bool {
	const prefix = "prediction."
	if len(key) < len(prefix) || key[:len(prefix)] != prefix {
		return true
	}
	_, ok := predictionAllowlist[key]
	return ok
}
