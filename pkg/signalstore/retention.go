package signalstore

import (
	"context"
	"time"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
)

// RetentionSettings bounds how long each resolution tier is kept,
// grounded on original_source's retention settings in config.py: raw
// rows are pruned aggressively once rolled up, coarser tiers are kept
// much longer.
type RetentionSettings struct {
	RawMaxAge      time.Duration
	Rollup5mMaxAge time.Duration
	Rollup1hMaxAge time.Duration
	Rollup1dMaxAge time.Duration
}

// DefaultRetentionSettings mirrors the original's defaults: 3 days of raw
// samples, 30 days of 5m rollups, 1 year of 1h rollups, and indefinite 1d
// rollups.
func DefaultRetentionSettings() RetentionSettings {
	return RetentionSettings{
		RawMaxAge:      3 * 24 * time.Hour,
		Rollup5mMaxAge: 30 * 24 * time.Hour,
		Rollup1hMaxAge: 365 * 24 * time.Hour,
		Rollup1dMaxAge: 0, // 0 means keep forever
	}
}

// RunRetentionJob deletes rows older than each tier's max age and records
// the run in data_pipeline_job_runs.
func (s *Store) RunRetentionJob(ctx context.Context, settings RetentionSettings) (JobRunSnapshot, error) {
	started := time.Now().UTC()
	jobID, err := s.startJobRun(ctx, "retention", started)
	if err != nil {
		return JobRunSnapshot{}, err
	}

	affected, jobErr := s.retentionOnce(ctx, settings)
	return s.finishJobRun(ctx, jobID, "retention", started, affected, jobErr)
}

func (s *Store) retentionOnce(ctx context.Context, settings RetentionSettings) (int64, error) {
	var total int64

	n, err := s.pruneOlderThan(ctx, "signal_measurements_raw", "ts", settings.RawMaxAge)
	if err != nil {
		return total, err
	}
	total += n

	n, err = s.pruneOlderThan(ctx, "signal_rollup_5m", "bucket_start", settings.Rollup5mMaxAge)
	if err != nil {
		return total, err
	}
	total += n

	n, err = s.pruneOlderThan(ctx, "signal_rollup_1h", "bucket_start", settings.Rollup1hMaxAge)
	if err != nil {
		return total, err
	}
	total += n

	n, err = s.pruneOlderThan(ctx, "signal_rollup_1d", "bucket_start", settings.Rollup1dMaxAge)
	if err != nil {
		return total, err
	}
	total += n

	return total, nil
}

func (s *Store) pruneOlderThan(ctx context.Context, table, column string, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+column+` < $1`, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "prune "+table)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
