package signalstore

import (
	"context"
	"time"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
)

// RunRollupJob compacts measurements newer than the last successful
// rollup watermark into 5m rows, then derives 1h and 1d rollups from the
// 5m rows to keep the pipeline monotonic. It is idempotent:
// re-running over the same window produces byte-identical rollup rows.
func (s *Store) RunRollupJob(ctx context.Context) (JobRunSnapshot, error) {
	started := time.Now().UTC()
	jobID, err := s.startJobRun(ctx, "rollup", started)
	if err != nil {
		return JobRunSnapshot{}, err
	}

	affected, jobErr := s.rollupOnce(ctx)
	return s.finishJobRun(ctx, jobID, "rollup", started, affected, jobErr)
}

func (s *Store) rollupOnce(ctx context.Context) (int64, error) {
	watermark, err := s.rollupWatermark(ctx)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO signal_rollup_5m (signal_id, bucket_start, min_value, max_value, avg_value, sum_value, sample_count, last_number, last_text)
		SELECT
			m.signal_id,
			to_timestamp(floor(extract(epoch FROM m.ts) / 300) * 300) AT TIME ZONE 'UTC' AS bucket_start,
			MIN(m.value_number), MAX(m.value_number), AVG(m.value_number), SUM(m.value_number),
			COUNT(*),
			(array_agg(m.value_number ORDER BY m.ts DESC))[1],
			(array_agg(m.value_text ORDER BY m.ts DESC))[1]
		FROM signal_measurements_raw m
		WHERE m.ts > $1
		GROUP BY m.signal_id, bucket_start
		ON CONFLICT (signal_id, bucket_start) DO UPDATE SET
			min_value = EXCLUDED.min_value,
			max_value = EXCLUDED.max_value,
			avg_value = EXCLUDED.avg_value,
			sum_value = EXCLUDED.sum_value,
			sample_count = EXCLUDED.sample_count,
			last_number = EXCLUDED.last_number,
			last_text = EXCLUDED.last_text
	`, watermark)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "rollup 5m window")
	}
	affected5m, _ := res.RowsAffected()

	affected1h, err := s.deriveRollup(ctx, "signal_rollup_5m", "signal_rollup_1h", 3600)
	if err != nil {
		return affected5m, err
	}
	affected1d, err := s.deriveRollup(ctx, "signal_rollup_5m", "signal_rollup_1d", 86400)
	if err != nil {
		return affected5m + affected1h, err
	}

	return affected5m + affected1h + affected1d, nil
}

func (s *Store) deriveRollup(ctx context.Context, sourceTable, destTable string, bucketSeconds int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO `+destTable+` (signal_id, bucket_start, min_value, max_value, avg_value, sum_value, sample_count, last_number, last_text)
		SELECT
			signal_id,
			to_timestamp(floor(extract(epoch FROM bucket_start) / $1) * $1) AT TIME ZONE 'UTC',
			MIN(min_value), MAX(max_value),
			SUM(avg_value * sample_count) / NULLIF(SUM(sample_count), 0),
			SUM(sum_value), SUM(sample_count),
			(array_agg(last_number ORDER BY bucket_start DESC))[1],
			(array_agg(last_text ORDER BY bucket_start DESC))[1]
		FROM `+sourceTable+`
		GROUP BY signal_id, to_timestamp(floor(extract(epoch FROM bucket_start) / $1) * $1) AT TIME ZONE 'UTC'
		ON CONFLICT (signal_id, bucket_start) DO UPDATE SET
			min_value = EXCLUDED.min_value,
			max_value = EXCLUDED.max_value,
			avg_value = EXCLUDED.avg_value,
			sum_value = EXCLUDED.sum_value,
			sample_count = EXCLUDED.sample_count,
			last_number = EXCLUDED.last_number,
			last_text = EXCLUDED.last_text
	`, bucketSeconds)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "derive rollup "+destTable)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) rollupWatermark(ctx context.Context) (time.Time, error) {
	var watermark time.Time
	err := s.db.GetContext(ctx, &watermark, `
		SELECT COALESCE(MAX(finished_at), 'epoch'::timestamptz)
		FROM data_pipeline_job_runs
		WHERE job_name = 'rollup' AND status = 'ok'
	`)
	if err != nil {
		return time.Time{}, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "read rollup watermark")
	}
	return watermark, nil
}

func (s *Store) startJobRun(ctx context.Context, jobName string, startedAt time.Time) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `
		INSERT INTO data_pipeline_job_runs (job_name, started_at, status, affected_rows)
		VALUES ($1, $2, 'running', 0)
		RETURNING id
	`, jobName, startedAt)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "start job run")
	}
	return id, nil
}

func (s *Store) finishJobRun(ctx context.Context, jobID int64, jobName string, startedAt time.Time, affected int64, jobErr error) (JobRunSnapshot, error) {
	status := "ok"
	var errText *string
	if jobErr != nil {
		status = "error"
		msg := jobErr.Error()
		errText = &msg
	}
	finishedAt := time.Now().UTC()

	_, updateErr := s.db.ExecContext(ctx, `
		UPDATE data_pipeline_job_runs
		SET finished_at = $1, status = $2, affected_rows = $3, error_text = $4
		WHERE id = $5
	`, finishedAt, status, affected, errText, jobID)
	if updateErr != nil {
		return JobRunSnapshot{}, apperrors.Wrap(updateErr, apperrors.ErrorTypeDatabase, "finalize job run")
	}

	snapshot := JobRunSnapshot{
		ID:           jobID,
		JobName:      jobName,
		StartedAt:    startedAt,
		FinishedAt:   nullTime(finishedAt),
		Status:       status,
		AffectedRows: affected,
	}
	if errText != nil {
		snapshot.ErrorText = nullString(*errText)
	}
	return snapshot, jobErr
}

// GetPipelineStatus returns the last rollup/retention job snapshots plus
// 24h row counts and catalog size.
func (s *Store) GetPipelineStatus(ctx context.Context) (PipelineStatus, error) {
	var status PipelineStatus

	rollup, err := s.lastJobRun(ctx, "rollup")
	if err != nil {
		return status, err
	}
	retention, err := s.lastJobRun(ctx, "retention")
	if err != nil {
		return status, err
	}
	status.LastRollupRun = rollup
	status.LastRetentionRun = retention

	if err := s.db.GetContext(ctx, &status.RawRows24h, `
		SELECT COUNT(*) FROM signal_measurements_raw WHERE ts > now() - interval '24 hours'`); err != nil {
		return status, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "count raw rows")
	}
	if err := s.db.GetContext(ctx, &status.RollupRows24h, `
		SELECT COUNT(*) FROM signal_rollup_5m WHERE bucket_start > now() - interval '24 hours'`); err != nil {
		return status, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "count rollup rows")
	}
	if err := s.db.GetContext(ctx, &status.SignalCatalogCount, `SELECT COUNT(*) FROM signal_catalog`); err != nil {
		return status, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "count catalog")
	}
	return status, nil
}

func (s *Store) lastJobRun(ctx context.Context, jobName string) (*JobRunSnapshot, error) {
	var snap JobRunSnapshot
	err := s.db.GetContext(ctx, &snap, `
		SELECT id, job_name, started_at, finished_at, status, affected_rows, details_json, error_text
		FROM data_pipeline_job_runs
		WHERE job_name = $1
		ORDER BY started_at DESC
		LIMIT 1
	`, jobName)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "read last job run")
	}
	return &snap, nil
}
