package emr

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meintechblog/eos-backend/pkg/metrics"
)

func testPipeline(t *testing.T) (*Pipeline, sqlmock.Sqlmock) {
	t.Helper()
	store, mock := newMockStore(t)
	integrator := NewIntegrator(testEnvelopes(), 1, 900, 500, nil)
	mappings := []KeyMapping{
		{PowerKey: "grid_import_power_w", EmrKey: "grid_import"},
		{PowerKey: "grid_export_power_w", EmrKey: "grid_export"},
	}
	return NewPipeline(store, integrator, mappings, nil, zap.NewNop()), mock
}

func TestPipeline_ProcessSample_UntrackedKeyIsIgnored(t *testing.T) {
	pipeline, mock := testPipeline(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	row, err := pipeline.ProcessSample(context.Background(), Sample{Key: "unmapped_w", Ts: time.Now(), ValueW: 10}, "ok", nil, "")
	require.NoError(t, err)
	assert.Equal(t, Row{}, row)
}

func TestPipeline_ProcessGridSample_NoCounterpartIntegratesNormally(t *testing.T) {
	pipeline, mock := testPipeline(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	ts := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM power_samples")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"ts", "key", "value_w", "source"}))

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO power_samples")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM energy_emr")).
		WithArgs("grid_import").
		WillReturnRows(sqlmock.NewRows([]string{"emr_kwh", "last_power_w", "last_ts"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO energy_emr")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	row, err := pipeline.ProcessGridSample(context.Background(),
		Sample{Key: "grid_import_power_w", Ts: ts, ValueW: 1000, Source: "http_input"},
		"grid_export_power_w", "ok", nil, "")
	require.NoError(t, err)
	assert.True(t, row.Accepted)
}

func TestPipeline_ProcessGridSample_ConflictRefusesSampleWithoutStorageWrites(t *testing.T) {
	pipeline, mock := testPipeline(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	ts := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM power_samples")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"ts", "key", "value_w", "source"}).
			AddRow(ts, "grid_export_power_w", 300.0, "http_input"))

	row, err := pipeline.ProcessGridSample(context.Background(),
		Sample{Key: "grid_import_power_w", Ts: ts, ValueW: 1000, Source: "http_input"},
		"grid_export_power_w", "ok", nil, "")
	require.NoError(t, err)
	assert.Equal(t, Row{}, row)
}

func TestPipeline_ProcessGridSample_ConflictIncrementsDroppedMetric(t *testing.T) {
	store, mock := newMockStore(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	integrator := NewIntegrator(testEnvelopes(), 1, 900, 500, nil)
	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(reg)
	pipeline := NewPipeline(store, integrator, []KeyMapping{
		{PowerKey: "grid_import_power_w", EmrKey: "grid_import"},
		{PowerKey: "grid_export_power_w", EmrKey: "grid_export"},
	}, metricsRegistry, zap.NewNop())

	ts := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM power_samples")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"ts", "key", "value_w", "source"}).
			AddRow(ts, "grid_export_power_w", 300.0, "http_input"))

	_, err := pipeline.ProcessGridSample(context.Background(),
		Sample{Key: "grid_import_power_w", Ts: ts, ValueW: 1000, Source: "http_input"},
		"grid_export_power_w", "ok", nil, "")
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metricsRegistry.EMRSamplesDropped.WithLabelValues("grid_conflict")))
}
