package emr

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "sqlmock")
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, zap.NewNop()), mock
}

func TestStore_InsertPowerSample(t *testing.T) {
	store, mock := newMockStore(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO power_samples")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := store.InsertPowerSample(context.Background(), Sample{
		Key:    "pv_power_w",
		Ts:     time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC),
		ValueW: 1500,
		Source: "mqtt_input",
	}, "ok", nil, "")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestStore_LastState(t *testing.T) {
	store, mock := newMockStore(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	ts := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"emr_kwh", "last_power_w", "last_ts"}).
		AddRow(1.25, 1500.0, ts)
	mock.ExpectQuery(regexp.QuoteMeta("FROM energy_emr")).
		WithArgs("pv_kwh").
		WillReturnRows(rows)

	state, err := store.LastState(context.Background(), "pv_kwh")
	require.NoError(t, err)
	assert.Equal(t, 1.25, state.EmrKWh)
	require.NotNil(t, state.LastPowerW)
	assert.Equal(t, 1500.0, *state.LastPowerW)
}

func TestStore_InsertRow(t *testing.T) {
	store, mock := newMockStore(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO energy_emr")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	powerW := 1500.0
	ts := time.Date(2026, 2, 21, 12, 5, 0, 0, time.UTC)
	err := store.InsertRow(context.Background(), Row{
		EmrKey:     "pv_kwh",
		Ts:         ts,
		EmrKWh:     1.375,
		LastPowerW: &powerW,
		LastTs:     &ts,
		Method:     MethodIntegrate,
	})
	require.NoError(t, err)
}
