package jobsup

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPreferencesMock(t *testing.T) (*Preferences, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "sqlmock")
	t.Cleanup(func() { _ = db.Close() })
	return NewPreferences(db, zap.NewNop()), mock
}

func TestPreferences_Get_Unset(t *testing.T) {
	prefs, mock := newPreferencesMock(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM runtime_preferences")).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, ok, err := prefs.Get(context.Background(), PreferenceAutoRunPreset)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPreferences_Set(t *testing.T) {
	prefs, mock := newPreferencesMock(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO runtime_preferences")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := prefs.Set(context.Background(), PreferenceMeasurementSyncOn, "true")
	require.NoError(t, err)
}

func TestPreferences_GetBool_DefaultsWhenUnset(t *testing.T) {
	prefs, mock := newPreferencesMock(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM runtime_preferences")).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	v, err := prefs.GetBool(context.Background(), PreferenceAutoRunPreset, true)
	require.NoError(t, err)
	assert.True(t, v)
}
