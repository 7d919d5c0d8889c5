package parameters

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

func testLayout() *FieldLayout {
	max := 86400.0
	min := 1.0
	return NewFieldLayoutFromCategories([]FieldCategory{
		{
			CategoryID: "ems",
			Title:      "EMS",
			Fields: []FieldDefinition{
				{
					FieldID:     "ems.interval",
					Label:       "EMS interval",
					Required:    true,
					ValueType:   "number",
					Unit:        "s",
					Path:        "ems.interval",
					Constraints: FieldConstraints{Minimum: &min, Maximum: &max},
				},
			},
		},
	})
}

func newSurfaceMock(t *testing.T) (*Surface, *Store, *SetupStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "sqlmock")
	t.Cleanup(func() { _ = db.Close() })

	profiles := NewStore(db, zap.NewNop())
	events := NewSetupStore(db, zap.NewNop())
	surface := NewSurface(testLayout(), events, profiles, nil)
	return surface, profiles, events, mock
}

func TestSurface_ReadField_MissingWhenNoEvent(t *testing.T) {
	surface, _, _, mock := newSurfaceMock(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	mock.ExpectQuery(regexp.QuoteMeta("FROM setup_field_events")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "field_id", "source", "raw_value_text", "normalized_value_json", "event_ts", "apply_status", "error_text", "created_at",
		}))

	status, err := surface.ReadField(context.Background(), "ems.interval")
	require.NoError(t, err)
	assert.True(t, status.Missing)
	assert.False(t, status.HasValue)
}

func TestSurface_ReadField_UnknownFieldRejected(t *testing.T) {
	surface, _, _, mock := newSurfaceMock(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	_, err := surface.ReadField(context.Background(), "nonexistent")
	assert.Error(t, err)
}

func TestSurface_WriteField_RejectsOutOfRangeValue(t *testing.T) {
	surface, _, _, mock := newSurfaceMock(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO setup_field_events")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	_, err := surface.WriteField(context.Background(), "ems.interval", "", "999999", FieldSourceHTTP, time.Now(), 0)
	assert.Error(t, err)
}

func TestSurface_WriteField_AcceptsAndMergesIntoDraft(t *testing.T) {
	surface, _, _, mock := newSurfaceMock(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO setup_field_events")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	mock.ExpectQuery(regexp.QuoteMeta("FROM parameter_profiles")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "is_active"}).
			AddRow(1, "default", nil, true))

	mock.ExpectQuery(regexp.QuoteMeta("FROM parameter_profile_revisions")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "profile_id", "revision_no", "source", "payload_json", "validation_status",
			"validation_issues_json", "is_current_draft", "is_last_applied", "applied_at", "created_at",
		}))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(revision_no)")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE parameter_profile_revisions SET is_current_draft = false")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO parameter_profile_revisions")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "profile_id", "revision_no", "source", "payload_json", "validation_status",
			"validation_issues_json", "is_current_draft", "is_last_applied", "applied_at", "created_at",
		}).AddRow(2, 1, 1, "dynamic_input", `{"ems":{"interval":900}}`, "valid", nil, true, false, nil, time.Now()))
	mock.ExpectCommit()

	status, err := surface.WriteField(context.Background(), "ems.interval", "", "900", FieldSourceHTTP, time.Now(), 0)
	require.NoError(t, err)
	assert.True(t, status.HasValue)
	assert.Equal(t, 900.0, status.CurrentValue.Number)
}
