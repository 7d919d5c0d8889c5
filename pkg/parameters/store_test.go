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

func newStoreMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "sqlmock")
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, zap.NewNop()), mock
}

func TestStore_GetActiveProfile_NotFound(t *testing.T) {
	store, mock := newStoreMock(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	mock.ExpectQuery(regexp.QuoteMeta("FROM parameter_profiles")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "is_active"}))

	_, err := store.GetActiveProfile(context.Background())
	assert.Error(t, err)
}

func TestStore_CreateProfileRevision_AllocatesNextRevisionNo(t *testing.T) {
	store, mock := newStoreMock(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(revision_no)")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE parameter_profile_revisions SET is_current_draft = false")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "profile_id", "revision_no", "source", "payload_json", "validation_status",
		"validation_issues_json", "is_current_draft", "is_last_applied", "applied_at", "created_at",
	}).AddRow(8, 1, 4, "manual", `{"ems":{"mode":"IDLE"}}`, "unknown", nil, true, false, nil, now)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO parameter_profile_revisions")).WillReturnRows(rows)
	mock.ExpectCommit()

	payload := MapValue(map[string]Value{"ems": MapValue(map[string]Value{"mode": TextValue("IDLE")})})
	revision, err := store.CreateProfileRevision(context.Background(), 1, SourceManual, payload, ValidationUnknown, []string{}, true)
	require.NoError(t, err)
	assert.Equal(t, 4, revision.RevisionNo)
}

func TestStore_MarkRevisionAsLastApplied_NotFound(t *testing.T) {
	store, mock := newStoreMock(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE parameter_profile_revisions SET is_last_applied = false")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE parameter_profile_revisions")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "profile_id", "revision_no", "source", "payload_json", "validation_status",
			"validation_issues_json", "is_current_draft", "is_last_applied", "applied_at", "created_at",
		}))
	mock.ExpectRollback()

	_, err := store.MarkRevisionAsLastApplied(context.Background(), 1, 999)
	assert.Error(t, err)
}
