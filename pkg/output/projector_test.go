package output

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunLookup struct {
	runID        int64
	hasSucceeded bool
	instructions []Instruction
	err          error
}

func (f *fakeRunLookup) LatestSucceededRunID(ctx context.Context) (int64, bool, error) {
	return f.runID, f.hasSucceeded, f.err
}

func (f *fakeRunLookup) InstructionsForRun(ctx context.Context, runID int64) ([]Instruction, error) {
	return f.instructions, f.err
}

type fakeStaleness struct {
	stale map[string]bool
}

func (f *fakeStaleness) IsStale(ctx context.Context, signalKey string, fetchedAt time.Time) (bool, error) {
	return f.stale[signalKey], nil
}

func TestProjector_Bundle_DefaultsToLatestSucceededRun(t *testing.T) {
	fetchedAt := time.Date(2026, 2, 21, 14, 0, 0, 0, time.UTC)
	runs := &fakeRunLookup{
		runID:        42,
		hasSucceeded: true,
		instructions: []Instruction{
			{ID: 1, ResourceID: "battery-1", SignalKey: "battery_charge_kw", ExecutionTime: ts("2026-02-21T13:00:00Z"), RequestedPowerKW: 2.5, OperationMode: "charge"},
		},
	}

	proj := NewProjector(runs, nil, nil, []string{"battery_charge_kw", "ev_charge_kw"}, "/api/eos/output-signals", nil)

	bundle, err := proj.Bundle(context.Background(), 0, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(42), bundle.RunID)
	assert.Equal(t, StatusOK, bundle.Signals["battery_charge_kw"].Status)
	assert.Equal(t, 2.5, *bundle.Signals["battery_charge_kw"].RequestedPowerKW)
	assert.Equal(t, StatusMissing, bundle.Signals["ev_charge_kw"].Status)
}

func TestProjector_Bundle_NoSucceededRunReturnsAllMissing(t *testing.T) {
	runs := &fakeRunLookup{hasSucceeded: false}
	proj := NewProjector(runs, nil, nil, []string{"battery_charge_kw"}, "/api/eos/output-signals", nil)

	bundle, err := proj.Bundle(context.Background(), 0, time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusMissing, bundle.Signals["battery_charge_kw"].Status)
}

func TestProjector_Bundle_MarksGuardedWhenGuardApplied(t *testing.T) {
	fetchedAt := time.Date(2026, 2, 21, 14, 0, 0, 0, time.UTC)
	runs := &fakeRunLookup{
		runID:        7,
		hasSucceeded: true,
		instructions: []Instruction{
			{ID: 1, ResourceID: "battery-1", SignalKey: "battery_charge_kw", ExecutionTime: ts("2026-02-21T13:00:00Z"), RequestedPowerKW: 0, GuardApplied: true},
		},
	}
	proj := NewProjector(runs, nil, nil, []string{"battery_charge_kw"}, "/api/eos/output-signals", nil)

	bundle, err := proj.Bundle(context.Background(), 0, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, StatusGuarded, bundle.Signals["battery_charge_kw"].Status)
}

func TestProjector_Bundle_MarksStaleViaLiveStaleness(t *testing.T) {
	fetchedAt := time.Date(2026, 2, 21, 14, 0, 0, 0, time.UTC)
	runs := &fakeRunLookup{
		runID:        7,
		hasSucceeded: true,
		instructions: []Instruction{
			{ID: 1, ResourceID: "battery-1", SignalKey: "battery_charge_kw", ExecutionTime: ts("2026-02-21T13:00:00Z"), RequestedPowerKW: 1.0},
		},
	}
	staleness := &fakeStaleness{stale: map[string]bool{"battery_charge_kw": true}}
	proj := NewProjector(runs, staleness, nil, []string{"battery_charge_kw"}, "/api/eos/output-signals", nil)

	bundle, err := proj.Bundle(context.Background(), 0, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, StatusStale, bundle.Signals["battery_charge_kw"].Status)
}

func TestProjector_RecordBundleFetch_MergesAccessStateIntoItems(t *testing.T) {
	store, mock := newOutputStoreMock(t)
	defer func() { assert.NoError(t, mock.ExpectationsWereMet()) }()

	fetchedAt := time.Date(2026, 2, 21, 14, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO output_signal_access_state")).
		WithArgs("battery_charge_kw", fetchedAt, "loxone-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"signal_key", "resource_id", "last_fetch_ts", "last_fetch_client", "fetch_count",
		}).AddRow("battery_charge_kw", nil, fetchedAt, "loxone-1", 4))

	bundle := Bundle{
		FetchedAt: fetchedAt,
		Signals: map[string]*BundleItem{
			"battery_charge_kw": {SignalKey: "battery_charge_kw", Status: StatusOK},
		},
	}

	proj := NewProjector(&fakeRunLookup{}, nil, store, []string{"battery_charge_kw"}, "/api/eos/output-signals", nil)
	err := proj.RecordBundleFetch(context.Background(), bundle, "loxone-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), bundle.Signals["battery_charge_kw"].FetchCount)
	assert.Equal(t, "loxone-1", bundle.Signals["battery_charge_kw"].LastFetchClient)
}
