package output

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
)

// Store persists output_signal_access_state rows.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore builds an output Store.
func NewStore(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "output_store"))}
}

// RecordFetch upserts a signal's access-state row, incrementing
// fetch_count and stamping last_fetch_ts/last_fetch_client on every
// pull.
func (s *Store) RecordFetch(ctx context.Context, signalKey, client string, fetchedAt time.Time) (AccessState, error) {
	var state AccessState
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO output_signal_access_state (signal_key, last_fetch_ts, last_fetch_client, fetch_count, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (signal_key) DO UPDATE SET
			last_fetch_ts = EXCLUDED.last_fetch_ts,
			last_fetch_client = EXCLUDED.last_fetch_client,
			fetch_count = output_signal_access_state.fetch_count + 1,
			updated_at = now()
		RETURNING signal_key, resource_id, last_fetch_ts, last_fetch_client, fetch_count
	`, signalKey, fetchedAt, client).
		Scan(&state.SignalKey, &state.ResourceID, &state.LastFetchTs, &state.LastFetchClient, &state.FetchCount)
	if err != nil {
		return AccessState{}, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "record output signal fetch")
	}
	return state, nil
}

// AccessStateFor loads the current access state for signalKey, or a
// zero-value state with FetchCount 0 if it has never been fetched.
func (s *Store) AccessStateFor(ctx context.Context, signalKey string) (AccessState, error) {
	var state AccessState
	err := s.db.GetContext(ctx, &state, `
		SELECT signal_key, resource_id, last_fetch_ts, last_fetch_client, fetch_count
		FROM output_signal_access_state
		WHERE signal_key = $1
	`, signalKey)
	if err != nil {
		if err == sql.ErrNoRows {
			return AccessState{SignalKey: signalKey}, nil
		}
		return AccessState{}, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "load output signal access state")
	}
	return state, nil
}
