package jobsup

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
)

// Preference keys driving the scheduler's live toggles.
const (
	PreferenceAutoRunPreset       = "auto_run_preset"
	PreferenceMeasurementSyncOn   = "measurement_sync_enabled"
)

// Preferences is the key-value store backing runtime toggles.
type Preferences struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPreferences builds a Preferences store.
func NewPreferences(db *sqlx.DB, logger *zap.Logger) *Preferences {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preferences{db: db, logger: logger.With(zap.String("component", "runtime_preferences"))}
}

// Get returns the stored value for key, or (“”, false) if unset.
func (p *Preferences) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.db.GetContext(ctx, &value, `SELECT value FROM runtime_preferences WHERE key = $1`, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "load runtime preference")
	}
	return value, true, nil
}

// Set upserts key's value.
func (p *Preferences) Set(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO runtime_preferences (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, value)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "set runtime preference")
	}
	return nil
}

// GetBool is a convenience reader defaulting to def when unset or
// unparseable.
func (p *Preferences) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	value, ok, err := p.Get(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	parsed, parseErr := strconv.ParseBool(value)
	if parseErr != nil {
		return def, nil
	}
	return parsed, nil
}
