package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
)

// Store persists input observations, mapping lookups, and telemetry
// events.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore builds an ingest Store.
func NewStore(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "ingest"))}
}

// UpsertInputObservation records the latest sighting of (channel_id, input_key).
func (s *Store) UpsertInputObservation(ctx context.Context, channelID int64, inputKey, normalizedKey, payload string, meta map[string]any, eventTs time.Time) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "marshal observation meta")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO input_observations
			(channel_id, input_key, normalized_key, first_seen, last_seen, last_payload, message_count, last_meta_json)
		VALUES ($1,$2,$3,$4,$4,$5,1,$6)
		ON CONFLICT (channel_id, input_key) DO UPDATE SET
			last_seen = EXCLUDED.last_seen,
			last_payload = EXCLUDED.last_payload,
			message_count = input_observations.message_count + 1,
			last_meta_json = EXCLUDED.last_meta_json
	`, channelID, inputKey, normalizedKey, eventTs.UTC(), payload, string(metaJSON))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "upsert input observation")
	}
	return nil
}

// MappingByChannelInputKey looks up the enabled mapping for
// (channel_id, normalized_key), returning (nil, nil) when absent.
func (s *Store) MappingByChannelInputKey(ctx context.Context, channelID int64, normalizedKey string) (*Mapping, error) {
	var row struct {
		ID              int64          `db:"id"`
		EosField        string         `db:"eos_field"`
		ChannelID       int64          `db:"channel_id"`
		InputKey        string         `db:"input_key"`
		MqttTopic       sql.NullString `db:"mqtt_topic"`
		PayloadPath     sql.NullString `db:"payload_path"`
		TimestampPath   sql.NullString `db:"timestamp_path"`
		Unit            sql.NullString `db:"unit"`
		ValueMultiplier float64        `db:"value_multiplier"`
		SignConvention  string         `db:"sign_convention"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT id, eos_field, channel_id, input_key, mqtt_topic, payload_path,
		       timestamp_path, unit, value_multiplier, sign_convention
		FROM input_mappings
		WHERE channel_id = $1 AND input_key = $2 AND enabled = true
		LIMIT 1
	`, channelID, normalizedKey)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "lookup mapping")
	}

	mapping := &Mapping{
		ID:              row.ID,
		EosField:        row.EosField,
		ChannelID:       row.ChannelID,
		InputKey:        row.InputKey,
		PayloadPath:     row.PayloadPath.String,
		TimestampPath:   row.TimestampPath.String,
		Unit:            row.Unit.String,
		ValueMultiplier: row.ValueMultiplier,
		SignConvention:  SignConvention(row.SignConvention),
	}
	if row.MqttTopic.Valid {
		topic := row.MqttTopic.String
		mapping.MqttTopic = &topic
	}
	return mapping, nil
}

// CreateTelemetryEvent persists a telemetry_events row and returns its id,
// used as signal_measurements_raw.source_ref_id.
func (s *Store) CreateTelemetryEvent(ctx context.Context, mappingID int64, eosField, rawPayload string, parsedValue *string, eventTs time.Time) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `
		INSERT INTO telemetry_events (mapping_id, eos_field, raw_payload, parsed_value, ts)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, mappingID, eosField, rawPayload, parsedValue, eventTs.UTC())
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "create telemetry event")
	}
	return id, nil
}

// ListEnabledMappings returns every enabled mapping, used to snapshot the
// mapping table into an orchestrator run artifact.
func (s *Store) ListEnabledMappings(ctx context.Context) ([]Mapping, error) {
	var rows []struct {
		ID              int64          `db:"id"`
		EosField        string         `db:"eos_field"`
		ChannelID       int64          `db:"channel_id"`
		InputKey        string         `db:"input_key"`
		MqttTopic       sql.NullString `db:"mqtt_topic"`
		PayloadPath     sql.NullString `db:"payload_path"`
		TimestampPath   sql.NullString `db:"timestamp_path"`
		Unit            sql.NullString `db:"unit"`
		ValueMultiplier float64        `db:"value_multiplier"`
		SignConvention  string         `db:"sign_convention"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, eos_field, channel_id, input_key, mqtt_topic, payload_path,
		       timestamp_path, unit, value_multiplier, sign_convention
		FROM input_mappings
		WHERE enabled = true
		ORDER BY id`)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "list enabled mappings")
	}
	out := make([]Mapping, 0, len(rows))
	for _, row := range rows {
		m := Mapping{
			ID:              row.ID,
			EosField:        row.EosField,
			ChannelID:       row.ChannelID,
			InputKey:        row.InputKey,
			PayloadPath:     row.PayloadPath.String,
			TimestampPath:   row.TimestampPath.String,
			Unit:            row.Unit.String,
			ValueMultiplier: row.ValueMultiplier,
			SignConvention:  SignConvention(row.SignConvention),
		}
		if row.MqttTopic.Valid {
			topic := row.MqttTopic.String
			m.MqttTopic = &topic
		}
		out = append(out, m)
	}
	return out, nil
}

// ChannelByCode loads an input channel by its code, returning (nil, nil)
// when absent.
func (s *Store) ChannelByCode(ctx context.Context, code string) (*Channel, error) {
	var ch Channel
	err := s.db.GetContext(ctx, &ch, `
		SELECT id, code, name, channel_type, enabled
		FROM input_channels
		WHERE code = $1
	`, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "lookup channel by code")
	}
	return &ch, nil
}

// DefaultChannel loads the default channel for channelType, returning
// (nil, nil) when none is configured.
func (s *Store) DefaultChannel(ctx context.Context, channelType string) (*Channel, error) {
	var ch Channel
	err := s.db.GetContext(ctx, &ch, `
		SELECT id, code, name, channel_type, enabled
		FROM input_channels
		WHERE channel_type = $1 AND is_default = true
		LIMIT 1
	`, channelType)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "lookup default channel")
	}
	return &ch, nil
}
