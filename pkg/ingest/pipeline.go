package ingest

import (
	"context"
	"database/sql"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meintechblog/eos-backend/pkg/emr"
	"github.com/meintechblog/eos-backend/pkg/metrics"
	"github.com/meintechblog/eos-backend/pkg/payload"
	"github.com/meintechblog/eos-backend/pkg/signalstore"
)

// gridConflictCounterparts pairs the two eos_fields whose instantaneous
// readings must agree within the EMR integrator's grid conflict threshold;
// fields absent from this map are handed off to C3 individually, with no
// counterpart check. Which fields actually integrate against an emr_key is
// decided by emr.Pipeline's own power-key -> emr-key mappings, not here.
var gridConflictCounterparts = map[string]string{
	"grid_import_power_w": "grid_export_power_w",
	"grid_export_power_w": "grid_import_power_w",
}

// Pipeline implements InputIngestPipelineService.ingest.
type Pipeline struct {
	store       *Store
	signals     *signalstore.Store
	parser      *payload.Parser
	emrPipeline *emr.Pipeline // optional; nil disables EMR hand-off
	metrics     *metrics.Registry
	logger      *zap.Logger
}

// NewPipeline builds an ingest Pipeline. emrPipeline and metricsRegistry may
// both be nil.
func NewPipeline(store *Store, signals *signalstore.Store, parser *payload.Parser, emrPipeline *emr.Pipeline, metricsRegistry *metrics.Registry, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{store: store, signals: signals, parser: parser, emrPipeline: emrPipeline, metrics: metricsRegistry, logger: logger.With(zap.String("component", "ingest"))}
}

func (p *Pipeline) recordAccepted(channelCode string, mappingMatched bool) {
	if p.metrics == nil {
		return
	}
	p.metrics.IngestAcceptedTotal.WithLabelValues(channelCode, strconv.FormatBool(mappingMatched)).Inc()
}

func (p *Pipeline) recordRejected(reason string) {
	if p.metrics == nil {
		return
	}
	p.metrics.IngestRejectedTotal.WithLabelValues(reason).Inc()
}

// Ingest runs the full C4 algorithm.
func (p *Pipeline) Ingest(ctx context.Context, channel Channel, inputKey, payloadText string, eventReceivedTs time.Time, metadata map[string]any, explicitTimestamp *time.Time) (Result, error) {
	eventReceivedUTC := eventReceivedTs.UTC()

	if IsParameterChannelPath(inputKey) {
		eventTs := eventReceivedUTC
		if explicitTimestamp != nil {
			eventTs = explicitTimestamp.UTC()
		}
		p.recordAccepted(channel.Code, false)
		return Result{
			Accepted:      true,
			ChannelID:     channel.ID,
			ChannelCode:   channel.Code,
			ChannelType:   channel.ChannelType,
			InputKey:      inputKey,
			NormalizedKey: strings.TrimSpace(inputKey),
			EventTs:       eventTs,
		}, nil
	}

	normalizedKey := NormalizeInputKey(inputKey)
	if metadata == nil {
		metadata = map[string]any{}
	}

	if err := p.store.UpsertInputObservation(ctx, channel.ID, inputKey, normalizedKey, payloadText, metadata, eventReceivedUTC); err != nil {
		p.recordRejected("upsert_input_observation_failed")
		return Result{}, err
	}

	mapping, err := p.store.MappingByChannelInputKey(ctx, channel.ID, normalizedKey)
	if err != nil {
		p.recordRejected("mapping_lookup_failed")
		return Result{}, err
	}
	if mapping == nil {
		eventTs := eventReceivedUTC
		if explicitTimestamp != nil {
			eventTs = explicitTimestamp.UTC()
		}
		p.recordAccepted(channel.Code, false)
		return Result{
			Accepted:      true,
			ChannelID:     channel.ID,
			ChannelCode:   channel.Code,
			ChannelType:   channel.ChannelType,
			InputKey:      inputKey,
			NormalizedKey: normalizedKey,
			EventTs:       eventTs,
		}, nil
	}

	parsedValue, parsedOK := p.parser.Parse(payloadText, mapping.PayloadPath)

	timestampFallback := eventReceivedUTC
	if explicitTimestamp != nil {
		timestampFallback = explicitTimestamp.UTC()
	}
	sourceTs := p.parser.ParseEventTimestamp(payloadText, mapping.TimestampPath, timestampFallback)

	var transformedValue *string
	if parsedOK {
		v := p.applyValueTransform(parsedValue, *mapping)
		transformedValue = &v
	}

	var telemetryParsed *string
	if transformedValue != nil {
		telemetryParsed = transformedValue
	}
	telemetryID, err := p.store.CreateTelemetryEvent(ctx, mapping.ID, mapping.EosField, payloadText, telemetryParsed, sourceTs)
	if err != nil {
		p.recordRejected("telemetry_event_failed")
		return Result{}, err
	}

	if transformedValue != nil {
		sourceType := "http_input"
		if channel.ChannelType == "mqtt" {
			sourceType = "mqtt_input"
		}

		valueType, value := inferValueType(*transformedValue)
		measurement := signalstore.Measurement{
			SignalKey:     mapping.EosField,
			Label:         mapping.EosField,
			ValueType:     valueType,
			CanonicalUnit: canonicalUnitForField(mapping.EosField, mapping.Unit),
			Value:         value,
			Ts:            sourceTs,
			Quality:       signalstore.QualityOK,
			SourceType:    sourceType,
			SourceRefID:   sql.NullInt64{Int64: telemetryID, Valid: true},
			Tags: map[string]any{
				"eos_field":    mapping.EosField,
				"source":       channel.ChannelType,
				"channel_code": channel.Code,
				"input_key":    normalizedKey,
			},
			IngestedAt: time.Now().UTC(),
		}
		if _, err := p.signals.IngestMeasurement(ctx, measurement); err != nil {
			p.recordRejected("measurement_ingest_failed")
			return Result{}, err
		}
		if p.metrics != nil {
			p.metrics.MeasurementsIngested.Inc()
		}

		if p.emrPipeline != nil {
			if valueW, ok := value.(float64); ok {
				p.handOffToEMR(ctx, mapping, sourceTs, valueW, sourceType, payloadText)
			}
		}
	}

	p.recordAccepted(channel.Code, true)
	mappingID := mapping.ID
	return Result{
		Accepted:       true,
		ChannelID:      channel.ID,
		ChannelCode:    channel.Code,
		ChannelType:    channel.ChannelType,
		InputKey:       inputKey,
		NormalizedKey:  normalizedKey,
		MappingMatched: true,
		MappingID:      &mappingID,
		EventTs:        sourceTs,
	}, nil
}

// handOffToEMR passes an ingested power field to C3. Grid import/export
// fields are checked against the latest known counterpart reading first: if
// the two disagree by more than the configured threshold, the sample is
// refused instead of integrated.
func (p *Pipeline) handOffToEMR(ctx context.Context, mapping Mapping, ts time.Time, valueW float64, sourceType, rawPayload string) {
	mappingID := mapping.ID
	sample := emr.Sample{Key: mapping.EosField, Ts: ts, ValueW: valueW, Source: sourceType}

	if counterpartKey, isGridPair := gridConflictCounterparts[mapping.EosField]; isGridPair {
		if _, err := p.emrPipeline.ProcessGridSample(ctx, sample, counterpartKey, "ok", &mappingID, rawPayload); err != nil {
			p.logger.Warn("emr grid hand-off failed", zap.String("field", mapping.EosField), zap.Error(err))
		}
		return
	}

	if _, err := p.emrPipeline.ProcessSample(ctx, sample, "ok", &mappingID, rawPayload); err != nil {
		p.logger.Warn("emr hand-off failed", zap.String("field", mapping.EosField), zap.Error(err))
	}
}

// applyValueTransform applies v' = v * multiplier, negating under
// positive_is_export; non-numeric payloads bypass the transform.
func (p *Pipeline) applyValueTransform(parsedValue string, mapping Mapping) string {
	numericValue, err := strconv.ParseFloat(parsedValue, 64)
	if err != nil {
		nonIdentity := !closeEnough(mapping.ValueMultiplier, 1.0) || mapping.SignConvention == SignConventionPositiveIsExport
		if nonIdentity {
			p.logger.Warn("value transform skipped for non-numeric payload",
				zap.String("field", mapping.EosField), zap.String("value", parsedValue))
		}
		return parsedValue
	}

	transformed := numericValue * mapping.ValueMultiplier
	if mapping.SignConvention == SignConventionPositiveIsExport {
		transformed = -transformed
	}

	if closeEnough(transformed, math.Round(transformed)) {
		return strconv.FormatInt(int64(math.Round(transformed)), 10)
	}
	return strconv.FormatFloat(transformed, 'g', 12, 64)
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

func canonicalUnitForField(eosField, unit string) sql.NullString {
	field := strings.ToLower(strings.TrimSpace(eosField))
	switch {
	case strings.Contains(field, "euro_pro_wh"):
		return sql.NullString{String: "EUR/Wh", Valid: true}
	case strings.HasSuffix(field, "_w"):
		return sql.NullString{String: "W", Valid: true}
	case strings.HasSuffix(field, "_wh"):
		return sql.NullString{String: "Wh", Valid: true}
	case strings.HasSuffix(field, "_pct"), strings.HasSuffix(field, "_percentage"):
		return sql.NullString{String: "%", Valid: true}
	}
	if unit == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: unit, Valid: true}
}

// inferValueType classifies a transformed string value the way the
// signal catalog expects, returning the typed Go value to store alongside it.
func inferValueType(v string) (signalstore.ValueType, any) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return signalstore.ValueTypeNumber, f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return signalstore.ValueTypeBool, b
	}
	return signalstore.ValueTypeText, v
}
