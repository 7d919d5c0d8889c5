package emr

import (
	"context"

	"go.uber.org/zap"

	"github.com/meintechblog/eos-backend/pkg/metrics"
)

// KeyMapping is the static power-key -> emr-key mapping.
type KeyMapping struct {
	PowerKey string
	EmrKey   string
}

// Pipeline mirrors the original's EmrPipelineService.process_mapped_value:
// given a mapped, transformed value from the ingest pipeline, it decides
// whether the field carries power for an EMR-tracked key and, if so,
// integrates it.
type Pipeline struct {
	store      *Store
	integrator *Integrator
	mappings   map[string]string // power key -> emr key
	metrics    *metrics.Registry
	logger     *zap.Logger
}

// NewPipeline builds a Pipeline over a fixed set of power-key -> emr-key
// mappings. metricsRegistry may be nil.
func NewPipeline(store *Store, integrator *Integrator, mappings []KeyMapping, metricsRegistry *metrics.Registry, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	byKey := make(map[string]string, len(mappings))
	for _, m := range mappings {
		byKey[m.PowerKey] = m.EmrKey
	}
	return &Pipeline{store: store, integrator: integrator, mappings: byKey, metrics: metricsRegistry, logger: logger}
}

func (p *Pipeline) recordDropped(reason string) {
	if p.metrics == nil {
		return
	}
	p.metrics.EMRSamplesDropped.WithLabelValues(reason).Inc()
}

// ProcessSample runs the full accept/integrate/persist cycle for one power
// sample, returning the resulting Row. Samples for power keys with no EMR
// mapping are ignored (zero Row, no error).
func (p *Pipeline) ProcessSample(ctx context.Context, sample Sample, quality string, mappingID *int64, rawPayload string) (Row, error) {
	emrKey, tracked := p.mappings[sample.Key]
	if !tracked {
		return Row{}, nil
	}

	if _, err := p.store.InsertPowerSample(ctx, sample, quality, mappingID, rawPayload); err != nil {
		return Row{}, err
	}

	prior, err := p.store.LastState(ctx, emrKey)
	if err != nil {
		return Row{}, err
	}

	row := p.integrator.Integrate(emrKey, prior, sample)
	if !row.Accepted {
		p.recordDropped(row.DropReason)
		return row, nil
	}

	if err := p.store.InsertRow(ctx, row); err != nil {
		return Row{}, err
	}
	return row, nil
}

// ProcessGridSample applies the grid import/export conflict rule before
// integrating an incoming grid sample: it loads the latest stored reading
// for counterpartKey (the other side of the pair) and, if the two disagree
// by more than the configured threshold, refuses sample without touching
// storage. The counterpart itself is never reprocessed — it was already
// integrated against its own prior state when it first arrived, so
// reintegrating it here would either double-insert it under a different
// mapping_id or no-op against a zero Δt; checking it in place avoids both.
func (p *Pipeline) ProcessGridSample(ctx context.Context, sample Sample, counterpartKey, quality string, mappingID *int64, rawPayload string) (Row, error) {
	counterpart, found, err := p.LatestSample(ctx, counterpartKey)
	if err != nil {
		return Row{}, err
	}
	if found && p.integrator.CheckGridConflict(sample.ValueW, counterpart.ValueW) {
		p.logger.Warn("grid import/export conflict, refusing sample",
			zap.String("key", sample.Key), zap.Float64("value_w", sample.ValueW),
			zap.String("counterpart_key", counterpartKey), zap.Float64("counterpart_value_w", counterpart.ValueW),
			zap.Time("ts", sample.Ts))
		p.recordDropped("grid_conflict")
		return Row{}, nil
	}
	return p.ProcessSample(ctx, sample, quality, mappingID, rawPayload)
}

// LatestSample returns the most recently stored power_samples reading for
// key, if any have been recorded yet.
func (p *Pipeline) LatestSample(ctx context.Context, key string) (Sample, bool, error) {
	points, err := p.store.LatestPowerSamples(ctx, []string{key})
	if err != nil {
		return Sample{}, false, err
	}
	if len(points) == 0 {
		return Sample{}, false, nil
	}
	point := points[0]
	return Sample{Key: point.Key, Ts: point.Ts, ValueW: point.ValueW, Source: point.Source}, true, nil
}
