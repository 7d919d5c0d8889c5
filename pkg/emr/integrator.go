package emr

import (
	"fmt"

	"go.uber.org/zap"
)

// Integrator applies the EMR policy to a stream of power
// samples, given the prior State for each emr_key.
type Integrator struct {
	envelopes              Envelopes
	deltaMinSeconds        float64
	deltaMaxSeconds        float64
	gridConflictThresholdW float64
	logger                 *zap.Logger
}

// NewIntegrator builds an Integrator from the EMR envelope/delta
// configuration.
func NewIntegrator(envelopes Envelopes, deltaMinSeconds, deltaMaxSeconds, gridConflictThresholdW float64, logger *zap.Logger) *Integrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Integrator{
		envelopes:              envelopes,
		deltaMinSeconds:        deltaMinSeconds,
		deltaMaxSeconds:        deltaMaxSeconds,
		gridConflictThresholdW: gridConflictThresholdW,
		logger:                 logger,
	}
}

// CheckGridConflict reports whether simultaneous import/export samples
// disagree by more than the configured threshold. Pipeline.ProcessGridSample
// then refuses the incoming sample before it reaches Integrate; the stored
// counterpart sample is left as it is.
func (in *Integrator) CheckGridConflict(importW, exportW float64) bool {
	diff := importW - exportW
	if diff < 0 {
		diff = -diff
	}
	return diff > in.gridConflictThresholdW
}

// Integrate applies one power sample against the prior register state for
// emrKey and returns the resulting Row. Envelope and Δt-min violations
// produce Row{Accepted: false} with the state left untouched by the
// caller. A Δt-max violation with a known last_ts produces a hold row
// instead of a dropped sample.
func (in *Integrator) Integrate(emrKey string, prior State, sample Sample) Row {
	min, max := envelopeFor(sample.Key, in.envelopes)
	if sample.ValueW < min || sample.ValueW > max {
		in.logger.Warn("emr sample out of envelope",
			zap.String("key", sample.Key), zap.Float64("value_w", sample.ValueW),
			zap.Float64("min", min), zap.Float64("max", max))
		return Row{EmrKey: emrKey, Accepted: false, DropReason: "envelope"}
	}

	if prior.LastTs == nil {
		// First observation for this key: seed the register at zero energy.
		ts := sample.Ts
		powerW := sample.ValueW
		return Row{
			EmrKey:     emrKey,
			Ts:         sample.Ts,
			EmrKWh:     prior.EmrKWh,
			LastPowerW: &powerW,
			LastTs:     &ts,
			Method:     MethodHold,
			Notes:      "initial sample, no prior state to integrate against",
			Accepted:   true,
		}
	}

	deltaSeconds := sample.Ts.Sub(*prior.LastTs).Seconds()
	if deltaSeconds < in.deltaMinSeconds {
		return Row{EmrKey: emrKey, Accepted: false, DropReason: "delta_min"}
	}

	if deltaSeconds > in.deltaMaxSeconds {
		ts := sample.Ts
		powerW := sample.ValueW
		in.logger.Warn("emr gap exceeds delta_max_seconds, refusing hold-extrapolation",
			zap.String("emr_key", emrKey), zap.Float64("delta_seconds", deltaSeconds))
		return Row{
			EmrKey:     emrKey,
			Ts:         sample.Ts,
			EmrKWh:     prior.EmrKWh,
			LastPowerW: &powerW,
			LastTs:     &ts,
			Method:     MethodHold,
			Notes:      fmt.Sprintf("gap %.0fs exceeds delta_max_seconds, quality=gap upstream", deltaSeconds),
			Accepted:   true,
		}
	}

	meanPowerW := (*prior.LastPowerW + sample.ValueW) / 2.0
	deltaKWh := meanPowerW * deltaSeconds / 3_600_000.0
	newKWh := prior.EmrKWh + deltaKWh

	notes := ""
	if newKWh < prior.EmrKWh {
		in.logger.Warn("emr_kwh would decrement, clamping to previous value",
			zap.String("emr_key", emrKey), zap.Float64("would_be", newKWh), zap.Float64("clamped_to", prior.EmrKWh))
		notes = "decrement clamped to previous value"
		newKWh = prior.EmrKWh
	}

	ts := sample.Ts
	powerW := sample.ValueW
	return Row{
		EmrKey:     emrKey,
		Ts:         sample.Ts,
		EmrKWh:     newKWh,
		LastPowerW: &powerW,
		LastTs:     &ts,
		Method:     MethodIntegrate,
		Notes:      notes,
		Accepted:   true,
	}
}
