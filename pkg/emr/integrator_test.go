package emr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnvelopes() Envelopes {
	return Envelopes{PowerMaxW: 30000, PVMaxW: 20000, HouseMaxW: 30000, GridMaxW: 30000, BatteryMaxW: 10000}
}

func TestIntegrator_Integrate(t *testing.T) {
	base := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

	t.Run("first sample seeds a hold row at zero energy", func(t *testing.T) {
		in := NewIntegrator(testEnvelopes(), 1, 900, 500, nil)
		row := in.Integrate("pv_kwh", State{}, Sample{Key: "pv_power_w", Ts: base, ValueW: 1000})
		require.True(t, row.Accepted)
		assert.Equal(t, MethodHold, row.Method)
		assert.Equal(t, 0.0, row.EmrKWh)
		require.NotNil(t, row.LastPowerW)
		assert.Equal(t, 1000.0, *row.LastPowerW)
	})

	t.Run("out of envelope sample is dropped", func(t *testing.T) {
		in := NewIntegrator(testEnvelopes(), 1, 900, 500, nil)
		row := in.Integrate("pv_kwh", State{}, Sample{Key: "pv_power_w", Ts: base, ValueW: 99999})
		assert.False(t, row.Accepted)
	})

	t.Run("normal path integrates mean power over delta t", func(t *testing.T) {
		in := NewIntegrator(testEnvelopes(), 1, 900, 500, nil)
		lastPower := 1000.0
		lastTs := base
		prior := State{EmrKWh: 0.5, LastPowerW: &lastPower, LastTs: &lastTs}

		row := in.Integrate("pv_kwh", prior, Sample{Key: "pv_power_w", Ts: base.Add(300 * time.Second), ValueW: 2000})
		require.True(t, row.Accepted)
		assert.Equal(t, MethodIntegrate, row.Method)
		// mean(1000,2000) * 300s / 3_600_000 = 1500*300/3600000 = 0.125
		assert.InDelta(t, 0.625, row.EmrKWh, 1e-9)
	})

	t.Run("delta below delta_min_seconds is dropped", func(t *testing.T) {
		in := NewIntegrator(testEnvelopes(), 5, 900, 500, nil)
		lastPower := 1000.0
		lastTs := base
		prior := State{EmrKWh: 0.5, LastPowerW: &lastPower, LastTs: &lastTs}

		row := in.Integrate("pv_kwh", prior, Sample{Key: "pv_power_w", Ts: base.Add(2 * time.Second), ValueW: 1100})
		assert.False(t, row.Accepted)
	})

	t.Run("delta above delta_max_seconds refuses hold-extrapolation but keeps energy unchanged", func(t *testing.T) {
		in := NewIntegrator(testEnvelopes(), 1, 900, 500, nil)
		lastPower := 1000.0
		lastTs := base
		prior := State{EmrKWh: 0.5, LastPowerW: &lastPower, LastTs: &lastTs}

		row := in.Integrate("pv_kwh", prior, Sample{Key: "pv_power_w", Ts: base.Add(2000 * time.Second), ValueW: 1500})
		require.True(t, row.Accepted)
		assert.Equal(t, MethodHold, row.Method)
		assert.Equal(t, 0.5, row.EmrKWh)
	})

	t.Run("would-be decrement is clamped to the previous value", func(t *testing.T) {
		in := NewIntegrator(testEnvelopes(), 1, 900, 500, nil)
		lastPower := 1000.0
		lastTs := base
		prior := State{EmrKWh: 0.5, LastPowerW: &lastPower, LastTs: &lastTs}

		// A negative mean power would decrement the register; it must clamp.
		row := in.Integrate("grid_kwh", prior, Sample{Key: "grid_power_w", Ts: base.Add(300 * time.Second), ValueW: -30000})
		require.True(t, row.Accepted)
		assert.Equal(t, 0.5, row.EmrKWh)
		assert.Contains(t, row.Notes, "clamped")
	})
}

func TestIntegrator_CheckGridConflict(t *testing.T) {
	in := NewIntegrator(testEnvelopes(), 1, 900, 500, nil)

	assert.False(t, in.CheckGridConflict(1000, 950))
	assert.True(t, in.CheckGridConflict(1000, 300))
}
