// Package emr implements the C3 EMR integrator: converting instantaneous
// power samples into cumulative, monotonic energy registers. Grounded on
// original_source's energy_emr/power_samples tables from
// 20260220_0007_emr_pipeline.py, which define the persisted shape; the
// integration policy itself is implemented directly since
// app/services/emr_pipeline.py was not part of the retrieved source.
package emr

import "time"

// Method classifies how an energy_emr row was produced.
type Method string

const (
	MethodIntegrate   Method = "integrate"
	MethodHold        Method = "hold"
	MethodInterpolate Method = "interpolate"
)

// PowerKey identifies the distinct envelopes a sample is checked against.
type PowerKey string

const (
	PowerKeyPV      PowerKey = "pv"
	PowerKeyHouse   PowerKey = "house"
	PowerKeyGrid    PowerKey = "grid"
	PowerKeyBattery PowerKey = "battery"
	PowerKeyOther   PowerKey = "other"
)

// Envelopes bounds |value_w| per power key class.
type Envelopes struct {
	PowerMaxW   float64
	PVMaxW      float64
	HouseMaxW   float64
	GridMaxW    float64
	BatteryMaxW float64
}

// Sample is a single instantaneous power reading.
type Sample struct {
	Key     string
	Ts      time.Time
	ValueW  float64
	Source  string
}

// State is the last known register state for an emr_key, used to compute
// the next row without a database round trip in unit tests.
type State struct {
	EmrKWh     float64
	LastPowerW *float64
	LastTs     *time.Time
}

// Row is the outcome of integrating one sample against a prior State.
type Row struct {
	EmrKey     string
	Ts         time.Time
	EmrKWh     float64
	LastPowerW *float64
	LastTs     *time.Time
	Method     Method
	Notes      string
	Accepted   bool   // false when the sample itself was dropped (envelope/Δt-min violation)
	DropReason string // set alongside Accepted=false: "envelope" or "delta_min"
}

func classifyKey(key string) PowerKey {
	switch key {
	case "pv_power_w", "pv":
		return PowerKeyPV
	case "house_power_w", "house":
		return PowerKeyHouse
	case "grid_power_w", "grid_import_power_w", "grid_export_power_w", "grid":
		return PowerKeyGrid
	case "battery_power_w", "battery":
		return PowerKeyBattery
	default:
		return PowerKeyOther
	}
}

func envelopeFor(key string, env Envelopes) (min, max float64) {
	switch classifyKey(key) {
	case PowerKeyPV:
		return 0, env.PVMaxW
	case PowerKeyHouse:
		return 0, env.HouseMaxW
	case PowerKeyGrid:
		return -env.GridMaxW, env.GridMaxW
	case PowerKeyBattery:
		return -env.BatteryMaxW, env.BatteryMaxW
	default:
		return 0, env.PowerMaxW
	}
}
