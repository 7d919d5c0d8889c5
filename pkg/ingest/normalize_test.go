package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeInputKey(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already canonical", "eos/input/pv_power_w", "eos/input/pv_power_w"},
		{"uppercase gets lowered", "EOS/Input/PV_Power_W", "eos/input/pv_power_w"},
		{"leading slash stripped", "/house/power", "eos/input/house/power"},
		{"bare eos prefix rewritten", "eos/house_power_w", "eos/input/house_power_w"},
		{"arbitrary key gets canonical prefix", "house_power_w", "eos/input/house_power_w"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeInputKey(tc.in))
		})
	}
}

func TestIsParameterChannelPath(t *testing.T) {
	assert.True(t, IsParameterChannelPath("eos/param/battery_capacity_wh"))
	assert.True(t, IsParameterChannelPath("  eos/param/battery_capacity_wh"))
	assert.False(t, IsParameterChannelPath("eos/input/pv_power_w"))
}

func TestCanonicalUnitForField(t *testing.T) {
	assert.Equal(t, "W", canonicalUnitForField("pv_power_w", "").String)
	assert.Equal(t, "Wh", canonicalUnitForField("battery_energy_wh", "").String)
	assert.Equal(t, "%", canonicalUnitForField("soc_pct", "").String)
	assert.Equal(t, "EUR/Wh", canonicalUnitForField("price_euro_pro_wh", "").String)

	u := canonicalUnitForField("some_other_field", "custom-unit")
	assert.True(t, u.Valid)
	assert.Equal(t, "custom-unit", u.String)

	u2 := canonicalUnitForField("some_other_field", "")
	assert.False(t, u2.Valid)
}
