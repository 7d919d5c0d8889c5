package output

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func f64(v float64) *float64 { return &v }

func TestFormatNumericValue(t *testing.T) {
	cases := []struct {
		name  string
		value *float64
		want  string
	}{
		{"nil", nil, "0.0"},
		{"nan", f64(math.NaN()), "0.0"},
		{"inf", f64(math.Inf(1)), "0.0"},
		{"integerish", f64(2.0), "2.0"},
		{"trailingZeros", f64(2.500), "2.5"},
		{"threeDecimals", f64(1.23456), "1.235"},
		{"zero", f64(0), "0.0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, formatNumericValue(tc.value))
		})
	}
}

func TestRenderLoxone_SortsKeysAndFormatsValues(t *testing.T) {
	signals := map[string]*BundleItem{
		"zeta": {SignalKey: "zeta", RequestedPowerKW: f64(1.5)},
		"alpha": {SignalKey: "alpha", RequestedPowerKW: f64(2.0)},
	}
	got := RenderLoxone(signals)
	assert.Equal(t, "alpha:2.0\nzeta:1.5", got)
}

func TestExtractClientID_PrefersFirstForwardedHop(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("x-forwarded-for", "203.0.113.5, 10.0.0.1")
	r.RemoteAddr = "10.0.0.2:5555"

	assert.Equal(t, "203.0.113.5", ExtractClientID(r))
}

func TestExtractClientID_FallsBackToRemoteAddrHost(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.10:51000"

	assert.Equal(t, "192.168.1.10", ExtractClientID(r))
}

func TestExtractClientID_FallsBackToRawRemoteAddrWithoutPort(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "not-a-host-port"

	assert.Equal(t, "not-a-host-port", ExtractClientID(r))
}
