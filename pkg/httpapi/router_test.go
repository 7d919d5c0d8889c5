package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/meintechblog/eos-backend/internal/config"
)

func testDeps() Deps {
	return Deps{
		Config: &config.Config{
			HTTP:   config.HTTPConfig{CORSAllowedOrigins: []string{"*"}},
			Output: config.OutputConfig{SignalKeys: []string{"battery_charge_kw"}, CentralHTTPPath: "/api/eos/output-signals"},
		},
		Logger: zap.NewNop(),
	}
}

func TestRouter_Health(t *testing.T) {
	r := NewRouter(testDeps())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"service":"eos-backend"`)
}

func TestRouter_LegacyRoutesReturnGone(t *testing.T) {
	r := NewRouter(testDeps())

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/input-channels"},
		{http.MethodPost, "/api/mappings/automap"},
		{http.MethodGet, "/api/live-values"},
		{http.MethodGet, "/api/setup/checklist"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equalf(t, http.StatusGone, rec.Code, "%s %s", tc.method, tc.path)
		assert.Contains(t, rec.Body.String(), "directive")
	}
}

func TestRouter_UnknownRouteIsNotFound(t *testing.T) {
	r := NewRouter(testDeps())

	req := httptest.NewRequest(http.MethodGet, "/does/not/exist", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	r := NewRouter(testDeps())

	// /api/data/latest touches deps.Signals, which is nil in testDeps,
	// so the handler will panic; the recovery middleware must turn
	// that into a 500 instead of crashing the test process.
	req := httptest.NewRequest(http.MethodGet, "/api/data/latest?signal_key=grid_power_w", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
