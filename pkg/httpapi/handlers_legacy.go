package httpapi

import "net/http"

// legacyGoneRoutes mirrors original_source's app/api/legacy_gone.py: every
// retired pre-HTTP-only endpoint answers 410 Gone with a directive at its
// replacement instead of a 404.
var legacyGoneRoutes = []struct {
	methods   []string
	pattern   string
	directive string
}{
	{[]string{http.MethodGet, http.MethodPost}, "/api/input-channels", "Legacy endpoint removed. Use /api/setup/fields and /eos/set/*."},
	{[]string{http.MethodPut, http.MethodDelete}, "/api/input-channels/{id}", "Legacy endpoint removed. Use /api/setup/fields and /eos/set/*."},
	{[]string{http.MethodPost}, "/api/mappings/automap", "Automap removed in HTTP-only mode. Use fixed /eos/set/* field paths."},
	{[]string{http.MethodGet, http.MethodPost}, "/api/mappings", "Mapping API removed in HTTP-only mode. Use /api/setup/fields and /eos/set/*."},
	{[]string{http.MethodPut, http.MethodDelete}, "/api/mappings/{id}", "Mapping API removed in HTTP-only mode. Use /api/setup/fields and /eos/set/*."},
	{[]string{http.MethodGet}, "/api/live-values", "Live values API replaced. Use /api/setup/fields for unified live signal state."},
	{[]string{http.MethodGet}, "/api/discovered-inputs", "Discovery removed in HTTP-only mode. Use /api/setup/fields."},
	{[]string{http.MethodGet}, "/api/discovered-topics", "Discovery removed in HTTP-only mode. Use /api/setup/fields."},
	{[]string{http.MethodGet, http.MethodPost}, "/api/parameter-bindings", "Dynamic parameter bindings removed. Use /eos/set/param/* directly."},
	{[]string{http.MethodPut, http.MethodDelete}, "/api/parameter-bindings/{id}", "Dynamic parameter bindings removed. Use /eos/set/param/* directly."},
	{[]string{http.MethodGet}, "/api/parameter-bindings/events", "Dynamic parameter bindings removed. Use /eos/set/param/* directly."},
	{[]string{http.MethodGet}, "/api/setup/checklist", "Checklist endpoint replaced by /api/setup/readiness."},
}

func legacyGoneHandler(directive string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gone(w, directive)
	}
}
