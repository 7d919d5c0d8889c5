package orchestrator

import "strconv"

// ExtractWarmStart reads a "start_solution" array out of a decoded prior
// solution artifact and coerces it to []float64. Elements may be numeric
// or string-numeric (legacy clients sent mixed arrays). The result is
// rejected (nil, false) unless its length matches expectedLength — the
// decision-variable count of the current optimize call — since a
// mismatched warm start cannot seed the solver.
func ExtractWarmStart(solution map[string]any, expectedLength int) ([]float64, bool) {
	raw, ok := solution["start_solution"]
	if !ok || raw == nil {
		return nil, false
	}
	items, ok := raw.([]any)
	if !ok || len(items) != expectedLength {
		return nil, false
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case float64:
			out = append(out, v)
		case int:
			out = append(out, float64(v))
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, false
			}
			out = append(out, f)
		default:
			return nil, false
		}
	}
	return out, true
}
