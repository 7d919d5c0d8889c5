package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractWarmStart_AcceptsNumericAndStringNumeric(t *testing.T) {
	solution := map[string]any{"start_solution": []any{1, 0, "0.5"}}
	values, ok := ExtractWarmStart(solution, 3)
	assert.True(t, ok)
	assert.Equal(t, []float64{1.0, 0.0, 0.5}, values)
}

func TestExtractWarmStart_RejectsWrongLength(t *testing.T) {
	solution := map[string]any{"start_solution": []any{1}}
	_, ok := ExtractWarmStart(solution, 3)
	assert.False(t, ok)
}

func TestExtractWarmStart_RejectsNonNumericElement(t *testing.T) {
	solution := map[string]any{"start_solution": []any{1, "x"}}
	_, ok := ExtractWarmStart(solution, 2)
	assert.False(t, ok)
}

func TestExtractWarmStart_RejectsMissingField(t *testing.T) {
	_, ok := ExtractWarmStart(map[string]any{"start_solution": nil}, 3)
	assert.False(t, ok)
}
