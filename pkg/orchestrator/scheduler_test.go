package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextAlignedTrigger_FindsNextQuarterHour(t *testing.T) {
	from := time.Date(2026, 2, 21, 14, 5, 0, 0, time.UTC)
	next := NextAlignedTrigger(from, []int{0, 15, 30, 45}, 0)
	assert.Equal(t, time.Date(2026, 2, 21, 14, 15, 0, 0, time.UTC), next)
}

func TestNextAlignedTrigger_AppliesDelay(t *testing.T) {
	from := time.Date(2026, 2, 21, 14, 5, 0, 0, time.UTC)
	next := NextAlignedTrigger(from, []int{0, 15, 30, 45}, 10*time.Second)
	assert.Equal(t, time.Date(2026, 2, 21, 14, 15, 10, 0, time.UTC), next)
}

func TestNextAlignedTrigger_RollsOverToNextDay(t *testing.T) {
	from := time.Date(2026, 2, 21, 23, 50, 0, 0, time.UTC)
	next := NextAlignedTrigger(from, []int{0}, 0)
	assert.Equal(t, time.Date(2026, 2, 22, 0, 0, 0, 0, time.UTC), next)
}
