package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyNoGridChargeGuard_DowngradesChargeWhenGridExceedsThreshold(t *testing.T) {
	instructions := []PlanInstruction{
		{ResourceID: "battery-1", OperationMode: "charge", RequestedPowerKW: 5},
		{ResourceID: "battery-2", OperationMode: "discharge", RequestedPowerKW: 2},
	}

	out := ApplyNoGridChargeGuard(instructions, 6000, 5000)
	assert.Equal(t, "idle", out[0].OperationMode)
	assert.Equal(t, 0.0, out[0].RequestedPowerKW)
	assert.True(t, out[0].GuardApplied)
	assert.Equal(t, "discharge", out[1].OperationMode)
	assert.False(t, out[1].GuardApplied)
}

func TestApplyNoGridChargeGuard_NoOpBelowThreshold(t *testing.T) {
	instructions := []PlanInstruction{{OperationMode: "charge", RequestedPowerKW: 5}}
	out := ApplyNoGridChargeGuard(instructions, 1000, 5000)
	assert.Equal(t, "charge", out[0].OperationMode)
	assert.False(t, out[0].GuardApplied)
}
