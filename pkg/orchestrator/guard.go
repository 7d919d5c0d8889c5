package orchestrator

// ApplyNoGridChargeGuard downgrades any instruction that would charge the
// battery while grid power exceeds thresholdW to idle, annotating why.
// gridPowerW is positive on import.
func ApplyNoGridChargeGuard(instructions []PlanInstruction, gridPowerW, thresholdW float64) []PlanInstruction {
	if gridPowerW <= thresholdW {
		return instructions
	}
	out := make([]PlanInstruction, len(instructions))
	for i, instr := range instructions {
		if instr.OperationMode == "charge" && instr.RequestedPowerKW > 0 {
			instr.OperationMode = "idle"
			instr.RequestedPowerKW = 0
			instr.GuardApplied = true
			instr.GuardNote = "no_grid_charge_guard: grid power exceeded threshold"
		}
		out[i] = instr
	}
	return out
}
