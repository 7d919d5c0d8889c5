package output

import "time"

// ReduceInstructions scopes candidates to those whose window covers
// fetchedAt — execution_time (or starts_at) must not be in the future, and
// if ends_at is set fetchedAt must not be past it — then for duplicates per
// (resource_id, execution_time) keeps the highest instruction_index,
// tie-breaking on id.
func ReduceInstructions(instructions []Instruction, fetchedAt time.Time) map[string]Instruction {
	type key struct {
		resourceID string
		execution  int64
	}
	best := make(map[key]Instruction)

	for _, instr := range instructions {
		effective := instr.ExecutionTime
		if effective == nil {
			effective = instr.StartsAt
		}
		if effective == nil || effective.After(fetchedAt) {
			continue
		}
		if instr.EndsAt != nil && fetchedAt.After(*instr.EndsAt) {
			continue
		}

		k := key{resourceID: instr.ResourceID, execution: effective.Unix()}
		current, ok := best[k]
		if !ok {
			best[k] = instr
			continue
		}
		if instr.InstructionIndex > current.InstructionIndex ||
			(instr.InstructionIndex == current.InstructionIndex && instr.ID > current.ID) {
			best[k] = instr
		}
	}

	bySignal := make(map[string]Instruction, len(best))
	for _, instr := range best {
		existing, ok := bySignal[instr.SignalKey]
		if !ok || instructionWins(instr, existing) {
			bySignal[instr.SignalKey] = instr
		}
	}
	return bySignal
}

func instructionWins(candidate, existing Instruction) bool {
	ce, ee := candidate.ExecutionTime, existing.ExecutionTime
	if ce == nil {
		ce = candidate.StartsAt
	}
	if ee == nil {
		ee = existing.StartsAt
	}
	if ce == nil || ee == nil {
		return false
	}
	return ce.After(*ee)
}
