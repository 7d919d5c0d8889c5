package orchestrator

import "time"

// NextAlignedTrigger computes the next UTC instant within minuteSet
// (e.g. {0,15,30,45}) offset by delay, strictly after from.
func NextAlignedTrigger(from time.Time, minuteSet []int, delay time.Duration) time.Time {
	from = from.UTC()
	dayStart := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)

	var best time.Time
	for day := 0; day < 2; day++ {
		cursor := dayStart.AddDate(0, 0, day)
		for h := 0; h < 24; h++ {
			for _, m := range minuteSet {
				candidate := cursor.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + delay)
				if candidate.After(from) && (best.IsZero() || candidate.Before(best)) {
					best = candidate
				}
			}
		}
		if !best.IsZero() {
			return best
		}
	}
	return best
}
