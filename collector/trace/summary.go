package trace

// TraceSummary aggregates statistics from an EpisodeTrace.
type TraceSummary struct {
	TotalResets          int
	ResetsByReason       map[ResetReason]int
	Transitions          int
	MeanStepsBetween     float64 // mean step gap between consecutive resets
	DistinctDestinations int
}

// Summarize computes aggregate statistics from an EpisodeTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(et *EpisodeTrace) *TraceSummary {
	summary := &TraceSummary{
		ResetsByReason: make(map[ResetReason]int),
	}
	if et == nil {
		return summary
	}

	summary.TotalResets = len(et.Resets)
	summary.Transitions = len(et.Transitions)
	destinations := make(map[[3]float64]bool, len(et.Resets))
	for _, r := range et.Resets {
		summary.ResetsByReason[r.Reason]++
		destinations[r.Destination] = true
	}
	summary.DistinctDestinations = len(destinations)

	if len(et.Resets) > 1 {
		span := et.Resets[len(et.Resets)-1].Step - et.Resets[0].Step
		summary.MeanStepsBetween = float64(span) / float64(len(et.Resets)-1)
	}
	return summary
}
