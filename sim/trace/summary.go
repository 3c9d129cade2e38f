package trace

import "time"

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalReplans       int
	Applied            int
	Stale              int
	Failed             int
	Cancelled          int
	TotalAttempts      int
	MeanSolveDuration  time.Duration
	MaxSolveDuration   time.Duration
	MeanLogicalLatency float64 // applied replans: DueTime - SnapshotTime
	TotalGranted       float64
	TriggersHonored    int
	TriggersCoalesced  int
	StatusDistribution map[string]int // classified status → count of replans
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		StatusDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalReplans = len(st.Replans)
	var totalSolve time.Duration
	var latency int64
	for _, r := range st.Replans {
		switch r.Outcome {
		case OutcomeApplied:
			summary.Applied++
			summary.TotalGranted += r.Granted()
			latency += r.DueTime - r.SnapshotTime
		case OutcomeStale:
			summary.Stale++
		case OutcomeFailed:
			summary.Failed++
		case OutcomeCancelled:
			summary.Cancelled++
		}
		if r.Status != "" {
			summary.StatusDistribution[r.Status]++
		}
		summary.TotalAttempts += r.Attempts
		totalSolve += r.SolveDuration
		if r.SolveDuration > summary.MaxSolveDuration {
			summary.MaxSolveDuration = r.SolveDuration
		}
	}
	if summary.TotalReplans > 0 {
		summary.MeanSolveDuration = totalSolve / time.Duration(summary.TotalReplans)
	}
	if summary.Applied > 0 {
		summary.MeanLogicalLatency = float64(latency) / float64(summary.Applied)
	}

	for _, t := range st.Triggers {
		if t.Honored {
			summary.TriggersHonored++
		}
		if t.Coalesced {
			summary.TriggersCoalesced++
		}
	}
	return summary
}
