package trace

import (
	"testing"
	"time"
)

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	st := NewSimulationTrace(TraceConfig{})

	// WHEN summarized
	summary := Summarize(st)

	// THEN all counts are zero
	if summary.TotalReplans != 0 || summary.Applied != 0 || summary.Failed != 0 {
		t.Errorf("expected zero counts, got %+v", summary)
	}
	if summary.MeanSolveDuration != 0 || summary.MeanLogicalLatency != 0 {
		t.Error("expected zero means")
	}
	if len(summary.StatusDistribution) != 0 {
		t.Error("expected empty status distribution")
	}
}

func TestSummarize_NilTrace(t *testing.T) {
	if s := Summarize(nil); s == nil || s.StatusDistribution == nil {
		t.Fatal("Summarize(nil) must return an initialized summary")
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with one replan per outcome and two triggers
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelTriggers})
	st.RecordReplan(ReplanRecord{
		Outcome: OutcomeApplied, Status: "optimal", Attempts: 1,
		SnapshotTime: 10, DueTime: 12, SolveDuration: 30 * time.Millisecond,
		Grants: []GrantRecord{{Demand: "a", Resource: "cpu", Amount: 2}, {Demand: "b", Resource: "cpu", Amount: 1.5}},
	})
	st.RecordReplan(ReplanRecord{Outcome: OutcomeApplied, Status: "feasible", Attempts: 1, SnapshotTime: 20, DueTime: 24, SolveDuration: 10 * time.Millisecond})
	st.RecordReplan(ReplanRecord{Outcome: OutcomeStale, Status: "optimal", Attempts: 1, SolveDuration: 20 * time.Millisecond})
	st.RecordReplan(ReplanRecord{Outcome: OutcomeFailed, Status: "timeout", Attempts: 3, SolveDuration: 60 * time.Millisecond})
	st.RecordReplan(ReplanRecord{Outcome: OutcomeCancelled, Attempts: 1})
	st.RecordTrigger(TriggerRecord{Kind: TriggerHorizon, Honored: true})
	st.RecordTrigger(TriggerRecord{Kind: TriggerEvent, Coalesced: true})

	// WHEN summarized
	summary := Summarize(st)

	// THEN outcome counts, durations and grants are aggregated
	if summary.TotalReplans != 5 || summary.Applied != 2 || summary.Stale != 1 || summary.Failed != 1 || summary.Cancelled != 1 {
		t.Errorf("outcome counts wrong: %+v", summary)
	}
	if summary.TotalAttempts != 7 {
		t.Errorf("TotalAttempts = %d, want 7", summary.TotalAttempts)
	}
	if summary.MeanSolveDuration != 24*time.Millisecond {
		t.Errorf("MeanSolveDuration = %v, want 24ms", summary.MeanSolveDuration)
	}
	if summary.MaxSolveDuration != 60*time.Millisecond {
		t.Errorf("MaxSolveDuration = %v, want 60ms", summary.MaxSolveDuration)
	}
	if summary.MeanLogicalLatency != 3 {
		t.Errorf("MeanLogicalLatency = %v, want 3", summary.MeanLogicalLatency)
	}
	if summary.TotalGranted != 3.5 {
		t.Errorf("TotalGranted = %v, want 3.5", summary.TotalGranted)
	}
	if summary.StatusDistribution["optimal"] != 2 || summary.StatusDistribution["timeout"] != 1 {
		t.Errorf("StatusDistribution = %v", summary.StatusDistribution)
	}
	if _, ok := summary.StatusDistribution[""]; ok {
		t.Error("empty status must not be counted")
	}
	if summary.TriggersHonored != 1 || summary.TriggersCoalesced != 1 {
		t.Errorf("trigger counts = %d/%d, want 1/1", summary.TriggersHonored, summary.TriggersCoalesced)
	}
}
