package cmd

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/simopt/simopt/facade"
	"github.com/simopt/simopt/sim/trace"
)

// printSessionSummary writes the end-of-run report of one session.
func printSessionSummary(w io.Writer, name string, res facade.AdvanceResult, s *trace.TraceSummary) {
	fmt.Fprintf(w, "=== Session %s ===\n", name)
	fmt.Fprintf(w, "State                : %s\n", res.State.State)
	fmt.Fprintf(w, "Clock                : %d\n", res.Clock)
	fmt.Fprintf(w, "Dispatched Events    : %d\n", res.Dispatched)
	fmt.Fprintf(w, "Replans              : %d (applied %d, stale %d, failed %d, cancelled %d)\n",
		s.TotalReplans, s.Applied, s.Stale, s.Failed, s.Cancelled)
	fmt.Fprintf(w, "Triggers             : %d honored, %d coalesced, %d ignored\n",
		s.TriggersHonored, s.TriggersCoalesced, res.State.Ignored)
	if s.TotalReplans > 0 {
		fmt.Fprintf(w, "Solve Attempts       : %d\n", s.TotalAttempts)
		fmt.Fprintf(w, "Mean Solve Duration  : %v\n", s.MeanSolveDuration)
		fmt.Fprintf(w, "Max Solve Duration   : %v\n", s.MaxSolveDuration)
	}
	if s.Applied > 0 {
		fmt.Fprintf(w, "Mean Logical Latency : %.2f ticks\n", s.MeanLogicalLatency)
		fmt.Fprintf(w, "Total Granted        : %.3f\n", s.TotalGranted)
	}
	if len(res.Failures) > 0 {
		fmt.Fprintf(w, "Process Failures     : %d\n", len(res.Failures))
	}
	if res.State.FailureReason != "" {
		fmt.Fprintf(w, "Failure Reason       : %s\n", res.State.FailureReason)
	}
}

// printMetrics writes every metric family gathered from g in the
// Prometheus text exposition format.
func printMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
