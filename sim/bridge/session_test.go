package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simopt/simopt/sim"
	"github.com/simopt/simopt/sim/optimize"
	"github.com/simopt/simopt/sim/pool"
	"github.com/simopt/simopt/sim/trace"
	"github.com/simopt/simopt/sim/workload"
)

var fastRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Factor: 2, MaxDelay: 5 * time.Millisecond}

type fixture struct {
	world   *sim.World
	pool    *pool.Pool
	session *Session
}

func newFixture(t *testing.T, cfg Config, solver optimize.Solver, p *pool.Pool, capacity float64, demands ...sim.Demand) *fixture {
	t.Helper()
	w, err := sim.NewWorld(sim.NewEngine(), []sim.ResourceSpec{{ID: "cpu", Capacity: capacity}})
	require.NoError(t, err)
	for _, d := range demands {
		require.NoError(t, w.Inject(d))
	}
	if p == nil {
		p = pool.New(pool.Config{MaxConcurrent: 2})
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = fastRetry
	}
	s, err := NewSession(t.Name(), cfg, w, p, solver)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return &fixture{world: w, pool: p, session: s}
}

func demand(id string, amount float64, arrival, duration int64) sim.Demand {
	return sim.Demand{ID: id, Resource: "cpu", Amount: amount, Weight: 1, Arrival: arrival, Duration: duration}
}

func emptyOptimal() optimize.Result {
	zero := 0.0
	return optimize.Result{Status: optimize.StatusOptimal, Objective: &zero, Assignment: map[string]float64{}}
}

func snapshotTimes(records []trace.ReplanRecord) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.SnapshotTime
	}
	return out
}

// gate blocks every solve until opened.
type gate struct{ open chan struct{} }

func newGate() *gate { return &gate{open: make(chan struct{})} }

func (g *gate) Name() string { return "gate" }

func (g *gate) Solve(ctx context.Context, _ *optimize.Model) optimize.Result {
	select {
	case <-g.open:
		return emptyOptimal()
	case <-ctx.Done():
		return optimize.Failure(optimize.StatusBackendError, "cancelled")
	}
}

func TestSession_IntervalReplans(t *testing.T) {
	// GIVEN interval 10, logical latency 1 and one demand stuck behind a hog
	f := newFixture(t, Config{Interval: 10, SolveLatency: 1}, optimize.NewSimplexSolver(), nil, 5,
		demand("hog", 4, 0, 1000),
		demand("waiter", 2, 1, 5),
	)

	// WHEN the simulation advances to 35
	report, err := f.session.Advance(context.Background(), 35)
	require.NoError(t, err)

	// THEN exactly three replans ran, triggered at 10, 20 and 30
	require.Len(t, report.Replans, 3)
	assert.Equal(t, []int64{10, 20, 30}, snapshotTimes(report.Replans))
	for _, r := range report.Replans {
		assert.Equal(t, trace.OutcomeApplied, r.Outcome)
		assert.Equal(t, r.SnapshotTime+1, r.AppliedTime)
		assert.Equal(t, trace.TriggerHorizon, r.Trigger)
	}
	// AND the first plan granted the free unit to the waiter
	require.Len(t, report.Replans[0].Grants, 1)
	assert.Equal(t, "waiter", report.Replans[0].Grants[0].Demand)
	assert.InDelta(t, 1.0, report.Replans[0].Granted(), 1e-9)

	v := f.session.State()
	assert.Equal(t, StateIdle, v.State)
	assert.Equal(t, int64(35), v.Clock)
	assert.Equal(t, 3, v.Applied)
	assert.Equal(t, int64(35), report.Clock)
	assert.NoError(t, f.world.CheckInvariants())
}

func TestSession_InfeasibleFailsWithoutRetry(t *testing.T) {
	// GIVEN a solver that always reports infeasible
	solver := optimize.NewScripted(optimize.Failure(optimize.StatusInfeasible, "no feasible point"))
	f := newFixture(t, Config{Interval: 10}, solver, nil, 5)

	// WHEN a replan triggers
	_, err := f.session.Advance(context.Background(), 15)
	require.NoError(t, err)

	// THEN the session failed after exactly one solve
	v := f.session.State()
	assert.Equal(t, StateFailed, v.State)
	assert.Contains(t, v.FailureReason, "infeasible")
	assert.Equal(t, 1, solver.Calls())
	require.Len(t, f.session.Trace().Replans, 1)
	assert.Equal(t, 1, f.session.Trace().Replans[0].Attempts)
	assert.Equal(t, trace.OutcomeFailed, f.session.Trace().Replans[0].Outcome)

	// AND later triggers are counted but ignored
	_, err = f.session.Advance(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, f.session.State().State)
	assert.Equal(t, 1, f.session.State().Ignored)
	assert.Equal(t, 1, solver.Calls())
}

func TestSession_RequestReplanLeavesFailed(t *testing.T) {
	solver := optimize.NewScripted(optimize.Failure(optimize.StatusUnbounded, "ray"), emptyOptimal())
	f := newFixture(t, Config{SolveLatency: 2}, solver, nil, 5)

	require.NoError(t, f.session.RequestReplan(nil))
	_, err := f.session.Advance(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, StateFailed, f.session.State().State)

	// WHEN a manual replan is requested from Failed
	require.NoError(t, f.session.RequestReplan(nil))
	_, err = f.session.Advance(context.Background(), 4)
	require.NoError(t, err)

	// THEN it succeeds and the failure reason is cleared
	v := f.session.State()
	assert.Equal(t, StateIdle, v.State)
	assert.Empty(t, v.FailureReason)
	assert.Equal(t, 1, v.Applied)
	assert.Equal(t, trace.TriggerManual, f.session.Trace().Replans[1].Trigger)
}

func TestSession_TransientRetries(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		solver := optimize.NewScripted(optimize.Failure(optimize.StatusBackendError, "flaky"), emptyOptimal())
		f := newFixture(t, Config{Interval: 10}, solver, nil, 5)
		report, err := f.session.Advance(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, report.Replans, 1)
		assert.Equal(t, trace.OutcomeApplied, report.Replans[0].Outcome)
		assert.Equal(t, 2, report.Replans[0].Attempts)
	})
	t.Run("exhausts", func(t *testing.T) {
		solver := optimize.NewScripted(optimize.Failure(optimize.StatusBackendError, "down"))
		f := newFixture(t, Config{Interval: 10}, solver, nil, 5)
		report, err := f.session.Advance(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, report.Replans, 1)
		assert.Equal(t, trace.OutcomeFailed, report.Replans[0].Outcome)
		assert.Equal(t, 3, report.Replans[0].Attempts)
		assert.Equal(t, 3, solver.Calls())
		assert.Contains(t, f.session.State().FailureReason, "backend-error")
	})
	t.Run("timeout", func(t *testing.T) {
		solver := &optimize.Scripted{ID: "slow", Block: true}
		cfg := Config{Interval: 10, SolveBudget: 5 * time.Millisecond, Retry: RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}}
		f := newFixture(t, cfg, solver, nil, 5)
		report, err := f.session.Advance(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, report.Replans, 1)
		assert.Equal(t, string(optimize.StatusTimeout), report.Replans[0].Status)
		assert.Equal(t, 2, report.Replans[0].Attempts)
	})
}

func TestSession_StaleResultNeverApplied(t *testing.T) {
	// GIVEN a contention-triggered replan whose logical solve outlasts the
	// hog's release, so the FIFO grant mutates the resource mid-solve
	cfg := Config{
		TriggerTypes: []sim.EventType{sim.EventContention},
		SolveLatency: 15,
		Staleness:    StalenessPolicy{Tolerance: Ticks(100)},
	}
	f := newFixture(t, cfg, optimize.NewSimplexSolver(), nil, 5,
		demand("hog", 5, 0, 10),
		demand("waiter", 2, 1, 3),
	)

	// WHEN the simulation runs past the due time
	report, err := f.session.Advance(context.Background(), 40)
	require.NoError(t, err)

	// THEN the first result was discarded and never applied, and the
	// re-armed replan ran against the fresh state
	require.Len(t, report.Replans, 2)
	assert.Equal(t, trace.OutcomeStale, report.Replans[0].Outcome)
	assert.Equal(t, int64(-1), report.Replans[0].AppliedTime)
	assert.Equal(t, trace.TriggerRearm, report.Replans[1].Trigger)
	assert.Equal(t, int64(16), report.Replans[1].SnapshotTime)
	assert.Equal(t, 1, report.Discarded)
	assert.Equal(t, 0, f.world.Stats().GrantedByPlan)
	assert.Equal(t, 2, f.world.Stats().GrantedFIFO)
}

func TestSession_ToleranceRearmsAreBounded(t *testing.T) {
	// GIVEN a tolerance below the solve latency
	cfg := Config{SolveLatency: 5, Staleness: StalenessPolicy{Tolerance: Ticks(2)}, MaxStaleRearms: 2}
	f := newFixture(t, cfg, optimize.NewScripted(emptyOptimal()), nil, 5)

	require.NoError(t, f.session.RequestReplan(nil))
	report, err := f.session.Advance(context.Background(), 100)
	require.NoError(t, err)

	// THEN the initial result and two re-arms were discarded, then it waited
	require.Len(t, report.Replans, 3)
	assert.Equal(t, []int64{0, 5, 10}, snapshotTimes(report.Replans))
	for _, r := range report.Replans {
		assert.Equal(t, trace.OutcomeStale, r.Outcome)
		assert.Contains(t, r.Reason, "ticks old")
	}
	assert.Equal(t, StateIdle, f.session.State().State)
	assert.Equal(t, 3, f.session.State().Discarded)
}

func TestSession_CoalescesTriggersWhileBusy(t *testing.T) {
	// GIVEN contention triggers at 1, 2 and 3 and a 5-tick logical solve
	cfg := Config{TriggerTypes: []sim.EventType{sim.EventContention}, SolveLatency: 5, TraceLevel: trace.TraceLevelTriggers}
	f := newFixture(t, cfg, optimize.NewSimplexSolver(), nil, 5,
		demand("hog", 4, 0, 100),
		demand("w1", 2, 1, 50),
		demand("w2", 2, 2, 50),
		demand("w3", 2, 3, 50),
	)

	report, err := f.session.Advance(context.Background(), 20)
	require.NoError(t, err)

	// THEN the triggers at 2 and 3 folded into one follow-up replan at 6
	require.Len(t, report.Replans, 2)
	assert.Equal(t, []int64{1, 6}, snapshotTimes(report.Replans))
	assert.Equal(t, trace.TriggerEvent, report.Replans[1].Trigger)
	assert.Equal(t, 2, f.session.State().Coalesced)
	coalesced := 0
	for _, tr := range f.session.Trace().Triggers {
		if tr.Coalesced {
			coalesced++
		}
	}
	assert.Equal(t, 2, coalesced)
	// AND w1 got the one free unit
	require.Len(t, report.Replans[0].Grants, 1)
	assert.Equal(t, "w1", report.Replans[0].Grants[0].Demand)
	assert.NoError(t, f.world.CheckInvariants())
}

func TestSession_SecondSessionQueuedInSnapshotTaken(t *testing.T) {
	// GIVEN two sessions sharing a pool with one slot
	p := pool.New(pool.Config{MaxConcurrent: 1})
	g := newGate()
	a := newFixture(t, Config{SolveLatency: 1}, g, p, 5)
	b := newFixture(t, Config{SolveLatency: 1}, g, p, 5)

	// WHEN both request a replan
	require.NoError(t, a.session.RequestReplan(nil))
	require.Eventually(t, func() bool { return a.session.State().State == StateSolving }, 2*time.Second, time.Millisecond)
	require.NoError(t, b.session.RequestReplan(nil))
	require.Eventually(t, func() bool { return p.Stats().Queued == 1 }, 2*time.Second, time.Millisecond)

	// THEN the second is observably waiting for admission
	assert.Equal(t, StateSnapshotTaken, b.session.State().State)
	assert.ErrorIs(t, b.session.RequestReplan(nil), ErrSessionBusy)

	// AND both finish once the slot frees up
	close(g.open)
	require.Eventually(t, func() bool { return b.session.State().State == StateSolving }, 2*time.Second, time.Millisecond)
	for _, f := range []*fixture{a, b} {
		_, err := f.session.Advance(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, StateIdle, f.session.State().State)
		assert.Equal(t, 1, f.session.State().Applied)
	}
}

func TestSession_NeverAdmittedFailsFromSnapshotTaken(t *testing.T) {
	// GIVEN a session queued behind a held slot, with a second trigger folded in
	p := pool.New(pool.Config{MaxConcurrent: 1})
	holder := newFixture(t, Config{SolveLatency: 1}, newGate(), p, 5)
	require.NoError(t, holder.session.RequestReplan(nil))
	require.Eventually(t, func() bool { return holder.session.State().State == StateSolving }, 2*time.Second, time.Millisecond)

	cfg := Config{TriggerTypes: []sim.EventType{sim.EventContention}, SolveLatency: 5}
	f := newFixture(t, cfg, optimize.NewSimplexSolver(), p, 5,
		demand("hog", 4, 0, 100),
		demand("w1", 2, 1, 50),
		demand("w2", 2, 2, 50),
	)
	var mu sync.Mutex
	var path []TransitionData
	f.session.AddObserver(func(_ context.Context, e cloudevents.Event) error {
		if e.Type() != EventTypeTransition {
			return nil
		}
		var data TransitionData
		if err := e.DataAs(&data); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		path = append(path, data)
		return nil
	})
	_, err := f.session.Advance(context.Background(), 3)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.Stats().Queued == 1 }, 2*time.Second, time.Millisecond)
	require.Equal(t, StateSnapshotTaken, f.session.State().State)
	require.Equal(t, 1, f.session.State().Coalesced)

	// WHEN the pool closes before the queued solve is admitted
	p.Close()
	_, err = f.session.Advance(context.Background(), 20)
	require.NoError(t, err)

	// THEN the session fails straight from SnapshotTaken
	v := f.session.State()
	assert.Equal(t, StateFailed, v.State)
	assert.Contains(t, v.FailureReason, "not admitted")
	mu.Lock()
	last := path[len(path)-1]
	mu.Unlock()
	assert.Equal(t, StateSnapshotTaken, last.From)
	assert.Equal(t, StateFailed, last.To)

	// AND the folded trigger was dropped rather than replayed
	assert.Equal(t, 1, v.Replans)
	require.Len(t, f.session.Trace().Replans, 1)
	assert.Equal(t, trace.OutcomeFailed, f.session.Trace().Replans[0].Outcome)
}

func TestSession_AdmissionAfterStopIsIgnored(t *testing.T) {
	// GIVEN a stopped session observed by a recorder
	f := newFixture(t, Config{SolveLatency: 1}, optimize.NewScripted(emptyOptimal()), nil, 5)
	var mu sync.Mutex
	var events []string
	f.session.AddObserver(func(_ context.Context, e cloudevents.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.Type())
		return nil
	})
	f.session.Stop()

	// WHEN a late admission callback arrives
	assert.NotPanics(t, f.session.admitted)

	// THEN the session stays stopped and nothing is published after the stop
	assert.Equal(t, StateStopped, f.session.State().State)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{EventTypeTransition}, events)
}

func TestSession_StopConcurrentWithAdmission(t *testing.T) {
	for i := 0; i < 50; i++ {
		// GIVEN a session queued behind a solve holding the only slot
		p := pool.New(pool.Config{MaxConcurrent: 1})
		g := newGate()
		holder := newFixture(t, Config{SolveLatency: 1}, g, p, 5)
		queued := newFixture(t, Config{SolveLatency: 1}, g, p, 5)
		require.NoError(t, holder.session.RequestReplan(nil))
		require.Eventually(t, func() bool { return holder.session.State().State == StateSolving }, 2*time.Second, time.Millisecond)
		require.NoError(t, queued.session.RequestReplan(nil))
		require.Eventually(t, func() bool { return p.Stats().Queued == 1 }, 2*time.Second, time.Millisecond)

		// WHEN the slot frees up while the queued session is being stopped
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			close(g.open)
		}()
		go func() {
			defer wg.Done()
			queued.session.Stop()
		}()
		wg.Wait()

		// THEN the stop wins cleanly and the pool drains
		assert.Equal(t, StateStopped, queued.session.State().State)
		holder.session.Stop()
		require.Eventually(t, func() bool {
			st := p.Stats()
			return st.Running == 0 && st.Queued == 0
		}, 2*time.Second, time.Millisecond)
		p.Close()
	}
}

func TestSession_StopCancelsInflightSolve(t *testing.T) {
	p := pool.New(pool.Config{MaxConcurrent: 1})
	f := newFixture(t, Config{SolveLatency: 3}, &optimize.Scripted{ID: "stuck", Block: true}, p, 5)
	require.NoError(t, f.session.RequestReplan(nil))
	require.Eventually(t, func() bool { return f.session.State().State == StateSolving }, 2*time.Second, time.Millisecond)

	f.session.Stop()

	assert.Equal(t, StateStopped, f.session.State().State)
	require.Eventually(t, func() bool { return p.Stats().Running == 0 }, 2*time.Second, time.Millisecond)
	replans := f.session.Trace().Replans
	require.Len(t, replans, 1)
	assert.Equal(t, trace.OutcomeCancelled, replans[0].Outcome)

	_, err := f.session.Advance(context.Background(), 10)
	assert.ErrorIs(t, err, ErrSessionStopped)
	assert.ErrorIs(t, f.session.RequestReplan(nil), ErrSessionStopped)
	f.session.Stop()
}

func TestSession_RequestReplanValidatesOverride(t *testing.T) {
	f := newFixture(t, Config{}, optimize.NewScripted(emptyOptimal()), nil, 5)
	err := f.session.RequestReplan(optimize.Params{"bogus": 1})
	assert.ErrorIs(t, err, ErrConfigValidation)
	assert.Equal(t, StateIdle, f.session.State().State)
}

func TestSession_AdvanceValidation(t *testing.T) {
	f := newFixture(t, Config{Interval: 5}, optimize.NewScripted(emptyOptimal()), nil, 5)
	_, err := f.session.Advance(context.Background(), 7)
	require.NoError(t, err)

	_, err = f.session.Advance(context.Background(), 3)
	assert.ErrorIs(t, err, sim.ErrInvalidTime)
	_, err = f.session.AdvanceSteps(context.Background(), 0)
	assert.Error(t, err)
}

func TestSession_AdvanceSteps(t *testing.T) {
	f := newFixture(t, Config{}, optimize.NewScripted(emptyOptimal()), nil, 10,
		demand("a", 1, 1, 5),
		demand("b", 1, 2, 5),
		demand("c", 1, 3, 5),
	)
	report, err := f.session.AdvanceSteps(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Dispatched)
	assert.Equal(t, int64(2), report.Clock)
	assert.Equal(t, 2, f.world.Stats().Arrived)
}

func TestSession_ContextCancelWhileAwaiting(t *testing.T) {
	// GIVEN a solve that outlives the caller's context
	g := newGate()
	f := newFixture(t, Config{SolveLatency: 1}, g, nil, 5)
	require.NoError(t, f.session.RequestReplan(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.session.Advance(ctx, 5)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), f.world.Engine().Now())

	// WHEN the solve finishes and the caller advances again
	close(g.open)
	report, err := f.session.Advance(context.Background(), 5)
	require.NoError(t, err)

	// THEN the result is consumed at its due time
	require.Len(t, report.Replans, 1)
	assert.Equal(t, int64(1), report.Replans[0].AppliedTime)
	assert.Equal(t, int64(5), report.Clock)
}

// runScenario drives a generated workload through a session and returns
// its decision trace with wall-clock fields cleared.
func runScenario(t *testing.T, seed int64) ([]trace.ReplanRecord, sim.WorldStats) {
	t.Helper()
	spec := &workload.Spec{
		Seed:      seed,
		Horizon:   400,
		Resources: []sim.ResourceSpec{{ID: "cpu", Capacity: 6}},
		Clients: []workload.ClientSpec{{
			ID: "web", Resource: "cpu", Rate: 0.2, Weight: 2,
			Arrival:  workload.ArrivalSpec{Process: workload.ArrivalPoisson},
			Amount:   workload.DistSpec{Type: workload.DistUniform, Params: map[string]float64{"min": 0.5, "max": 3}},
			Duration: workload.DistSpec{Type: workload.DistExponential, Params: map[string]float64{"mean": 20}},
		}, {
			ID: "batch", Resource: "cpu", Rate: 0.05, Weight: 1,
			Arrival:  workload.ArrivalSpec{Process: workload.ArrivalConstant},
			Amount:   workload.DistSpec{Type: workload.DistConstant, Params: map[string]float64{"value": 2}},
			Duration: workload.DistSpec{Type: workload.DistConstant, Params: map[string]float64{"value": 40}},
		}},
	}
	demands, err := workload.Generate(spec)
	require.NoError(t, err)

	w, err := sim.NewWorld(sim.NewEngine(), spec.Resources)
	require.NoError(t, err)
	for _, d := range demands {
		require.NoError(t, w.Inject(d))
	}
	var violations []error
	w.Engine().OnDispatch(func(*sim.Event) {
		if err := w.CheckInvariants(); err != nil {
			violations = append(violations, err)
		}
	})
	cfg := Config{
		TriggerTypes: []sim.EventType{sim.EventContention},
		Interval:     25,
		SolveLatency: 2,
		Retry:        fastRetry,
	}
	s, err := NewSession("det", cfg, w, pool.New(pool.Config{MaxConcurrent: 4}), optimize.NewSimplexSolver())
	require.NoError(t, err)
	defer s.Stop()

	_, err = s.Advance(context.Background(), 500)
	require.NoError(t, err)
	assert.Empty(t, violations)

	records := s.Trace().Replans
	for i := range records {
		records[i].SolveDuration = 0
	}
	return records, w.Stats()
}

func TestSession_DeterministicAndCapacitySafe(t *testing.T) {
	a, statsA := runScenario(t, 11)
	b, statsB := runScenario(t, 11)
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)
	assert.Equal(t, statsA, statsB)
	assert.Positive(t, statsA.GrantedByPlan)
}

func TestSession_ObserversReceiveCloudEvents(t *testing.T) {
	f := newFixture(t, Config{Interval: 10}, optimize.NewScripted(emptyOptimal()), nil, 5)
	var mu sync.Mutex
	var events []cloudevents.Event
	f.session.AddObserver(func(_ context.Context, e cloudevents.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
		return errors.New("observer errors are logged, not fatal")
	})

	_, err := f.session.Advance(context.Background(), 10)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	var path []State
	ids := map[string]bool{}
	for _, e := range events {
		assert.NoError(t, e.Validate())
		assert.False(t, ids[e.ID()], "duplicate event id")
		ids[e.ID()] = true
		assert.Equal(t, f.session.ID(), e.Subject())
		if e.Type() == EventTypeTransition {
			var data TransitionData
			require.NoError(t, e.DataAs(&data))
			path = append(path, data.To)
		}
	}
	assert.Equal(t, []State{StateSnapshotTaken, StateSolving, StateApplying, StateIdle}, path)
	assert.Equal(t, EventTypeReplan, events[len(events)-2].Type())
}
