// Package bridge couples a simulation to an optimization solver. A session
// snapshots the world when a trigger fires, solves a model of that snapshot
// on the shared solver pool, and applies the resulting plan back into the
// simulation at a deterministic logical time.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/simopt/simopt/sim"
	"github.com/simopt/simopt/sim/optimize"
	"github.com/simopt/simopt/sim/pool"
	"github.com/simopt/simopt/sim/trace"
)

// Report summarizes one Advance call.
type Report struct {
	From       int64
	Clock      int64
	Dispatched int
	Replans    []trace.ReplanRecord // replans that finished during the call
	Discarded  int                  // stale results dropped during the call
	Failures   []sim.ProcessFailure // process failures during the call
}

// replan is one solve cycle from snapshot to outcome.
type replan struct {
	seq     int
	trigger trace.TriggerRecord
	snap    *sim.Snapshot
	params  optimize.Params
	model   *optimize.Model
	due     sim.EventHandle
	done    chan optimize.Result
	cancel  context.CancelFunc
}

// Session binds one world to a replan cadence. Advance, AdvanceSteps,
// RequestReplan and Stop must not be called concurrently; State may be
// called from any goroutine.
type Session struct {
	id       string
	cfg      Config
	world    *sim.World
	eng      *sim.Engine
	pool     *pool.Pool
	solver   optimize.Solver
	template optimize.Template
	trace    *trace.SimulationTrace
	triggers map[sim.EventType]bool
	log      *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards state, the counters published in StateView and observers.
	// The solve goroutine takes it when a queued solve is admitted.
	mu        sync.Mutex
	state     State
	clock     int64
	counters  StateView
	observers []Observer
	view      atomic.Pointer[StateView]

	// Owned by the advancing goroutine.
	horizon     sim.EventHandle
	inflight    *replan
	dueFired    bool
	awaiting    bool
	trigger     *trace.TriggerRecord
	coalesced   *trace.TriggerRecord
	staleStreak int
	seq         int
}

// NewSession creates an Idle session over world. The config is completed
// with WithDefaults and validated.
func NewSession(id string, cfg Config, world *sim.World, p *pool.Pool, solver optimize.Solver) (*Session, error) {
	if world == nil || p == nil || solver == nil {
		panic("bridge.NewSession: world, pool and solver must be set")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tmpl, err := optimize.NewTemplate(cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		cfg:      cfg,
		world:    world,
		eng:      world.Engine(),
		pool:     p,
		solver:   solver,
		template: tmpl,
		trace:    trace.NewSimulationTrace(trace.TraceConfig{Level: cfg.TraceLevel}),
		triggers: make(map[sim.EventType]bool, len(cfg.TriggerTypes)),
		log:      logrus.WithField("session", id),
		ctx:      ctx,
		cancel:   cancel,
		state:    StateIdle,
	}
	for _, t := range cfg.TriggerTypes {
		s.triggers[t] = true
	}
	s.counters.Session = id
	s.eng.OnDispatch(s.onDispatch)
	if cfg.Interval > 0 {
		if err := s.scheduleHorizon(s.eng.Now() + cfg.Interval); err != nil {
			cancel()
			return nil, err
		}
	}
	s.syncClock()
	s.update(func(*StateView) {})
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Config returns the effective configuration.
func (s *Session) Config() Config { return s.cfg }

// World returns the simulated world.
func (s *Session) World() *sim.World { return s.world }

// Trace returns the decision trace. Read it only between Advance calls.
func (s *Session) Trace() *trace.SimulationTrace { return s.trace }

// State returns the latest published view without blocking.
func (s *Session) State() StateView { return *s.view.Load() }

func (s *Session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// publishLocked stores a fresh StateView. Callers hold mu.
func (s *Session) publishLocked() {
	v := s.counters
	v.State = s.state
	v.Clock = s.clock
	s.view.Store(&v)
}

// transition moves the session to `to`, panicking on an illegal move, and
// notifies observers. Runs on the advancing goroutine or the solve goroutine.
func (s *Session) transition(to State, reason string) {
	s.mu.Lock()
	from := s.state
	mustTransition(from, to)
	s.state = to
	s.publishLocked()
	clock := s.clock
	s.mu.Unlock()
	s.notifyTransition(from, to, clock, reason)
}

// transitionFrom moves the session from `from` to `to` only if it is still in
// `from`, checking and moving under one hold of mu. It reports whether the
// move happened; a skipped move publishes nothing.
func (s *Session) transitionFrom(from, to State, reason string) bool {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return false
	}
	mustTransition(from, to)
	s.state = to
	s.publishLocked()
	clock := s.clock
	s.mu.Unlock()
	s.notifyTransition(from, to, clock, reason)
	return true
}

func (s *Session) notifyTransition(from, to State, clock int64, reason string) {
	s.log.Debugf("[tick %07d] %s -> %s", clock, from, to)
	s.publish(EventTypeTransition, TransitionData{Session: s.id, From: from, To: to, Clock: clock, Reason: reason})
}

// update mutates the published counters under mu.
func (s *Session) update(fn func(v *StateView)) {
	s.mu.Lock()
	fn(&s.counters)
	s.clock = s.eng.Now()
	s.publishLocked()
	s.mu.Unlock()
}

func (s *Session) syncClock() {
	s.mu.Lock()
	s.clock = s.eng.Now()
	s.mu.Unlock()
}

func (s *Session) scheduleHorizon(at int64) error {
	h, err := s.eng.Schedule(sim.Event{
		Time:     at,
		Priority: sim.PriorityLate,
		Type:     sim.EventReplanHorizon,
		Payload:  s.id,
	})
	if err != nil {
		return fmt.Errorf("scheduling replan horizon: %w", err)
	}
	s.horizon = h
	return nil
}

// onDispatch sees every dispatched event and turns the relevant ones into
// triggers. It runs inside Engine.Advance; the stop predicate halts the
// engine right after a trigger so the snapshot is taken at its exact time.
func (s *Session) onDispatch(ev *sim.Event) {
	switch {
	case ev.Type == sim.EventReplanDue:
		if s.inflight != nil && ev.Payload == s.inflight.seq {
			s.dueFired = true
		}
	case ev.Type == sim.EventReplanHorizon:
		if ev.Payload != s.id {
			return
		}
		if s.currentState() != StateStopped {
			if err := s.scheduleHorizon(ev.Time + s.cfg.Interval); err != nil {
				s.log.Warnf("[tick %07d] horizon trigger disabled: %v", ev.Time, err)
			}
		}
		s.observeTrigger(trace.TriggerHorizon, ev)
	case s.triggers[ev.Type]:
		s.observeTrigger(trace.TriggerEvent, ev)
	}
}

func (s *Session) observeTrigger(kind string, ev *sim.Event) {
	rec := trace.TriggerRecord{Clock: ev.Time, Kind: kind, EventType: string(ev.Type)}
	switch s.currentState() {
	case StateIdle:
		if s.trigger == nil {
			rec.Honored = true
			s.trigger = &rec
			return
		}
		rec.Coalesced = true
		s.coalesced = &rec
		s.update(func(v *StateView) { v.Coalesced++ })
	case StateFailed:
		s.update(func(v *StateView) { v.Ignored++ })
	case StateStopped:
		return
	default:
		rec.Coalesced = true
		s.coalesced = &rec
		s.update(func(v *StateView) { v.Coalesced++ })
		s.log.Debugf("[tick %07d] %s trigger coalesced into replan %d", ev.Time, kind, s.seq)
	}
	s.trace.RecordTrigger(rec)
}

// Advance runs the simulation up to and including until, replanning as
// triggers fire. It blocks while a solve whose logical latency has elapsed
// is still running. Cancelling ctx returns early; the pending result is
// consumed by the next call.
func (s *Session) Advance(ctx context.Context, until int64) (Report, error) {
	return s.run(ctx, until, 0)
}

// AdvanceSteps dispatches at most steps events.
func (s *Session) AdvanceSteps(ctx context.Context, steps int) (Report, error) {
	if steps < 1 {
		return Report{}, fmt.Errorf("steps must be >= 1, got %d", steps)
	}
	return s.run(ctx, sim.Forever, steps)
}

func (s *Session) run(ctx context.Context, target int64, steps int) (Report, error) {
	if s.currentState() == StateStopped {
		return Report{}, fmt.Errorf("%w: %s", ErrSessionStopped, s.id)
	}
	if target < s.eng.Now() {
		return Report{}, fmt.Errorf("%w: advance target %d is before clock %d", sim.ErrInvalidTime, target, s.eng.Now())
	}
	report := Report{From: s.eng.Now()}
	replansBefore := len(s.trace.Replans)
	failuresBefore := len(s.eng.Failures())
	discardedBefore := s.State().Discarded
	defer func() {
		report.Clock = s.eng.Now()
		report.Replans = s.trace.ReplansSince(replansBefore)
		report.Failures = s.eng.Failures()[failuresBefore:]
		report.Discarded = s.State().Discarded - discardedBefore
		s.update(func(*StateView) {})
	}()

	dispatched := 0
	stop := func(*sim.Event) bool {
		dispatched++
		return s.dueFired || s.trigger != nil || (steps > 0 && dispatched >= steps) || ctx.Err() != nil
	}
	for {
		if err := s.settle(ctx); err != nil {
			return report, err
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if steps > 0 && dispatched >= steps {
			break
		}
		stats, err := s.eng.Advance(target, stop)
		report.Dispatched += stats.Dispatched
		if err != nil {
			return report, err
		}
		if !stats.Stopped {
			break
		}
	}
	return report, nil
}

// settle consumes a due result and starts any pending trigger.
func (s *Session) settle(ctx context.Context) error {
	if s.dueFired {
		s.dueFired = false
		s.awaiting = true
	}
	if s.awaiting {
		r := s.inflight
		var res optimize.Result
		select {
		case res = <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.awaiting = false
		s.complete(r, res)
	}
	if s.trigger != nil {
		trig := *s.trigger
		s.trigger = nil
		if err := s.begin(trig, nil); err != nil {
			return err
		}
	}
	return nil
}

// RequestReplan starts a replan now with override merged over the
// configured template params for this solve only. Allowed in Idle and
// Failed.
func (s *Session) RequestReplan(override optimize.Params) error {
	switch st := s.currentState(); st {
	case StateIdle, StateFailed:
	case StateStopped:
		return fmt.Errorf("%w: %s", ErrSessionStopped, s.id)
	default:
		return fmt.Errorf("%w: session %s is %s", ErrSessionBusy, s.id, st)
	}
	if err := validateParams(s.template, s.cfg.Params.Merge(override)); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	rec := trace.TriggerRecord{Clock: s.eng.Now(), Kind: trace.TriggerManual, Honored: true}
	return s.begin(rec, override)
}

// begin snapshots the world, builds the model and hands it to the pool.
func (s *Session) begin(trig trace.TriggerRecord, override optimize.Params) error {
	s.seq++
	s.syncClock()
	if s.currentState() == StateFailed {
		s.update(func(v *StateView) { v.FailureReason = "" })
	}
	s.transition(StateSnapshotTaken, trig.Kind)
	s.trace.RecordTrigger(trig)
	s.update(func(v *StateView) { v.Replans++ })

	r := &replan{
		seq:     s.seq,
		trigger: trig,
		snap:    s.world.Snapshot(),
		params:  s.cfg.Params.Merge(override),
		done:    make(chan optimize.Result, 1),
	}
	s.log.Debugf("[tick %07d] replan %d: %s trigger, %d waiting demands", r.snap.Time(), r.seq, trig.Kind, len(r.snap.Pending()))

	model, err := s.template.Build(r.snap, r.params)
	if err != nil {
		s.fail(s.record(r, optimize.Result{}), fmt.Sprintf("building model: %v", err))
		return nil
	}
	r.model = model

	due, err := s.eng.Schedule(sim.Event{
		Time:     r.snap.Time() + s.cfg.SolveLatency,
		Priority: sim.PriorityLate,
		Type:     sim.EventReplanDue,
		Payload:  r.seq,
	})
	if err != nil {
		return fmt.Errorf("scheduling replan due: %w", err)
	}
	r.due = due

	ctx, cancel := context.WithCancel(s.ctx)
	r.cancel = cancel
	s.inflight = r
	go s.solve(ctx, r)
	return nil
}

// solve runs on its own goroutine: every attempt goes through the pool, and
// transient failures are retried with backoff.
func (s *Session) solve(ctx context.Context, r *replan) {
	var res optimize.Result
	var total time.Duration
	retry := s.cfg.Retry
	for attempt := 1; ; attempt++ {
		req := pool.Request{
			Owner:    s.id,
			Model:    r.model,
			Solver:   s.solver,
			Budget:   s.cfg.SolveBudget,
			Priority: s.cfg.Priority,
			OnAdmit:  s.admitted,
		}
		res = s.pool.Submit(ctx, req)
		total += res.Duration
		res.Attempts = attempt
		if !res.Status.Transient() || attempt >= retry.MaxAttempts || ctx.Err() != nil {
			break
		}
		delay := retry.Delay(attempt)
		s.log.Warnf("replan %d attempt %d: %s; retrying in %v", r.seq, attempt, res, delay)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
			continue
		case <-ctx.Done():
			timer.Stop()
		}
		break
	}
	res.Duration = total
	r.done <- res
}

// admitted runs on the solve goroutine once an attempt holds a slot. A
// concurrent Stop or a retry attempt leaves the state alone.
func (s *Session) admitted() {
	s.transitionFrom(StateSnapshotTaken, StateSolving, "")
}

// complete consumes a solve result at its due time.
func (s *Session) complete(r *replan, res optimize.Result) {
	s.inflight = nil
	r.cancel()
	s.update(func(v *StateView) {
		last := res
		v.LastResult = &last
	})
	rec := s.record(r, res)

	if !res.Status.Success() {
		reason := string(res.Status)
		if res.Message != "" {
			reason = fmt.Sprintf("%s: %s", res.Status, res.Message)
		}
		s.fail(rec, reason)
		return
	}
	plan, err := s.template.Decode(r.snap, r.params, res)
	if err != nil {
		s.fail(rec, fmt.Sprintf("decoding result: %v", err))
		return
	}
	if reason, stale := s.stale(r.snap, plan); stale {
		s.discard(rec, reason)
		return
	}

	s.transition(StateApplying, "")
	if err := s.world.ApplyPlan(plan); err != nil {
		s.fail(rec, fmt.Sprintf("applying plan: %v", err))
		return
	}
	if err := s.world.CheckInvariants(); err != nil {
		s.fail(rec, fmt.Sprintf("post-apply check: %v", err))
		return
	}
	now := s.eng.Now()
	if _, err := s.eng.Schedule(sim.Event{
		Time:     now,
		Priority: sim.PriorityNormal,
		Type:     sim.EventReplanApplied,
		Payload:  plan,
	}); err != nil {
		s.fail(rec, fmt.Sprintf("scheduling replan-applied: %v", err))
		return
	}
	rec.Outcome = trace.OutcomeApplied
	rec.AppliedTime = now
	for _, g := range plan.Grants {
		rec.Grants = append(rec.Grants, trace.GrantRecord{Demand: g.Demand, Resource: string(g.Resource), Amount: g.Amount})
	}
	s.staleStreak = 0
	s.finish(rec)
	s.update(func(v *StateView) { v.Applied++ })
	s.log.Infof("[tick %07d] replan %d applied: %d grants, %.3f total (%s)", now, r.seq, len(plan.Grants), plan.Total(), res)
	s.transition(StateIdle, "")
	s.rearmCoalesced()
}

func (s *Session) record(r *replan, res optimize.Result) trace.ReplanRecord {
	return trace.ReplanRecord{
		Session:       s.id,
		Seq:           r.seq,
		Trigger:       r.trigger.Kind,
		SnapshotTime:  r.snap.Time(),
		DueTime:       s.eng.Now(),
		AppliedTime:   -1,
		Status:        string(res.Status),
		Objective:     res.Objective,
		Attempts:      res.Attempts,
		SolveDuration: res.Duration,
	}
}

// stale reports whether the world moved on since snap in a way the plan
// cannot tolerate.
func (s *Session) stale(snap *sim.Snapshot, plan sim.Plan) (string, bool) {
	lag := s.eng.Now() - snap.Time()
	if tol := s.cfg.Staleness.MaxLag(); lag > tol {
		return fmt.Sprintf("snapshot is %d ticks old, tolerance %d", lag, tol), true
	}
	if s.cfg.Staleness.IgnoreMutations {
		return "", false
	}
	ids := plan.Resources()
	seen := make(map[sim.ResourceID]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, d := range snap.Pending() {
		if !seen[d.Resource] {
			seen[d.Resource] = true
			ids = append(ids, d.Resource)
		}
	}
	if s.world.Changed(snap, ids) {
		return "resources changed since snapshot", true
	}
	return "", false
}

func (s *Session) discard(rec trace.ReplanRecord, reason string) {
	rec.Outcome = trace.OutcomeStale
	rec.Reason = reason
	s.finish(rec)
	s.update(func(v *StateView) { v.Discarded++ })
	s.log.Warnf("[tick %07d] replan %d discarded: %s", s.eng.Now(), rec.Seq, reason)
	s.transition(StateIdle, reason)

	s.staleStreak++
	if s.cfg.MaxStaleRearms < 0 || s.staleStreak > s.cfg.MaxStaleRearms {
		s.log.Warnf("[tick %07d] %d consecutive stale results; waiting for the next trigger", s.eng.Now(), s.staleStreak)
		s.staleStreak = 0
		s.rearmCoalesced()
		return
	}
	s.coalesced = nil
	s.trigger = &trace.TriggerRecord{Clock: s.eng.Now(), Kind: trace.TriggerRearm, Honored: true}
}

func (s *Session) fail(rec trace.ReplanRecord, reason string) {
	rec.Outcome = trace.OutcomeFailed
	rec.Reason = reason
	s.finish(rec)
	s.coalesced = nil
	s.update(func(v *StateView) { v.FailureReason = reason })
	s.log.Warnf("[tick %07d] replan %d failed: %s", s.eng.Now(), rec.Seq, reason)
	s.transition(StateFailed, reason)
}

func (s *Session) finish(rec trace.ReplanRecord) {
	s.trace.RecordReplan(rec)
	s.publish(EventTypeReplan, rec)
}

// rearmCoalesced turns a trigger folded into the finished replan into a
// fresh one.
func (s *Session) rearmCoalesced() {
	if s.coalesced == nil {
		return
	}
	rec := *s.coalesced
	s.coalesced = nil
	rec.Clock = s.eng.Now()
	rec.Honored = true
	rec.Coalesced = false
	s.trigger = &rec
}

// Stop cancels any in-flight solve and marks the session Stopped. Further
// operations fail with ErrSessionStopped.
func (s *Session) Stop() {
	if s.currentState() == StateStopped {
		return
	}
	s.cancel()
	s.eng.Cancel(s.horizon)
	if r := s.inflight; r != nil {
		s.eng.Cancel(r.due)
		rec := s.record(r, optimize.Result{})
		rec.Outcome = trace.OutcomeCancelled
		rec.Reason = "session stopped"
		s.finish(rec)
		s.inflight = nil
	}
	s.trigger = nil
	s.coalesced = nil
	s.dueFired = false
	s.awaiting = false
	s.syncClock()
	s.transition(StateStopped, "stopped")
	s.log.Infof("[tick %07d] session stopped", s.eng.Now())
}
