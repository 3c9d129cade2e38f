// Package facade is the entry point for callers driving bridge sessions:
// it creates, advances, inspects and stops sessions that share one solver
// pool.
package facade

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/simopt/simopt/sim"
	"github.com/simopt/simopt/sim/bridge"
	"github.com/simopt/simopt/sim/optimize"
	"github.com/simopt/simopt/sim/pool"
	"github.com/simopt/simopt/sim/trace"
	"github.com/simopt/simopt/sim/workload"
)

// SessionConfig describes one session: its world and its replan policy.
type SessionConfig struct {
	Name      string             `yaml:"name" toml:"name"`
	Solver    string             `yaml:"solver" toml:"solver"`
	Bridge    bridge.Config      `yaml:"bridge" toml:"bridge"`
	Resources []sim.ResourceSpec `yaml:"resources" toml:"resources"`
	Demands   []sim.Demand       `yaml:"demands" toml:"demands"`
	// Workload, when set, adds its resources and generated demands.
	Workload *workload.Spec `yaml:"workload,omitempty" toml:"workload,omitempty"`
}

// Options configures a Service.
type Options struct {
	Pool pool.Config
	// Registry resolves solver names. Nil uses optimize.DefaultRegistry.
	Registry *optimize.Registry
}

// AdvanceRequest moves a session forward either to Until (inclusive) or
// by Steps dispatched events when Steps > 0.
type AdvanceRequest struct {
	Until int64
	Steps int
}

// AdvanceResult reports what one advance did.
type AdvanceResult struct {
	Clock      int64
	Dispatched int
	Replans    []trace.ReplanRecord
	Discarded  int
	Failures   []sim.ProcessFailure
	State      bridge.StateView
}

type entry struct {
	name    string
	session *bridge.Session
	// busy serializes advance, replan and stop on one session.
	busy sync.Mutex

	cancelMu sync.Mutex
	cancel   context.CancelFunc // of the running advance, if any
}

// Service owns the shared solver pool and the live sessions. It is safe for
// concurrent use; calls on one session are serialized and concurrent calls
// on the same session fail with ErrSessionBusy.
type Service struct {
	pool     *pool.Pool
	registry *optimize.Registry

	mu        sync.RWMutex
	sessions  map[string]*entry
	observers []bridge.Observer
	closed    bool
}

// NewService creates a service with its own solver pool.
func NewService(opts Options) (*Service, error) {
	if err := opts.Pool.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	reg := opts.Registry
	if reg == nil {
		reg = optimize.DefaultRegistry()
	}
	return &Service{
		pool:     pool.New(opts.Pool),
		registry: reg,
		sessions: make(map[string]*entry),
	}, nil
}

// RegisterSolver makes a solver backend available to later sessions.
func (s *Service) RegisterSolver(name string, f optimize.Factory) {
	s.registry.Register(name, f)
}

// AddObserver subscribes o to the notifications of every session created
// afterwards.
func (s *Service) AddObserver(o bridge.Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// PoolStats returns the shared pool's counters.
func (s *Service) PoolStats() pool.Stats { return s.pool.Stats() }

// Collector exposes the shared pool as Prometheus metrics.
func (s *Service) Collector(namespace string) prometheus.Collector {
	return pool.NewPrometheusCollector(s.pool, namespace)
}

// CreateSession validates cfg, builds the world and starts an Idle session.
func (s *Service) CreateSession(cfg SessionConfig) (string, error) {
	solverName := cfg.Solver
	if solverName == "" {
		solverName = optimize.DefaultSolver
	}
	if !s.registry.IsValid(solverName) {
		return "", fmt.Errorf("%w: unknown solver %q; valid options: %v", ErrConfigValidation, solverName, s.registry.Names())
	}
	solver, err := s.registry.New(solverName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	world, err := buildWorld(cfg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrServiceClosed
	}
	session, err := bridge.NewSession(id.String(), cfg.Bridge, world, s.pool, solver)
	if err != nil {
		return "", err
	}
	for _, o := range s.observers {
		session.AddObserver(o)
	}
	name := cfg.Name
	if name == "" {
		name = id.String()
	}
	s.sessions[id.String()] = &entry{name: name, session: session}
	logrus.Infof("session %s (%s) created: solver=%s resources=%d pending_events=%d",
		id, name, solverName, len(world.ResourceIDs()), world.Engine().Pending())
	return id.String(), nil
}

func buildWorld(cfg SessionConfig) (*sim.World, error) {
	resources := append([]sim.ResourceSpec(nil), cfg.Resources...)
	demands := append([]sim.Demand(nil), cfg.Demands...)
	if cfg.Workload != nil {
		generated, err := workload.Generate(cfg.Workload)
		if err != nil {
			return nil, err
		}
		resources = append(resources, cfg.Workload.Resources...)
		demands = append(demands, generated...)
	}
	world, err := sim.NewWorld(sim.NewEngine(), resources)
	if err != nil {
		return nil, err
	}
	for _, d := range demands {
		if err := world.Inject(d); err != nil {
			return nil, err
		}
	}
	return world, nil
}

func (s *Service) lookup(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrServiceClosed
	}
	e, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e, nil
}

// acquire looks up a session and takes its busy lock without waiting.
func (s *Service) acquire(id string) (*entry, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if !e.busy.TryLock() {
		return nil, fmt.Errorf("%w: %s has a call in progress", ErrSessionBusy, id)
	}
	// Stopped while we were acquiring.
	if _, err := s.lookup(id); err != nil {
		e.busy.Unlock()
		return nil, err
	}
	return e, nil
}

// AdvanceSimulation runs a session forward. It blocks while a solve whose
// logical latency has elapsed is still running; cancelling ctx or stopping
// the session returns early.
func (s *Service) AdvanceSimulation(ctx context.Context, id string, req AdvanceRequest) (AdvanceResult, error) {
	e, err := s.acquire(id)
	if err != nil {
		return AdvanceResult{}, err
	}
	defer e.busy.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.cancelMu.Lock()
	e.cancel = cancel
	e.cancelMu.Unlock()
	defer func() {
		e.cancelMu.Lock()
		e.cancel = nil
		e.cancelMu.Unlock()
	}()
	// A StopSession that removed the entry before cancel was set would
	// otherwise wait for the whole advance.
	if _, err := s.lookup(id); err != nil {
		return AdvanceResult{}, err
	}

	var report bridge.Report
	if req.Steps > 0 {
		report, err = e.session.AdvanceSteps(ctx, req.Steps)
	} else {
		report, err = e.session.Advance(ctx, req.Until)
	}
	res := AdvanceResult{
		Clock:      report.Clock,
		Dispatched: report.Dispatched,
		Replans:    report.Replans,
		Discarded:  report.Discarded,
		Failures:   report.Failures,
		State:      e.session.State(),
	}
	if errors.Is(err, bridge.ErrSessionStopped) {
		return res, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return res, err
}

// RequestReplan starts a manual replan. override is merged over the
// session's template params for this replan only.
func (s *Service) RequestReplan(_ context.Context, id string, override optimize.Params) error {
	e, err := s.acquire(id)
	if err != nil {
		return err
	}
	defer e.busy.Unlock()
	return e.session.RequestReplan(override)
}

// GetState returns the session's latest state without blocking.
func (s *Service) GetState(id string) (bridge.StateView, error) {
	e, err := s.lookup(id)
	if err != nil {
		return bridge.StateView{}, err
	}
	return e.session.State(), nil
}

// Summary aggregates the session's decision trace.
func (s *Service) Summary(id string) (*trace.TraceSummary, error) {
	e, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer e.busy.Unlock()
	return trace.Summarize(e.session.Trace()), nil
}

// Sessions returns the live session ids with their names, sorted by id.
func (s *Service) Sessions() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.sessions))
	for id, e := range s.sessions {
		out[id] = e.name
	}
	return out
}

// SessionIDs returns the live session ids in sorted order.
func (s *Service) SessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StopSession cancels the session's solve and removes it. Later calls with
// the id fail with ErrSessionNotFound.
func (s *Service) StopSession(id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrServiceClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	stopEntry(e)
	logrus.Infof("session %s (%s) stopped", id, e.name)
	return nil
}

func stopEntry(e *entry) {
	e.cancelMu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.cancelMu.Unlock()
	e.busy.Lock()
	defer e.busy.Unlock()
	e.session.Stop()
}

// Close stops every session and the solver pool.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range entries {
		stopEntry(e)
	}
	s.pool.Close()
}
