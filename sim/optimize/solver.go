package optimize

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Solver is a pluggable backend. Solve must honour ctx cancellation; the
// returned status need not be classified, Invoke normalizes it.
type Solver interface {
	Name() string
	Solve(ctx context.Context, m *Model) Result
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc struct {
	ID string
	Fn func(ctx context.Context, m *Model) Result
}

func (f SolverFunc) Name() string { return f.ID }

func (f SolverFunc) Solve(ctx context.Context, m *Model) Result { return f.Fn(ctx, m) }

// Factory creates a fresh solver instance.
type Factory func() Solver

// Registry maps solver names to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces a named factory.
func (r *Registry) Register(name string, f Factory) {
	if name == "" || f == nil {
		panic("Registry.Register: name and factory must be set")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New creates the named solver.
func (r *Registry) New(name string) (Solver, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown solver %q; valid options: %v", name, r.Names())
	}
	return f(), nil
}

// IsValid reports whether name is registered.
func (r *Registry) IsValid(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Built-in solver names.
const (
	SolverSimplex = "simplex"
	SolverGreedy  = "greedy"
)

// DefaultSolver is used when a configuration names no solver.
const DefaultSolver = SolverSimplex

// ValidSolvers is the set of built-in solver names. Empty selects
// DefaultSolver.
var ValidSolvers = map[string]bool{"": true, SolverSimplex: true, SolverGreedy: true}

// DefaultRegistry returns a registry holding the built-in solvers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(SolverSimplex, func() Solver { return NewSimplexSolver() })
	r.Register(SolverGreedy, func() Solver { return NewGreedySolver() })
	return r
}

// Scripted is a test double that replays a fixed sequence of results. It is
// not part of DefaultRegistry. The
// last result repeats once the sequence is exhausted. Delay simulates solve
// time; Block makes every call wait for ctx cancellation.
type Scripted struct {
	ID      string
	Results []Result
	Delay   time.Duration
	Block   bool

	mu    sync.Mutex
	calls int
}

// NewScripted creates a scripted solver named "scripted".
func NewScripted(results ...Result) *Scripted {
	return &Scripted{ID: "scripted", Results: results}
}

func (s *Scripted) Name() string { return s.ID }

// Calls returns how many times Solve was invoked.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Scripted) Solve(ctx context.Context, _ *Model) Result {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()

	if s.Block {
		<-ctx.Done()
		return Failure(StatusBackendError, "cancelled: %v", ctx.Err())
	}
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Failure(StatusBackendError, "cancelled: %v", ctx.Err())
		case <-t.C:
		}
	}
	if len(s.Results) == 0 {
		return Failure(StatusBackendError, "no scripted results")
	}
	if i >= len(s.Results) {
		i = len(s.Results) - 1
	}
	return s.Results[i]
}
