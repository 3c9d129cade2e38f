// Package pool bounds how many optimization solves run at once across all
// sessions. Requests over the limit wait in submission order, or by
// priority when configured.
package pool

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/simopt/simopt/sim/optimize"
)

// ErrPoolClosed is returned to requests submitted to, or waiting in, a
// closed pool.
var ErrPoolClosed = errors.New("solver pool closed")

// Config controls admission.
type Config struct {
	MaxConcurrent    int  `yaml:"max_concurrent" toml:"max_concurrent"`
	PriorityOrdering bool `yaml:"priority_ordering" toml:"priority_ordering"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be >= 1, got %d", c.MaxConcurrent)
	}
	return nil
}

// Request is one solve submission.
type Request struct {
	Owner    string // session id, for logs
	Model    *optimize.Model
	Solver   optimize.Solver
	Budget   time.Duration
	Priority int // higher first when PriorityOrdering is set
	// OnAdmit runs in the submitting goroutine once a slot is held and
	// before the solver starts.
	OnAdmit func()
}

// Stats is a point-in-time copy of the pool counters.
type Stats struct {
	MaxConcurrent int
	Running       int
	Queued        int
	Submitted     int64
	Admitted      int64
	Completed     int64
	Cancelled     int64 // requests abandoned while queued
	Outcomes      map[optimize.Status]int64
}

type waiter struct {
	owner    string
	priority int
	seq      uint64
	ready    chan struct{}
	admitted bool
	err      error
	index    int
}

// Pool is the single synchronized structure shared by sessions. It is safe
// for concurrent use.
type Pool struct {
	mu       sync.Mutex
	cfg      Config
	running  int
	waiters  waitQueue
	nextSeq  uint64
	closed   bool
	stats    Stats
	outcomes map[optimize.Status]int64
}

// New creates a pool. Panics on an invalid config; call Config.Validate on
// user input first.
func New(cfg Config) *Pool {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("pool.New: %v", err))
	}
	p := &Pool{
		cfg:      cfg,
		outcomes: make(map[optimize.Status]int64),
	}
	p.waiters.priority = cfg.PriorityOrdering
	return p
}

// Submit waits for a slot, then runs the request through optimize.Invoke.
// Only the calling goroutine blocks. A request cancelled while queued, or
// rejected by a closed pool, returns a backend-error result without running
// the solver.
func (p *Pool) Submit(ctx context.Context, req Request) optimize.Result {
	if req.Model == nil || req.Solver == nil {
		panic("pool.Submit: model and solver must be set")
	}
	start := time.Now()
	if err := p.acquire(ctx, req.Owner, req.Priority); err != nil {
		res := optimize.Failure(optimize.StatusBackendError, "not admitted: %v", err)
		res.Solver = req.Solver.Name()
		res.Duration = time.Since(start)
		return res
	}
	defer p.release()

	if req.OnAdmit != nil {
		req.OnAdmit()
	}
	res := optimize.Invoke(ctx, req.Solver, req.Model, req.Budget)

	p.mu.Lock()
	p.stats.Completed++
	p.outcomes[res.Status]++
	p.mu.Unlock()
	return res
}

func (p *Pool) acquire(ctx context.Context, owner string, priority int) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.stats.Submitted++
	if err := ctx.Err(); err != nil {
		p.stats.Cancelled++
		p.mu.Unlock()
		return err
	}
	if p.running < p.cfg.MaxConcurrent && p.waiters.Len() == 0 {
		p.running++
		p.stats.Admitted++
		p.mu.Unlock()
		return nil
	}
	w := &waiter{owner: owner, priority: priority, seq: p.nextSeq, ready: make(chan struct{})}
	p.nextSeq++
	heap.Push(&p.waiters, w)
	logrus.Debugf("solver pool: %s queued (running=%d queued=%d)", owner, p.running, p.waiters.Len())
	p.mu.Unlock()

	select {
	case <-w.ready:
		return w.err
	case <-ctx.Done():
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if w.admitted {
		// Admitted while being cancelled: hand the slot on.
		p.running--
		p.admitLocked()
	} else if w.err == nil {
		heap.Remove(&p.waiters, w.index)
	}
	p.stats.Cancelled++
	logrus.Debugf("solver pool: %s left the queue: %v", owner, ctx.Err())
	return ctx.Err()
}

func (p *Pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running--
	p.admitLocked()
}

func (p *Pool) admitLocked() {
	for !p.closed && p.running < p.cfg.MaxConcurrent && p.waiters.Len() > 0 {
		w := heap.Pop(&p.waiters).(*waiter)
		w.admitted = true
		p.running++
		p.stats.Admitted++
		close(w.ready)
		logrus.Debugf("solver pool: %s admitted", w.owner)
	}
}

// Close rejects queued and future requests. Running solves finish normally.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for p.waiters.Len() > 0 {
		w := heap.Pop(&p.waiters).(*waiter)
		w.err = ErrPoolClosed
		close(w.ready)
	}
}

// Stats returns a copy of the counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.MaxConcurrent = p.cfg.MaxConcurrent
	s.Running = p.running
	s.Queued = p.waiters.Len()
	s.Outcomes = make(map[optimize.Status]int64, len(p.outcomes))
	for k, v := range p.outcomes {
		s.Outcomes[k] = v
	}
	return s
}

// waitQueue orders waiters by seq, or by (priority desc, seq).
type waitQueue struct {
	items    []*waiter
	priority bool
}

func (q *waitQueue) Len() int { return len(q.items) }

func (q *waitQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if q.priority && a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.seq < b.seq
}

func (q *waitQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *waitQueue) Push(x any) {
	w := x.(*waiter)
	w.index = len(q.items)
	q.items = append(q.items, w)
}

func (q *waitQueue) Pop() any {
	old := q.items
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	q.items = old[:n-1]
	return w
}
