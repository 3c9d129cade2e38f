// sim/engine.go
package sim

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Forever is an advance target with no time bound. Advancing to Forever
// leaves the clock at the last dispatched event once the queue drains.
const Forever int64 = math.MaxInt64

// Listener observes every dispatched event, after the owning process (if
// any) has been resumed.
type Listener func(ev *Event)

// StopFunc is consulted after each dispatch; returning true ends Advance
// with the clock at that event's time.
type StopFunc func(ev *Event) bool

// ProcessFailure records a process that returned an error (or panicked)
// while being resumed. The engine keeps running after a failure.
type ProcessFailure struct {
	Process ProcessID
	Time    int64
	Event   EventType
	Err     error
}

// AdvanceStats describes one Advance call.
type AdvanceStats struct {
	From       int64
	To         int64
	Dispatched int
	Stopped    bool // true when the stop predicate ended the advance
}

// Engine is a single-threaded discrete-event scheduler. It owns the logical
// clock, the pending event heap and the processes of one simulation.
//
// Thread-safety: NOT thread-safe. One goroutine drives an engine at a time.
type Engine struct {
	clock      int64
	queue      eventQueue
	nextSeq    uint64
	live       int
	dispatched int64
	processes  map[ProcessID]*Process
	listeners  []Listener
	failures   []ProcessFailure
}

// NewEngine creates an engine with the clock at zero.
func NewEngine() *Engine {
	e := &Engine{
		queue:     make(eventQueue, 0),
		processes: make(map[ProcessID]*Process),
	}
	heap.Init(&e.queue)
	return e
}

// Now returns the current logical time.
func (e *Engine) Now() int64 { return e.clock }

// Pending returns the number of live (non-cancelled) scheduled events.
func (e *Engine) Pending() int { return e.live }

// Dispatched returns the total number of events dispatched so far.
func (e *Engine) Dispatched() int64 { return e.dispatched }

// OnDispatch registers a listener for every dispatched event.
func (e *Engine) OnDispatch(l Listener) {
	e.listeners = append(e.listeners, l)
}

// Failures returns a copy of the recorded process failures.
func (e *Engine) Failures() []ProcessFailure {
	out := make([]ProcessFailure, len(e.failures))
	copy(out, e.failures)
	return out
}

// Schedule inserts an event. Fails with ErrInvalidTime when the event lies
// before the current clock.
func (e *Engine) Schedule(ev Event) (EventHandle, error) {
	return e.schedule(&ev)
}

func (e *Engine) schedule(ev *Event) (EventHandle, error) {
	if ev.Time < e.clock {
		return EventHandle{}, fmt.Errorf("%w: event %q at %d is before clock %d", ErrInvalidTime, ev.Type, ev.Time, e.clock)
	}
	ev.seq = e.nextSeq
	e.nextSeq++
	ev.cancelled = false
	ev.consumed = false
	heap.Push(&e.queue, ev)
	e.live++
	return EventHandle{ev: ev}, nil
}

// Cancel tombstones a scheduled event. Cancelling an event that was already
// dispatched or cancelled is a no-op.
func (e *Engine) Cancel(h EventHandle) {
	if !h.Live() {
		return
	}
	h.ev.cancelled = true
	e.live--
	if h.ev.Owner != "" {
		if p, ok := e.processes[h.ev.Owner]; ok {
			delete(p.pending, h.ev.seq)
		}
	}
}

// PeekTime returns the time of the next live event.
func (e *Engine) PeekTime() (int64, bool) {
	ev := e.peekLive()
	if ev == nil {
		return 0, false
	}
	return ev.Time, true
}

// peekLive drops tombstones from the top of the heap and returns the next
// live event without removing it.
func (e *Engine) peekLive() *Event {
	for e.queue.Len() > 0 {
		top := e.queue[0]
		if !top.cancelled {
			return top
		}
		heap.Pop(&e.queue)
	}
	return nil
}

// Advance dispatches events in (time, priority, seq) order until the queue
// is empty, the next event lies after target, or stop returns true. Events
// scheduled during dispatch at or before target are processed in order
// before Advance returns.
//
// The clock ends at the last dispatched event when stop fires, otherwise at
// target (Forever leaves it at the last dispatched event).
func (e *Engine) Advance(target int64, stop StopFunc) (AdvanceStats, error) {
	if target < e.clock {
		return AdvanceStats{}, fmt.Errorf("%w: advance target %d is before clock %d", ErrInvalidTime, target, e.clock)
	}
	stats := AdvanceStats{From: e.clock}
	for {
		next := e.peekLive()
		if next == nil || next.Time > target {
			if target != Forever {
				e.clock = target
			}
			stats.To = e.clock
			return stats, nil
		}
		heap.Pop(&e.queue)
		e.clock = next.Time
		e.dispatch(next)
		stats.Dispatched++
		if stop != nil && stop(next) {
			stats.Stopped = true
			stats.To = e.clock
			return stats, nil
		}
	}
}

func (e *Engine) dispatch(ev *Event) {
	ev.consumed = true
	e.live--
	e.dispatched++
	logrus.Debugf("[tick %07d] dispatch %s (prio=%d seq=%d owner=%q)", e.clock, ev.Type, ev.Priority, ev.seq, ev.Owner)

	if ev.Owner != "" {
		if p, ok := e.processes[ev.Owner]; ok {
			delete(p.pending, ev.seq)
			if ev.resume != nil && !p.done {
				e.resume(p, ev)
			}
		}
	}
	for _, l := range e.listeners {
		l(ev)
	}
}

// resume runs the continuation attached to ev. An error or panic terminates
// only the owning process.
func (e *Engine) resume(p *Process, ev *Event) {
	next := ev.resume
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return next(p, ev)
	}()
	if err == nil {
		return
	}
	logrus.Warnf("[tick %07d] process %s failed on %s: %v", e.clock, p.id, ev.Type, err)
	e.failures = append(e.failures, ProcessFailure{
		Process: p.id,
		Time:    e.clock,
		Event:   ev.Type,
		Err:     err,
	})
	p.err = err
	p.terminate()
}

// Spawn creates a process whose start handler runs at time at.
func (e *Engine) Spawn(id ProcessID, at int64, start Handler) (*Process, error) {
	if id == "" {
		panic("Spawn: empty process ID")
	}
	if start == nil {
		panic(fmt.Sprintf("Spawn: nil start handler for process %q", id))
	}
	if _, exists := e.processes[id]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateProcess, id)
	}
	p := &Process{
		id:      id,
		eng:     e,
		pending: make(map[uint64]*Event),
	}
	if _, err := p.ScheduleAt(at, EventProcessStart, nil, start); err != nil {
		return nil, err
	}
	e.processes[id] = p
	return p, nil
}

// Process looks up a process by ID.
func (e *Engine) Process(id ProcessID) (*Process, bool) {
	p, ok := e.processes[id]
	return p, ok
}
