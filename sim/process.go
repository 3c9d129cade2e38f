package sim

import "fmt"

// Handler is a process continuation. The engine calls it when an event
// carrying it fires; the handler suspends the process again by scheduling
// its next continuation (Hold, ScheduleAt) or ends it with Finish.
// Returning an error terminates the process.
type Handler func(p *Process, ev *Event) error

// Process is a unit of simulated behaviour. Between events it is suspended
// and its only state is the continuation held by its pending events.
type Process struct {
	id      ProcessID
	eng     *Engine
	pending map[uint64]*Event
	done    bool
	err     error
}

// ID returns the process identifier.
func (p *Process) ID() ProcessID { return p.id }

// Now returns the engine clock.
func (p *Process) Now() int64 { return p.eng.clock }

// Done reports whether the process finished or failed.
func (p *Process) Done() bool { return p.done }

// Err returns the error that terminated the process, if any.
func (p *Process) Err() error { return p.err }

// Suspended reports whether the process has a continuation scheduled.
func (p *Process) Suspended() bool { return !p.done && len(p.pending) > 0 }

// ScheduleAt suspends the process until time at, resuming it with next.
func (p *Process) ScheduleAt(at int64, typ EventType, payload any, next Handler) (EventHandle, error) {
	if p.done {
		return EventHandle{}, fmt.Errorf("process %q already finished", p.id)
	}
	if next == nil {
		panic(fmt.Sprintf("ScheduleAt: nil continuation for process %q", p.id))
	}
	ev := &Event{
		Time:     at,
		Priority: PriorityNormal,
		Type:     typ,
		Payload:  payload,
		Owner:    p.id,
		resume:   next,
	}
	h, err := p.eng.schedule(ev)
	if err != nil {
		return EventHandle{}, err
	}
	p.pending[ev.seq] = ev
	return h, nil
}

// Hold suspends the process for delay ticks.
func (p *Process) Hold(delay int64, next Handler) (EventHandle, error) {
	if delay < 0 {
		return EventHandle{}, fmt.Errorf("%w: negative hold %d for process %q", ErrInvalidTime, delay, p.id)
	}
	return p.ScheduleAt(p.eng.clock+delay, EventProcessResume, nil, next)
}

// Emit schedules a notification owned by the process at the current time.
// Notifications reach engine listeners but resume nobody.
func (p *Process) Emit(typ EventType, payload any) (EventHandle, error) {
	return p.eng.schedule(&Event{
		Time:     p.eng.clock,
		Priority: PriorityNormal,
		Type:     typ,
		Payload:  payload,
		Owner:    p.id,
	})
}

// Finish ends the process and cancels its outstanding continuations.
func (p *Process) Finish() {
	p.terminate()
}

func (p *Process) terminate() {
	if p.done {
		return
	}
	p.done = true
	for _, ev := range p.pending {
		if !ev.cancelled && !ev.consumed {
			ev.cancelled = true
			p.eng.live--
		}
	}
	p.pending = make(map[uint64]*Event)
}
