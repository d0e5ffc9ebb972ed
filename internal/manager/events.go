package manager

import (
	"sync"
	"sync/atomic"

	"github.com/MrSnakeDoc/padherd/internal/controller"
)

type Status int

const (
	StatusPending Status = iota
	StatusBusy
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusBusy:
		return "busy"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Listener receives manager notifications. Nil fields are skipped. Input
// callbacks run on the controller read loop and must not block.
type Listener struct {
	ControllerPlugged   func(c controller.Controller, wasPowerCycling bool)
	ControllerUnplugged func(c controller.Controller, wasPowerCycling, wasTarget bool)
	ControllerSelected  func(c controller.Controller)
	StatusChanged       func(status Status, attempts int)
	Initialized         func()
	RawInputsUpdated    func(state controller.State)
	InputsUpdated       func(state controller.State)
}

// Events fans notifications out to listeners. Publishing reads a
// copy-on-write snapshot so the per-frame path takes no lock.
type Events struct {
	mu        sync.Mutex
	nextID    int
	listeners atomic.Pointer[[]entry]
}

type entry struct {
	id int
	l  Listener
}

func newEvents() *Events {
	e := &Events{}
	e.listeners.Store(&[]entry{})
	return e
}

func (e *Events) Subscribe(l Listener) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	cur := *e.listeners.Load()
	next := make([]entry, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, entry{id: id, l: l})
	e.listeners.Store(&next)

	return func() { e.remove(id) }
}

func (e *Events) remove(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := *e.listeners.Load()
	next := make([]entry, 0, len(cur))
	for _, x := range cur {
		if x.id != id {
			next = append(next, x)
		}
	}
	e.listeners.Store(&next)
}

func (e *Events) clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners.Store(&[]entry{})
}

func (e *Events) each(fn func(l Listener)) {
	for _, x := range *e.listeners.Load() {
		fn(x.l)
	}
}

func (e *Events) plugged(c controller.Controller, cycling bool) {
	e.each(func(l Listener) {
		if l.ControllerPlugged != nil {
			l.ControllerPlugged(c, cycling)
		}
	})
}

func (e *Events) unplugged(c controller.Controller, cycling, wasTarget bool) {
	e.each(func(l Listener) {
		if l.ControllerUnplugged != nil {
			l.ControllerUnplugged(c, cycling, wasTarget)
		}
	})
}

func (e *Events) selected(c controller.Controller) {
	e.each(func(l Listener) {
		if l.ControllerSelected != nil {
			l.ControllerSelected(c)
		}
	})
}

func (e *Events) status(s Status, attempts int) {
	e.each(func(l Listener) {
		if l.StatusChanged != nil {
			l.StatusChanged(s, attempts)
		}
	})
}

func (e *Events) initialized() {
	e.each(func(l Listener) {
		if l.Initialized != nil {
			l.Initialized()
		}
	})
}

func (e *Events) rawInputs(s controller.State) {
	e.each(func(l Listener) {
		if l.RawInputsUpdated != nil {
			l.RawInputsUpdated(s)
		}
	})
}

func (e *Events) inputs(s controller.State) {
	e.each(func(l Listener) {
		if l.InputsUpdated != nil {
			l.InputsUpdated(s)
		}
	})
}
