package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/padherd/internal/controller"
)

var ErrNotFound = errors.New("controller not registered")

// Registry holds every known controller by container identity, plus the
// identities currently going through a deliberate power cycle.
type Registry struct {
	mu          sync.RWMutex
	controllers map[string]controller.Controller // ID -> Controller
	cycling     map[string]time.Time             // ID -> when the cycle started
	lastChange  time.Time
	now         func() time.Time
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		controllers: make(map[string]controller.Controller),
		cycling:     make(map[string]time.Time),
		now:         time.Now,
	}
}

// Get retrieves a controller by identity
func (r *Registry) Get(id string) (controller.Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.controllers[controller.NormalizeID(id)]
	return c, ok
}

// Put adds or replaces a controller under its own identity
func (r *Registry) Put(c controller.Controller) {
	r.PutAs(c.ID(), c)
}

// PutAs stores c under id; the placeholder lives under the empty identity.
func (r *Registry) PutAs(id string, c controller.Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.controllers[controller.NormalizeID(id)] = c
	r.lastChange = r.now()
}

// Delete removes a controller and reports whether it was present
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id = controller.NormalizeID(id)
	if _, ok := r.controllers[id]; !ok {
		return false
	}
	delete(r.controllers, id)
	r.lastChange = r.now()
	return true
}

// All returns every controller ordered by identity
func (r *Registry) All() []controller.Controller {
	r.mu.RLock()
	ids := make([]string, 0, len(r.controllers))
	for id := range r.controllers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]controller.Controller, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.controllers[id])
	}
	r.mu.RUnlock()
	return out
}

// Find returns the first controller, in identity order, matching fn.
func (r *Registry) Find(fn func(controller.Controller) bool) (controller.Controller, bool) {
	for _, c := range r.All() {
		if fn(c) {
			return c, true
		}
	}
	return nil, false
}

// Count returns the number of registered controllers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.controllers)
}

// LastChange returns when the controller set was last mutated
func (r *Registry) LastChange() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastChange
}

// SetPowerCycling marks or clears an identity as being power-cycled.
func (r *Registry) SetPowerCycling(id string, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id = controller.NormalizeID(id)
	if on {
		r.cycling[id] = r.now()
		return
	}
	delete(r.cycling, id)
}

func (r *Registry) IsPowerCycling(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cycling[controller.NormalizeID(id)]
	return ok
}

// PowerCycling returns a snapshot of the marked identities and their start time.
func (r *Registry) PowerCycling() map[string]time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]time.Time, len(r.cycling))
	for id, at := range r.cycling {
		out[id] = at
	}
	return out
}

// WaitFor polls until id is registered, ctx ends, or nothing shows up.
// Removal notifications can race the registration of the same device.
func (r *Registry) WaitFor(ctx context.Context, id string, poll time.Duration) (controller.Controller, error) {
	if c, ok := r.Get(id); ok {
		return c, nil
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ErrNotFound
		case <-ticker.C:
			if c, ok := r.Get(id); ok {
				return c, nil
			}
		}
	}
}
