package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/logger"
	"github.com/MrSnakeDoc/padherd/internal/registry"
	"github.com/MrSnakeDoc/padherd/internal/settings"
)

type cloakOutput struct {
	mu     sync.Mutex
	cloaks []bool
	lights []controller.Color
	large  []uint8
}

func (o *cloakOutput) WriteLight(c controller.Color) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lights = append(o.lights, c)
	return nil
}

func (o *cloakOutput) WriteVibration(large, _ uint8) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.large = append(o.large, large)
	return nil
}

func (o *cloakOutput) Cloak(on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cloaks = append(o.cloaks, on)
	return nil
}

func (o *cloakOutput) cloakCalls() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]bool(nil), o.cloaks...)
}

func (o *cloakOutput) vibrations() []uint8 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]uint8(nil), o.large...)
}

type testPad struct {
	*controller.Base
	out *cloakOutput
}

func newPad(id string, m controller.Model, d controller.Details) *testPad {
	out := &cloakOutput{}
	d.ContainerID = id
	if d.Slot == 0 && d.Transport != controller.TransportXUsb {
		d.Slot = controller.SlotUnknown
	}
	p := &testPad{Base: controller.NewBase(controller.VariantOf(m), d, out), out: out}
	p.MarkReady()
	return p
}

type fakeFactory struct {
	mu    sync.Mutex
	built []*testPad
	fail  error
}

func (f *fakeFactory) New(v controller.Variant, d controller.Details, _ *controller.Handle) (controller.Controller, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	p := newPad(d.ContainerID, v.Model, d)
	f.mu.Lock()
	f.built = append(f.built, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

type fakePower struct {
	mu       sync.Mutex
	reg      *registry.Registry
	pending  map[string]string
	suspends []string
	cycles   []string
	resumes  int
}

func newFakePower(reg *registry.Registry) *fakePower {
	return &fakePower{reg: reg, pending: make(map[string]string)}
}

func (p *fakePower) Load() error { return nil }

func (p *fakePower) Suspend(id string) bool {
	p.mu.Lock()
	p.suspends = append(p.suspends, id)
	p.pending[id] = "xpad"
	p.mu.Unlock()
	p.reg.SetPowerCycling(id, true)
	return true
}

func (p *fakePower) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumes++
	for id := range p.pending {
		delete(p.pending, id)
		return true
	}
	return false
}

func (p *fakePower) Cycle(id string) bool {
	p.mu.Lock()
	p.cycles = append(p.cycles, id)
	p.mu.Unlock()
	p.reg.SetPowerCycling(id, true)
	return true
}

func (p *fakePower) Pending() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.pending))
	for k, v := range p.pending {
		out[k] = v
	}
	return out
}

type fakeSettings struct {
	mu     sync.Mutex
	values map[string]any
	subs   map[int]settings.ChangeFunc
	next   int
}

func newFakeSettings(overrides map[string]any) *fakeSettings {
	s := &fakeSettings{values: make(map[string]any), subs: make(map[int]settings.ChangeFunc)}
	for k, v := range settings.Defaults {
		s.values[k] = v
	}
	// keep tests free of port resets and rumble unless asked
	s.values[settings.CloakOnConnect] = false
	s.values[settings.VibrateOnConnect] = false
	for k, v := range overrides {
		s.values[k] = v
	}
	return s
}

func (s *fakeSettings) get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

func (s *fakeSettings) Bool(key string) bool     { b, _ := s.get(key).(bool); return b }
func (s *fakeSettings) Int(key string) int       { n, _ := s.get(key).(int); return n }
func (s *fakeSettings) String(key string) string { v, _ := s.get(key).(string); return v }

func (s *fakeSettings) Set(key string, value any) error {
	s.mu.Lock()
	s.values[key] = value
	subs := make([]settings.ChangeFunc, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(key, value)
	}
	return nil
}

func (s *fakeSettings) Subscribe(fn settings.ChangeFunc) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

type fakeVirtual struct {
	mu        sync.Mutex
	mode      VirtualMode
	connected bool
	suspends  int
	resumes   int
	frames    []controller.State
}

func (v *fakeVirtual) Mode() VirtualMode { return v.mode }
func (v *fakeVirtual) Connected() bool   { return v.connected }

func (v *fakeVirtual) Suspend() {
	v.mu.Lock()
	v.suspends++
	v.mu.Unlock()
}

func (v *fakeVirtual) Resume() {
	v.mu.Lock()
	v.resumes++
	v.mu.Unlock()
}

func (v *fakeVirtual) UpdateInputs(s controller.State, _ controller.Motion) {
	v.mu.Lock()
	v.frames = append(v.frames, s)
	v.mu.Unlock()
}

type fakeHost struct {
	manufacturer string
	embedded     bool
	motion       *controller.Motion
}

func (h fakeHost) Manufacturer() string        { return h.manufacturer }
func (h fakeHost) HasEmbeddedController() bool { return h.embedded }

func (h fakeHost) Motion() (controller.Motion, bool) {
	if h.motion == nil {
		return controller.Motion{}, false
	}
	return *h.motion, true
}

type fakeTheme struct{ accent controller.Color }

func (t fakeTheme) Accent() controller.Color { return t.accent }

type fakeProber struct {
	handles map[string]controller.Handle
	dropped []int
	flushes int
}

func (p *fakeProber) Match(_ context.Context, path string) (*controller.Handle, error) {
	if h, ok := p.handles[path]; ok {
		return &h, nil
	}
	return nil, errors.New("no match")
}

func (p *fakeProber) Disconnect(h controller.Handle) { p.dropped = append(p.dropped, h.ID) }
func (p *fakeProber) DisconnectAll()                 { p.flushes++ }

type harness struct {
	m        *Manager
	reg      *registry.Registry
	factory  *fakeFactory
	power    *fakePower
	settings *fakeSettings
	virtual  *fakeVirtual
	prober   *fakeProber
}

func testConfig() Config {
	return Config{
		RemovalTimeout:      200 * time.Millisecond,
		RemovalPoll:         5 * time.Millisecond,
		ReadyPoll:           5 * time.Millisecond,
		WatchdogInterval:    10 * time.Millisecond,
		WatchdogMaxAttempts: 4,
		ScenarioDebounce:    time.Hour,
		RumbleManufacturers: []string{"AOKZOE", "ONE-NETBOOK"},
		DesignatedPlatform:  "steam",
	}
}

func newHarness(t *testing.T, overrides map[string]any, mutate func(*Deps)) *harness {
	t.Helper()

	reg := registry.New()
	h := &harness{
		reg:      reg,
		factory:  &fakeFactory{},
		power:    newFakePower(reg),
		settings: newFakeSettings(overrides),
		virtual:  &fakeVirtual{},
		prober:   &fakeProber{handles: map[string]controller.Handle{}},
	}
	deps := Deps{
		Registry: reg,
		Factory:  h.factory,
		Prober:   h.prober,
		Power:    h.power,
		Settings: h.settings,
		Virtual:  h.virtual,
		Theme:    fakeTheme{accent: controller.Color{R: 10, G: 20, B: 30}},
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.m = New(testConfig(), deps, logger.New("error", false))
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.m.Stop)
}

// register puts a ready pad straight into the registry.
func (h *harness) register(id string, m controller.Model, d controller.Details) *testPad {
	p := newPad(id, m, d)
	h.reg.Put(p)
	return p
}

type pluggedEvent struct {
	id      string
	cycling bool
}

func (h *harness) watchPlugged() <-chan pluggedEvent {
	ch := make(chan pluggedEvent, 16)
	h.m.Events().Subscribe(Listener{
		ControllerPlugged: func(c controller.Controller, cycling bool) {
			ch <- pluggedEvent{id: c.ID(), cycling: cycling}
		},
	})
	return ch
}

type unpluggedEvent struct {
	id        string
	cycling   bool
	wasTarget bool
}

func (h *harness) watchUnplugged() <-chan unpluggedEvent {
	ch := make(chan unpluggedEvent, 16)
	h.m.Events().Subscribe(Listener{
		ControllerUnplugged: func(c controller.Controller, cycling, wasTarget bool) {
			ch <- unpluggedEvent{id: c.ID(), cycling: cycling, wasTarget: wasTarget}
		},
	})
	return ch
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func xusb(id string) controller.Details {
	return controller.Details{
		ContainerID: id,
		DevicePath:  "/dev/input/event-" + id,
		VendorID:    0x045E,
		ProductID:   0x028E,
		Transport:   controller.TransportXUsb,
		Interface:   0,
	}
}

func targetID(m *Manager) string {
	if t := m.Target(); t != nil {
		return t.ID()
	}
	return "<none>"
}
