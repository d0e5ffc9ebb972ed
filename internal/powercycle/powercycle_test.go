package powercycle

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MrSnakeDoc/padherd/internal/driverstore"
	"github.com/MrSnakeDoc/padherd/internal/logger"
)

type fakeNode struct {
	enumerator string
	driver     string
	driverErr  error
	nullErr    error
	cycleErr   error
	installErr error
	onNull     func()

	nullInstalls int
	cycles       int
	installed    []string
}

func (n *fakeNode) Enumerator() string { return n.enumerator }

func (n *fakeNode) CurrentDriver() (string, error) {
	if n.driverErr != nil {
		return "", n.driverErr
	}
	return n.driver, nil
}

func (n *fakeNode) InstallNullDriver() error {
	if n.onNull != nil {
		n.onNull()
	}
	if n.nullErr != nil {
		return n.nullErr
	}
	n.nullInstalls++
	n.driver = ""
	return nil
}

func (n *fakeNode) CyclePort() error {
	if n.cycleErr != nil {
		return n.cycleErr
	}
	n.cycles++
	return nil
}

func (n *fakeNode) InstallDriver(driver string) error {
	if n.installErr != nil {
		return n.installErr
	}
	n.installed = append(n.installed, driver)
	n.driver = driver
	return nil
}

type fakeHost map[string]*fakeNode

func (h fakeHost) Lookup(id string) (Node, error) {
	if n, ok := h[id]; ok {
		return n, nil
	}
	return nil, errors.New("no such device")
}

type fakeMarks struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (f *fakeMarks) SetPowerCycling(id string, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if on {
		f.seen[id] = true
		return
	}
	delete(f.seen, id)
}

func (f *fakeMarks) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[id]
}

func newManager(t *testing.T, host fakeHost) (*Manager, *driverstore.Store, *fakeMarks) {
	t.Helper()
	store := driverstore.New(filepath.Join(t.TempDir(), "drivers.json"))
	marks := &fakeMarks{}
	return New(host, store, marks, "xpad", logger.New("error", false)), store, marks
}

func TestSuspendStoresDriverAndMarks(t *testing.T) {
	node := &fakeNode{enumerator: "USB", driver: "xpad"}
	m, store, marks := newManager(t, fakeHost{"1-2": node})

	if !m.Suspend("1-2") {
		t.Fatal("Suspend() = false")
	}
	if got := store.Get("1-2", ""); got != "xpad" {
		t.Errorf("stored driver = %q, want xpad", got)
	}
	if node.nullInstalls != 1 || node.cycles != 1 {
		t.Errorf("null installs = %d, cycles = %d; want 1, 1", node.nullInstalls, node.cycles)
	}
	if !marks.has("1-2") {
		t.Error("identity not marked power-cycling")
	}
}

func TestSuspendWithoutDriverOnlyMarks(t *testing.T) {
	node := &fakeNode{enumerator: "USB", driverErr: errors.New("unbound")}
	m, store, marks := newManager(t, fakeHost{"1-2": node})

	if !m.Suspend("1-2") {
		t.Fatal("Suspend() = false")
	}
	if store.Len() != 0 {
		t.Error("nothing should be stored without a current driver")
	}
	if node.cycles != 0 {
		t.Error("port cycled without a stored driver")
	}
	if !marks.has("1-2") {
		t.Error("identity not marked power-cycling")
	}
}

func TestSuspendFailures(t *testing.T) {
	tests := []struct {
		name string
		host fakeHost
		id   string
	}{
		{name: "unknown device", host: fakeHost{}, id: "1-2"},
		{name: "not usb", host: fakeHost{"1-2": {enumerator: "BTHENUM", driver: "hid-generic"}}, id: "1-2"},
		{name: "null driver refused", host: fakeHost{"1-2": {enumerator: "USB", driver: "xpad", nullErr: errors.New("busy")}}, id: "1-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, marks := newManager(t, tt.host)
			if m.Suspend(tt.id) {
				t.Error("Suspend() = true, want false")
			}
			if marks.has(tt.id) {
				t.Error("failed suspend left a power-cycling mark")
			}
		})
	}
}

func TestSuspendMarksBeforeUnbinding(t *testing.T) {
	node := &fakeNode{enumerator: "USB", driver: "xpad"}
	m, _, marks := newManager(t, fakeHost{"1-2": node})

	markedAtUnbind := false
	node.onNull = func() { markedAtUnbind = marks.has("1-2") }

	if !m.Suspend("1-2") {
		t.Fatal("Suspend() = false")
	}
	if !markedAtUnbind {
		t.Error("identity was not marked power-cycling when the null driver went in")
	}
}

func TestSuspendRollback(t *testing.T) {
	tests := []struct {
		name        string
		node        *fakeNode
		wantStored  bool
		wantInstall []string
	}{
		{
			name: "null driver refused forgets the driver",
			node: &fakeNode{enumerator: "USB", driver: "xpad", nullErr: errors.New("busy")},
		},
		{
			name:        "port cycle failure reinstalls the driver",
			node:        &fakeNode{enumerator: "USB", driver: "xpad", cycleErr: errors.New("io")},
			wantInstall: []string{"xpad"},
		},
		{
			name:       "failed reinstall keeps the driver owed",
			node:       &fakeNode{enumerator: "USB", driver: "xpad", cycleErr: errors.New("io"), installErr: errors.New("bind")},
			wantStored: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store, marks := newManager(t, fakeHost{"1-2": tt.node})
			if m.Suspend("1-2") {
				t.Fatal("Suspend() = true, want false")
			}
			if marks.has("1-2") {
				t.Error("aborted suspend left a power-cycling mark")
			}
			if got := store.Has("1-2"); got != tt.wantStored {
				t.Errorf("store has entry = %v, want %v", got, tt.wantStored)
			}
			if len(tt.node.installed) != len(tt.wantInstall) {
				t.Errorf("installed drivers = %v, want %v", tt.node.installed, tt.wantInstall)
			}
		})
	}
}

func TestResumeRestoresAndForgets(t *testing.T) {
	node := &fakeNode{enumerator: "USB", driver: "xpad"}
	m, store, marks := newManager(t, fakeHost{"1-2": node})

	m.Suspend("1-2")
	if !m.Resume() {
		t.Fatal("Resume() = false")
	}
	if len(node.installed) != 1 || node.installed[0] != "xpad" {
		t.Errorf("installed drivers = %v, want [xpad]", node.installed)
	}
	if store.Has("1-2") {
		t.Error("store entry survived a successful resume")
	}
	if marks.has("1-2") {
		t.Error("power-cycling mark survived a successful resume")
	}
	if m.Resume() {
		t.Error("Resume() on an empty store = true")
	}
}

func TestResumeSkipsReinstallWhenDriverMatches(t *testing.T) {
	node := &fakeNode{enumerator: "USB", driver: "usbhid"}
	m, store, _ := newManager(t, fakeHost{"1-2": node})
	_ = store.Put("1-2", "usbhid")

	if !m.Resume() {
		t.Fatal("Resume() = false")
	}
	if len(node.installed) != 0 {
		t.Errorf("reinstalled %v although the driver already matched", node.installed)
	}
}

func TestResumeContinuesPastFailures(t *testing.T) {
	good := &fakeNode{enumerator: "USB"}
	m, store, _ := newManager(t, fakeHost{"B": good})
	_ = store.Put("A", "xpad") // device gone
	_ = store.Put("B", "xpad")

	if !m.Resume() {
		t.Fatal("Resume() = false")
	}
	if store.Has("B") {
		t.Error("B should have been restored")
	}
	if !store.Has("A") {
		t.Error("A should stay owed a restoration")
	}
}

func TestCycle(t *testing.T) {
	node := &fakeNode{enumerator: "USB", driver: "xpad"}
	m, store, marks := newManager(t, fakeHost{"1-2": node})

	if !m.Cycle("1-2") {
		t.Fatal("Cycle() = false")
	}
	if node.cycles != 1 || !marks.has("1-2") {
		t.Error("Cycle() must reset the port and mark the identity")
	}
	if store.Len() != 0 {
		t.Error("Cycle() must not touch the driver store")
	}

	node.cycleErr = errors.New("io")
	marks.SetPowerCycling("1-2", false)
	if m.Cycle("1-2") {
		t.Error("Cycle() = true on a failing port reset")
	}
	if marks.has("1-2") {
		t.Error("failed cycle left a mark")
	}
}
