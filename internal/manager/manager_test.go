package manager

import (
	"slices"
	"testing"
	"time"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/settings"
)

func TestSetAndClearTarget(t *testing.T) {
	h := newHarness(t, nil, nil)
	pad := h.register("PAD1", controller.ModelXInput, xusb("PAD1"))

	h.m.SetTarget("pad1")

	if got := targetID(h.m); got != "PAD1" {
		t.Fatalf("target = %s, want PAD1", got)
	}
	if !pad.IsPlugged() {
		t.Error("target should be plugged")
	}
	if got := h.settings.String(settings.LastTarget); got != "PAD1" {
		t.Errorf("last_target = %q, want PAD1", got)
	}
	if got := pad.out.lights[len(pad.out.lights)-1]; got != (controller.Color{R: 10, G: 20, B: 30}) {
		t.Errorf("light = %+v, want accent", got)
	}

	h.m.ClearTarget()
	h.m.ClearTarget()

	if h.m.Target() != nil {
		t.Fatalf("target = %s, want none", targetID(h.m))
	}
	if pad.IsPlugged() {
		t.Error("cleared target should be unplugged")
	}
	if got := h.settings.String(settings.LastTarget); got != "" {
		t.Errorf("last_target = %q, want empty", got)
	}
}

func TestSetTargetUnknownIsIgnored(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.register("PAD1", controller.ModelXInput, xusb("PAD1"))
	h.m.SetTarget("PAD1")

	h.m.SetTarget("MISSING")

	if got := targetID(h.m); got != "PAD1" {
		t.Errorf("target = %s, want PAD1", got)
	}
}

func TestSetTargetCloaksOnConnect(t *testing.T) {
	tests := []struct {
		name      string
		model     controller.Model
		wireless  bool
		wantCycle bool
	}{
		{name: "wired pad is port cycled", model: controller.ModelXInput, wantCycle: true},
		{name: "wireless soft cloak pad is not", model: controller.ModelLegion, wireless: true},
		{name: "wired soft cloak pad is", model: controller.ModelLegion, wantCycle: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, map[string]any{settings.CloakOnConnect: true}, nil)
			d := xusb("PAD1")
			d.Wireless = tt.wireless
			pad := h.register("PAD1", tt.model, d)

			h.m.SetTarget("PAD1")

			if !pad.IsHidden() {
				t.Error("target should be hidden")
			}
			cycled := len(h.power.cycles) > 0
			if cycled != tt.wantCycle {
				t.Errorf("port cycled = %v, want %v", cycled, tt.wantCycle)
			}
		})
	}
}

func TestStartInstallsPlaceholder(t *testing.T) {
	tests := []struct {
		name string
		mode VirtualMode
		want controller.Model
	}{
		{name: "xbox360", mode: VirtualXbox360, want: controller.ModelXInput},
		{name: "ds4", mode: VirtualDualShock4, want: controller.ModelDualShock4},
		{name: "none", mode: VirtualNone, want: controller.ModelXInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil, nil)
			h.virtual.mode = tt.mode
			h.start(t)

			target := h.m.Target()
			if target == nil || !target.IsPlaceholder() {
				t.Fatalf("target = %v, want placeholder", target)
			}
			if got := target.Variant().Model; got != tt.want {
				t.Errorf("placeholder model = %s, want %s", got, tt.want)
			}
			if h.prober.flushes != 1 {
				t.Errorf("vendor channel flushed %d times, want 1", h.prober.flushes)
			}
		})
	}
}

func TestStartTargetsFirstPhysical(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.register("PAD2", controller.ModelXInput, xusb("PAD2"))
	h.register("PAD1", controller.ModelXInput, xusb("PAD1"))
	h.start(t)

	if got := targetID(h.m); got != "PAD1" {
		t.Errorf("target = %s, want PAD1", got)
	}
}

func TestArrivalPromotesFirstPhysical(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.start(t)
	plugged := h.watchPlugged()

	h.m.DeviceArrived(xusb("pad1"))
	ev := receive(t, plugged)
	h.m.wg.Wait()

	if ev.id != "PAD1" || ev.cycling {
		t.Errorf("plugged = %+v, want PAD1 not cycling", ev)
	}
	if got := targetID(h.m); got != "PAD1" {
		t.Errorf("target = %s, want PAD1", got)
	}

	h.m.DeviceArrived(xusb("PAD2"))
	receive(t, plugged)
	h.m.wg.Wait()

	if got := targetID(h.m); got != "PAD1" {
		t.Errorf("second arrival stole the target: %s", got)
	}
}

func TestArrivalBeforeInitializeDoesNotPromote(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.m.DeviceArrived(xusb("PAD1"))
	h.m.wg.Wait()

	if _, ok := h.reg.Get("PAD1"); !ok {
		t.Fatal("controller should be registered")
	}
	if h.m.Target() != nil {
		t.Errorf("target = %s, want none before Start", targetID(h.m))
	}
}

func TestSameIdentityArrivesTwice(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.start(t)
	plugged := h.watchPlugged()

	h.m.DeviceArrived(xusb("PAD1"))
	first := receive(t, plugged)
	h.m.wg.Wait()

	h.m.DeviceArrived(xusb("PAD1"))
	second := receive(t, plugged)
	h.m.wg.Wait()

	if first.cycling {
		t.Error("first arrival should not be power cycling")
	}
	if !second.cycling {
		t.Error("second arrival should be reported as power cycling")
	}
	if got := len(h.m.Physical()); got != 1 {
		t.Errorf("physical controllers = %d, want 1", got)
	}
	if got := h.factory.count(); got != 1 {
		t.Errorf("factory built %d controllers, want 1", got)
	}
}

func TestArrivalClearsPowerCyclingMark(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.start(t)
	plugged := h.watchPlugged()
	h.reg.SetPowerCycling("PAD1", true)

	h.m.DeviceArrived(xusb("PAD1"))
	ev := receive(t, plugged)
	h.m.wg.Wait()

	if !ev.cycling {
		t.Error("arrival of a marked controller should be power cycling")
	}
	if h.reg.IsPowerCycling("PAD1") {
		t.Error("power cycling mark should be cleared")
	}
}

func TestReattachMarksPowerCyclingUntilReady(t *testing.T) {
	h := newHarness(t, nil, nil)
	pad := h.register("PAD1", controller.ModelXInput, xusb("PAD1"))
	h.start(t)
	plugged := h.watchPlugged()
	unplugged := h.watchUnplugged()

	pad.Rearm()
	h.m.DeviceArrived(xusb("PAD1"))

	deadline := time.Now().Add(2 * time.Second)
	for !h.reg.IsPowerCycling("PAD1") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !h.reg.IsPowerCycling("PAD1") {
		t.Fatal("re-arrival should mark the identity power cycling")
	}

	h.m.DeviceRemoved(xusb("PAD1"))
	ev := receive(t, unplugged)
	if !ev.cycling {
		t.Errorf("unplugged = %+v, want a power cycling removal", ev)
	}
	if _, ok := h.reg.Get("PAD1"); !ok {
		t.Fatal("flapping controller should stay registered")
	}

	pad.MarkReady()
	if got := receive(t, plugged); !got.cycling {
		t.Errorf("plugged = %+v, want power cycling", got)
	}
	h.m.wg.Wait()
	if h.reg.IsPowerCycling("PAD1") {
		t.Error("mark should be cleared once the controller is back")
	}
}

func TestEvictDropsControllerThatNeverCameBack(t *testing.T) {
	h := newHarness(t, nil, nil)
	pad := h.register("PAD1", controller.ModelXInput, xusb("PAD1"))
	h.start(t)
	unplugged := h.watchUnplugged()
	h.reg.SetPowerCycling("PAD1", true)

	h.m.Evict("pad1")
	ev := receive(t, unplugged)
	h.m.wg.Wait()

	if ev.cycling || !ev.wasTarget {
		t.Errorf("unplugged = %+v, want plain target removal", ev)
	}
	if _, ok := h.reg.Get("PAD1"); ok {
		t.Error("evicted controller should be unregistered")
	}
	if h.reg.IsPowerCycling("PAD1") {
		t.Error("evicted controller should not stay marked")
	}
	if target := h.m.Target(); target == nil || !target.IsPlaceholder() {
		t.Errorf("target = %v, want placeholder", target)
	}
	if pad.IsConnected() {
		t.Error("evicted controller should be closed")
	}
}

func TestUnsupportedArrival(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.start(t)

	h.m.DeviceArrived(controller.Details{
		ContainerID: "ODD",
		DevicePath:  "/dev/hidraw9",
		VendorID:    0x1234,
		ProductID:   0x5678,
		Transport:   controller.TransportHID,
		Interface:   -1,
	})
	h.m.wg.Wait()

	if _, ok := h.reg.Get("ODD"); ok {
		t.Error("unsupported device should not be registered")
	}
	if h.factory.count() != 0 {
		t.Error("factory should not be called")
	}
}

func TestVendorArrivalAndRemoval(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.prober.handles["/dev/hidraw3"] = controller.Handle{ID: 3, Path: "/dev/hidraw3", Model: controller.ModelDualSense}
	h.start(t)

	d := controller.Details{
		ContainerID: "1-4",
		DevicePath:  "/dev/hidraw3",
		VendorID:    0x054C,
		ProductID:   0x0CE6,
		Transport:   controller.TransportHID,
		Interface:   3,
	}
	h.m.DeviceArrived(d)
	h.m.wg.Wait()

	c, ok := h.reg.Get("1-4")
	if !ok {
		t.Fatal("vendor controller should be registered")
	}
	if got := c.Variant().Model; got != controller.ModelDualSense {
		t.Errorf("model = %s, want dualsense", got)
	}

	h.m.DeviceRemoved(d)
	h.m.wg.Wait()

	if !slices.Equal(h.prober.dropped, []int{3}) {
		t.Errorf("dropped handles = %v, want [3]", h.prober.dropped)
	}
}

func TestPowerCyclingRemovalKeepsEntry(t *testing.T) {
	h := newHarness(t, nil, nil)
	pad := h.register("PAD1", controller.ModelXInput, xusb("PAD1"))
	h.start(t)
	if err := pad.Hide(); err != nil {
		t.Fatal(err)
	}
	unplugged := h.watchUnplugged()
	h.reg.SetPowerCycling("PAD1", true)

	h.m.DeviceRemoved(xusb("PAD1"))
	ev := receive(t, unplugged)
	h.m.wg.Wait()

	if !ev.cycling || !ev.wasTarget {
		t.Errorf("unplugged = %+v, want cycling target", ev)
	}
	if _, ok := h.reg.Get("PAD1"); !ok {
		t.Error("power cycling controller should stay registered")
	}
	if !pad.IsHidden() {
		t.Error("power cycling controller should stay hidden")
	}
	if !pad.IsPlugged() {
		t.Error("power cycling target should stay plugged")
	}
	if got := targetID(h.m); got != "PAD1" {
		t.Errorf("target = %s, want PAD1", got)
	}
}

func TestRemovingTargetPromotesNext(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.register("PAD1", controller.ModelXInput, xusb("PAD1"))
	pad2 := h.register("PAD2", controller.ModelXInput, xusb("PAD2"))
	h.start(t)
	unplugged := h.watchUnplugged()

	h.m.DeviceRemoved(xusb("PAD1"))
	ev := receive(t, unplugged)
	h.m.wg.Wait()

	if ev.cycling || !ev.wasTarget {
		t.Errorf("unplugged = %+v, want plain target removal", ev)
	}
	if got := targetID(h.m); got != "PAD2" {
		t.Fatalf("target = %s, want PAD2", got)
	}

	h.m.DeviceRemoved(xusb("PAD2"))
	receive(t, unplugged)
	h.m.wg.Wait()

	target := h.m.Target()
	if target == nil || !target.IsPlaceholder() {
		t.Fatalf("target = %v, want placeholder", target)
	}
	if pad2.IsPlugged() {
		t.Error("removed controller should be unplugged")
	}
	if pad2.IsConnected() {
		t.Error("removed controller should be closed")
	}
}

func TestRemovingNonTargetUnhides(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.register("PAD1", controller.ModelXInput, xusb("PAD1"))
	pad2 := h.register("PAD2", controller.ModelXInput, xusb("PAD2"))
	h.start(t)
	if err := pad2.Hide(); err != nil {
		t.Fatal(err)
	}
	unplugged := h.watchUnplugged()

	h.m.DeviceRemoved(xusb("PAD2"))
	ev := receive(t, unplugged)
	h.m.wg.Wait()

	if ev.wasTarget {
		t.Error("PAD2 was not the target")
	}
	if pad2.IsHidden() {
		t.Error("removed controller should be unhidden")
	}
	if got := targetID(h.m); got != "PAD1" {
		t.Errorf("target = %s, want PAD1", got)
	}
}

func TestRemovalIgnoresOtherNodes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*controller.Details)
	}{
		{name: "sibling node", mutate: func(d *controller.Details) { d.DevicePath = "/dev/input/event99" }},
		{name: "other transport", mutate: func(d *controller.Details) { d.Transport = controller.TransportHID }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil, nil)
			h.register("PAD1", controller.ModelXInput, xusb("PAD1"))
			h.start(t)

			d := xusb("PAD1")
			tt.mutate(&d)
			h.m.DeviceRemoved(d)
			h.m.wg.Wait()

			if _, ok := h.reg.Get("PAD1"); !ok {
				t.Error("controller should stay registered")
			}
			if got := targetID(h.m); got != "PAD1" {
				t.Errorf("target = %s, want PAD1", got)
			}
		})
	}
}

func TestRestoreLastTargetOnArrival(t *testing.T) {
	h := newHarness(t, map[string]any{
		settings.RestoreLastTarget: true,
		settings.LastTarget:        "pad2",
	}, nil)
	h.start(t)

	h.m.DeviceArrived(xusb("PAD1"))
	h.m.wg.Wait()
	if got := targetID(h.m); got != "PAD1" {
		t.Fatalf("target = %s, want PAD1", got)
	}

	h.m.DeviceArrived(xusb("PAD2"))
	h.m.wg.Wait()
	if got := targetID(h.m); got != "PAD2" {
		t.Errorf("target = %s, want restored PAD2", got)
	}

	h.m.DeviceArrived(xusb("PAD3"))
	h.m.wg.Wait()
	if got := targetID(h.m); got != "PAD2" {
		t.Errorf("target = %s, want PAD2 kept", got)
	}
}

func TestStopUncloaksAndIsIdempotent(t *testing.T) {
	h := newHarness(t, nil, nil)
	pad := h.register("PAD1", controller.ModelXInput, xusb("PAD1"))
	h.start(t)
	if err := pad.Hide(); err != nil {
		t.Fatal(err)
	}

	h.m.Stop()
	h.m.Stop()

	if pad.IsHidden() {
		t.Error("controller should be unhidden on stop")
	}
	if pad.IsPlugged() {
		t.Error("target should be unplugged on stop")
	}
	if h.prober.flushes != 2 {
		t.Errorf("vendor channel flushed %d times, want 2", h.prober.flushes)
	}
	if got := h.settings.String(settings.LastTarget); got != "PAD1" {
		t.Errorf("last_target = %q, want PAD1 kept for restore", got)
	}
}

func TestVibratedAndInjectedKeys(t *testing.T) {
	h := newHarness(t, nil, nil)
	pad := h.register("PAD1", controller.ModelXInput, xusb("PAD1"))
	rec := &recordingConsumer{}
	h.m.deps.Consumers = []InputConsumer{rec}
	h.m.SetTarget("PAD1")

	h.m.Vibrated(200, 0)
	if got := pad.out.vibrations(); !slices.Contains(got, 200) {
		t.Errorf("vibrations = %v, want 200 forwarded", got)
	}

	h.m.KeyPressed(controller.ButtonSpecial)
	pad.Publish(controller.State{}, nil, 0)
	h.m.KeyReleased(controller.ButtonSpecial)
	pad.Publish(controller.State{}, nil, 0)

	if len(rec.states) != 2 {
		t.Fatalf("frames = %d, want 2", len(rec.states))
	}
	if !rec.states[0].Pressed(controller.ButtonSpecial) {
		t.Error("injected key should be pressed in the first frame")
	}
	if rec.states[1].Pressed(controller.ButtonSpecial) {
		t.Error("released key should not be pressed in the second frame")
	}
}

func TestVibrationStrengthSetting(t *testing.T) {
	h := newHarness(t, map[string]any{settings.VibrationStrength: 50}, nil)
	pad := h.register("PAD1", controller.ModelXInput, xusb("PAD1"))
	h.start(t)

	if got := pad.VibrationStrength(); got != 50 {
		t.Fatalf("strength = %d, want 50", got)
	}

	if err := h.settings.Set(settings.VibrationStrength, 20); err != nil {
		t.Fatal(err)
	}
	if got := pad.VibrationStrength(); got != 20 {
		t.Errorf("strength = %d, want 20", got)
	}
}

func TestRumbleOnArrival(t *testing.T) {
	tests := []struct {
		name         string
		manufacturer string
		want         bool
	}{
		{name: "aokzoe", manufacturer: "AOKZOE", want: true},
		{name: "onexplayer lower case", manufacturer: "one-netbook technology", want: true},
		{name: "other vendor", manufacturer: "Valve", want: false},
		{name: "unknown host", manufacturer: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil, func(d *Deps) { d.Host = fakeHost{manufacturer: tt.manufacturer} })
			if got := h.m.rumbleOnArrival(); got != tt.want {
				t.Errorf("rumbleOnArrival() = %v, want %v", got, tt.want)
			}
		})
	}
}
