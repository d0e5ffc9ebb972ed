package manager

import (
	"sync"
	"testing"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/settings"
)

type recordingConsumer struct {
	mu      sync.Mutex
	states  []controller.State
	motions []controller.Motion
}

func (r *recordingConsumer) UpdateInputs(s controller.State, m controller.Motion) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.motions = append(r.motions, m)
	r.mu.Unlock()
}

func swapAB(s controller.State) controller.State {
	a, b := s.Pressed(controller.ButtonA), s.Pressed(controller.ButtonB)
	s.Set(controller.ButtonA, b)
	s.Set(controller.ButtonB, a)
	return s
}

func TestUpdateInputsFanOut(t *testing.T) {
	rec := &recordingConsumer{}
	h := newHarness(t, nil, func(d *Deps) {
		d.Layout = swapAB
		d.Consumers = []InputConsumer{rec}
	})

	var raw, mapped []controller.State
	h.m.Events().Subscribe(Listener{
		RawInputsUpdated: func(s controller.State) { raw = append(raw, s) },
		InputsUpdated:    func(s controller.State) { mapped = append(mapped, s) },
	})

	h.m.UpdateInputs(controller.State{Buttons: controller.ButtonA}, nil, 0.01, 0)

	if len(raw) != 1 || !raw[0].Pressed(controller.ButtonA) {
		t.Errorf("raw = %+v, want A", raw)
	}
	if len(mapped) != 1 || !mapped[0].Pressed(controller.ButtonB) || mapped[0].Pressed(controller.ButtonA) {
		t.Errorf("mapped = %+v, want B", mapped)
	}
	if len(rec.states) != 1 || !rec.states[0].Pressed(controller.ButtonB) {
		t.Errorf("consumer = %+v, want B", rec.states)
	}
	if len(h.virtual.frames) != 1 || !h.virtual.frames[0].Pressed(controller.ButtonB) {
		t.Errorf("virtual = %+v, want B", h.virtual.frames)
	}
}

func TestUpdateInputsMuted(t *testing.T) {
	rec := &recordingConsumer{}
	h := newHarness(t, nil, func(d *Deps) { d.Consumers = []InputConsumer{rec} })
	h.m.muted.Store(true)

	in := controller.State{Buttons: controller.ButtonA | controller.ButtonSpecial}
	in.Axes[controller.AxisLeftX] = 0.7
	h.m.UpdateInputs(in, nil, 0.01, 0)

	got := rec.states[0]
	if !got.Pressed(controller.ButtonSpecial) {
		t.Error("special button should survive muting")
	}
	if got.Pressed(controller.ButtonA) || got.Axes[controller.AxisLeftX] != 0 {
		t.Errorf("muted frame = %+v, want only special", got)
	}
}

func TestUpdateInputsMotionSource(t *testing.T) {
	pad0 := controller.Motion{Gyro: [3]float32{1}}
	pad1 := controller.Motion{Gyro: [3]float32{2}}
	host := controller.Motion{Gyro: [3]float32{9}}

	tests := []struct {
		name   string
		sensor int
		host   *controller.Motion
		index  uint8
		want   controller.Motion
	}{
		{name: "controller sample for the index", sensor: SensorController, index: 1, want: pad1},
		{name: "falls back to the first sample", sensor: SensorController, index: controller.SlotUnknown, want: pad0},
		{name: "host sensor", sensor: SensorHost, host: &host, index: 1, want: host},
		{name: "host without sensor", sensor: SensorHost, index: 1, want: pad1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []controller.Motion
			rec := &recordingConsumer{}
			h := newHarness(t, map[string]any{settings.SensorSelection: tt.sensor}, func(d *Deps) {
				d.Host = fakeHost{motion: tt.host}
				d.Motion = func(_ *controller.State, m controller.Motion, _ float32) { seen = append(seen, m) }
				d.Consumers = []InputConsumer{rec}
			})

			motions := map[uint8]controller.Motion{0: pad0, 1: pad1}
			h.m.UpdateInputs(controller.State{}, motions, 0.01, tt.index)

			if len(seen) != 1 || seen[0] != tt.want {
				t.Errorf("motion func saw %+v, want %+v", seen, tt.want)
			}
			if rec.motions[0] != tt.want {
				t.Errorf("consumer motion = %+v, want %+v", rec.motions[0], tt.want)
			}
		})
	}
}

func TestSensorSelectionSetting(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.start(t)

	if err := h.settings.Set(settings.SensorSelection, SensorHost); err != nil {
		t.Fatal(err)
	}
	if got := h.m.sensorSelection.Load(); got != SensorHost {
		t.Errorf("sensor selection = %d, want host", got)
	}
}
