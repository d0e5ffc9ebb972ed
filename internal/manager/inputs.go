package manager

import "github.com/MrSnakeDoc/padherd/internal/controller"

// UpdateInputs is the target's input handler. It runs on the controller's
// read loop once per frame.
func (m *Manager) UpdateInputs(state controller.State, motions map[uint8]controller.Motion, dt float32, index uint8) {
	m.events.rawInputs(state)

	motion, ok := motions[index]
	if !ok {
		motion, ok = motions[0]
	}
	if m.sensorSelection.Load() == SensorHost {
		if hm, hok := m.deps.Host.Motion(); hok {
			motion, ok = hm, true
		}
	}
	if ok && m.deps.Motion != nil {
		m.deps.Motion(&state, motion, dt)
	}

	if m.deps.Layout != nil {
		state = m.deps.Layout(state)
	}
	if m.muted.Load() {
		state = state.Muted()
	}

	m.events.inputs(state)
	for _, c := range m.deps.Consumers {
		c.UpdateInputs(state, motion)
	}
	m.deps.Virtual.UpdateInputs(state, motion)
}
