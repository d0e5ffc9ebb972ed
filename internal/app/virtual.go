package app

import (
	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/manager"
)

// detachedVirtual reports the configured emulation mode without an
// emulation driver behind it. It never connects, so the watchdog stays idle.
type detachedVirtual struct {
	mode manager.VirtualMode
}

func (v detachedVirtual) Mode() manager.VirtualMode                      { return v.mode }
func (detachedVirtual) Connected() bool                                  { return false }
func (detachedVirtual) Suspend()                                         {}
func (detachedVirtual) Resume()                                          {}
func (detachedVirtual) UpdateInputs(controller.State, controller.Motion) {}
