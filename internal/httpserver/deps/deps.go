package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/logger"
	"github.com/MrSnakeDoc/padherd/internal/manager"
)

// Lifecycle is the manager surface exposed over HTTP.
type Lifecycle interface {
	Initialized() bool
	Controllers() []controller.Controller
	Target() controller.Controller
	SetTarget(id string)
	ClearTarget()
	Status() (manager.Status, int)
	Muted() bool
	Suspend(id string) bool
	GotFocus(name string)
	LostFocus(name string)
	ForegroundChanged(cur, prev *manager.Process)
	Foreground() *manager.Process
}

// Drivers lists the drivers owed a restoration.
type Drivers interface {
	Pending() map[string]string
}

// Pinger checks the telemetry backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger        logger.Logger
	StartTime     time.Time
	Version       string
	Commit        string
	BuildDate     string
	GoVersion     string
	AllowedCIDRS  []string      // IPs allowed to reach the control API
	TrustProxy    bool          // true if running behind a trusted reverse proxy
	Manager       Lifecycle     // controller lifecycle manager
	Drivers       Drivers       // driver store view
	ResumeTrigger chan struct{} // wakes the driver reconciler
	Redis         Pinger        // nil when telemetry is disabled
	Dropped       func() uint64 // telemetry drop counter, nil when disabled
}
