package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/padherd/internal/httpserver/deps"
)

type componentStatus struct {
	OK          bool    `json:"ok"`
	Controllers *int    `json:"controllers,omitempty"`
	Pending     *int    `json:"pending,omitempty"`
	Dropped     *uint64 `json:"dropped,omitempty"`
	Mode        string  `json:"mode,omitempty"`
	Impact      string  `json:"impact,omitempty"`
	Error       string  `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		controllers := len(d.Manager.Controllers())
		pending := len(d.Drivers.Pending())

		components := map[string]componentStatus{
			"manager": {
				OK:          d.Manager.Initialized(),
				Controllers: &controllers,
			},
			"drivers": {
				OK:      pending == 0,
				Pending: &pending,
			},
			"telemetry": checkRedis(r.Context(), d),
		}

		writeJSON(w, d.Logger, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Components: components,
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	if m, ok := components["manager"]; ok && !m.OK {
		return "critical"
	}
	// drivers still owed a restoration leave pads detached
	if drv, ok := components["drivers"]; ok && !drv.OK {
		return "degraded"
	}
	if tel, ok := components["telemetry"]; ok && !tel.OK {
		return "degraded"
	}
	return "operational"
}

func checkRedis(parent context.Context, d deps.Deps) componentStatus {
	if d.Redis == nil {
		return componentStatus{OK: true, Mode: "disabled"}
	}

	ctx, cancel := context.WithTimeout(parent, 2*time.Second)
	defer cancel()

	var dropped *uint64
	if d.Dropped != nil {
		n := d.Dropped()
		dropped = &n
	}

	if err := d.Redis.Ping(ctx); err != nil {
		return componentStatus{
			OK:      false,
			Mode:    "degraded",
			Impact:  "telemetry-lost",
			Dropped: dropped,
			Error:   "timeout",
		}
	}
	return componentStatus{OK: true, Mode: "streaming", Dropped: dropped}
}
