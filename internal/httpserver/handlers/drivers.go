package handlers

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/padherd/internal/logger"
)

type driverEntry struct {
	ID     string `json:"id"`
	Driver string `json:"driver"`
}

// Drivers lists the controllers whose driver is swapped out.
func Drivers(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending := d.Drivers.Pending()
		out := make([]driverEntry, 0, len(pending))
		for id, drv := range pending {
			out = append(out, driverEntry{ID: id, Driver: drv})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		writeJSON(w, d.Logger, http.StatusOK, out)
	}
}

func SuspendDriver(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := controller.NormalizeID(chi.URLParam(r, "id"))
		if !d.Manager.Suspend(id) {
			writeError(w, d.Logger, http.StatusConflict, "failed to suspend "+id)
			return
		}
		d.Logger.Info("driver suspended via endpoint",
			logger.String("id", id),
			logger.String("remote_ip", r.RemoteAddr))
		w.WriteHeader(http.StatusAccepted)
	}
}

// ResumeDrivers wakes the reconciler instead of resuming inline.
func ResumeDrivers(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case d.ResumeTrigger <- struct{}{}:
			d.Logger.Info("driver resume triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			w.WriteHeader(http.StatusAccepted)
		default:
			d.Logger.Warn("driver resume already in progress",
				logger.String("remote_ip", r.RemoteAddr))
			writeError(w, d.Logger, http.StatusTooManyRequests, "resume already in progress")
		}
	}
}
