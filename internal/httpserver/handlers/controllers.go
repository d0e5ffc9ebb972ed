package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/padherd/internal/logger"
)

type controllerView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Variant     string `json:"variant"`
	Transport   string `json:"transport"`
	VendorID    string `json:"vendor_id"`
	ProductID   string `json:"product_id"`
	Slot        *uint8 `json:"slot,omitempty"`
	Physical    bool   `json:"physical"`
	Placeholder bool   `json:"placeholder"`
	Wireless    bool   `json:"wireless"`
	Hidden      bool   `json:"hidden"`
	Busy        bool   `json:"busy"`
	Plugged     bool   `json:"plugged"`
	Target      bool   `json:"target"`
}

func viewOf(c controller.Controller, target controller.Controller) controllerView {
	d := c.Details()
	v := controllerView{
		ID:          c.ID(),
		Name:        c.String(),
		Variant:     c.Variant().String(),
		Transport:   d.Transport.String(),
		VendorID:    fmt.Sprintf("%04x", d.VendorID),
		ProductID:   fmt.Sprintf("%04x", d.ProductID),
		Physical:    c.IsPhysical(),
		Placeholder: c.IsPlaceholder(),
		Wireless:    c.IsWireless(),
		Hidden:      c.IsHidden(),
		Busy:        c.IsBusy(),
		Plugged:     c.IsPlugged(),
		Target:      target != nil && target == c,
	}
	if slot := c.Slot(); slot != controller.SlotUnknown {
		v.Slot = &slot
	}
	return v
}

func Controllers(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := d.Manager.Target()
		all := d.Manager.Controllers()
		views := make([]controllerView, 0, len(all))
		for _, c := range all {
			views = append(views, viewOf(c, target))
		}
		writeJSON(w, d.Logger, http.StatusOK, views)
	}
}

func Target(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := d.Manager.Target()
		if target == nil {
			writeError(w, d.Logger, http.StatusNotFound, "no target")
			return
		}
		writeJSON(w, d.Logger, http.StatusOK, viewOf(target, target))
	}
}

// SetTarget selects a registered controller. The manager ignores unknown
// ids, so the result is read back.
func SetTarget(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := controller.NormalizeID(chi.URLParam(r, "id"))
		d.Manager.SetTarget(id)

		target := d.Manager.Target()
		if target == nil || target.ID() != id || target.IsPlaceholder() {
			writeError(w, d.Logger, http.StatusNotFound, "unknown controller "+id)
			return
		}
		d.Logger.Info("target selected via endpoint",
			logger.String("id", id),
			logger.String("remote_ip", r.RemoteAddr))
		writeJSON(w, d.Logger, http.StatusOK, viewOf(target, target))
	}
}

func ClearTarget(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Manager.ClearTarget()
		w.WriteHeader(http.StatusNoContent)
	}
}

type statusResponse struct {
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Muted    bool   `json:"muted"`
}

func Status(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, attempts := d.Manager.Status()
		writeJSON(w, d.Logger, http.StatusOK, statusResponse{
			Status:   status.String(),
			Attempts: attempts,
			Muted:    d.Manager.Muted(),
		})
	}
}
