package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/padherd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/padherd/internal/manager"
)

// Focus reports a UI surface gaining (POST) or losing (DELETE) focus.
func Focus(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if r.Method == http.MethodDelete {
			d.Manager.LostFocus(name)
		} else {
			d.Manager.GotFocus(name)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Foreground takes the process now in front. An empty body clears it.
func Foreground(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cur *manager.Process
		if r.ContentLength != 0 {
			var p manager.Process
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&p); err != nil {
				writeError(w, d.Logger, http.StatusBadRequest, "invalid process")
				return
			}
			cur = &p
		}
		d.Manager.ForegroundChanged(cur, d.Manager.Foreground())
		w.WriteHeader(http.StatusNoContent)
	}
}
