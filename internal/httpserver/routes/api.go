package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/padherd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/padherd/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/padherd/internal/httpserver/mw"
)

func init() { Register(registerAPI) }

func registerAPI(r chi.Router, d deps.Deps) {
	r.Route("/api", func(api chi.Router) {
		api.Use(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))

		api.Get("/infra", handlers.Infra(d))
		api.Get("/controllers", handlers.Controllers(d))
		api.Get("/status", handlers.Status(d))

		api.Get("/target", handlers.Target(d))
		api.Put("/target/{id}", handlers.SetTarget(d))
		api.Delete("/target", handlers.ClearTarget(d))

		api.Get("/drivers", handlers.Drivers(d))
		api.Post("/drivers/resume", handlers.ResumeDrivers(d))
		api.Post("/drivers/{id}/suspend", handlers.SuspendDriver(d))

		api.Post("/focus/{name}", handlers.Focus(d))
		api.Delete("/focus/{name}", handlers.Focus(d))
		api.Put("/foreground", handlers.Foreground(d))
	})
}
