package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Head("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Ingestion webhook (shared-secret auth, not JWT)
	r.Post("/webhook", s.HandleWebhook)
	r.Get("/webhook", s.HandleWebhookProbe)
	r.Head("/webhook", s.HandleWebhookProbe)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Protected management routes
	r.Group(func(r chi.Router) {
		// Users
		r.Route("/users", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/", s.HandleCreateUser)
			r.Get("/me", s.HandleGetCurrentUser)
		})

		// Tenants
		r.Route("/tenants", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListTenants)
			r.Post("/", s.HandleCreateTenant)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetTenant)
				r.Put("/", s.HandleUpdateTenant)
				r.Delete("/", s.HandleDeleteTenant)
			})
		})

		// Sensors
		r.Route("/sensors", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListSensors)
			r.Post("/", s.HandleCreateSensor)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetSensor)
				r.Put("/", s.HandleUpdateSensor)
				r.Delete("/", s.HandleDeleteSensor)
				r.Put("/type", s.HandleOverrideSensorType)
				r.Get("/binding", s.HandleGetSensorBinding)
				r.Get("/readings", s.HandleListSensorReadings)
				r.Post("/changes", s.HandleCreatePendingChange)
			})
		})

		// Device catalog
		r.Route("/catalog", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListCatalogEntries)
			r.Post("/", s.HandleCreateCatalogEntry)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetCatalogEntry)
				r.Put("/", s.HandleUpdateCatalogEntry)
				r.Delete("/", s.HandleDeleteCatalogEntry)
			})
		})

		// Pending changes
		r.Route("/changes", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListPendingChanges)
			r.Get("/{id}", s.HandleGetPendingChange)
		})

		// Door events
		r.Route("/door-events", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListDoorEvents)
		})
	})
}
