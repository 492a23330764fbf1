package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/pulsewatch/sentinel/internal/config"
	"github.com/pulsewatch/sentinel/internal/db"
	"github.com/pulsewatch/sentinel/internal/engine"
	"github.com/pulsewatch/sentinel/internal/scheduler"
)

// Router is the base type setup-flow handlers (CheckSetup, PerformSetup)
// are defined on, since those run before a user session exists and don't
// belong to any single protected-resource handler.
type Router struct {
	*chi.Mux
	store     *db.Store
	scheduler *scheduler.Scheduler
	config    *config.Config
}

// NewRouter builds the HTTP router exposing the engine's external
// interfaces: monitor catalog CRUD, the probe-result ingestion seam,
// health statistics, the incident feed, the resumable event stream, and
// the ambient auth/admin surface (login, SSO, setup, API keys, reset).
func NewRouter(store *db.Store, eng *engine.Engine, sched *scheduler.Scheduler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	ipLimiter := NewIPRateLimiter(rate.Limit(10), 20)
	r.Use(RateLimitMiddleware(ipLimiter))

	loginLimiter := NewLoginRateLimiter()

	apiRouter := &Router{Mux: r, store: store, scheduler: sched, config: cfg}

	authH := NewAuthHandler(store, cfg, loginLimiter)
	ssoH := NewSSOHandler(store, cfg)
	apiKeyH := NewAPIKeyHandler(store)
	adminH := NewAdminHandler(store, sched, cfg)
	monitorH := NewMonitorHandler(store, eng)
	incidentH := NewIncidentHandler(store)
	eventH := NewEventHandler(eng.Events())

	r.Get("/healthz", Healthz)
	r.Get("/readyz", Readyz(store))

	r.Route("/api", func(api chi.Router) {
		// Public routes
		api.Post("/auth/login", authH.Login)
		api.Post("/auth/logout", authH.Logout)
		api.Get("/setup/status", apiRouter.CheckSetup)
		api.Post("/setup", apiRouter.PerformSetup)
		api.Get("/auth/sso/status", ssoH.GetSSOStatus)
		api.Get("/auth/sso/google", ssoH.GoogleLogin)
		api.Get("/auth/sso/google/callback", ssoH.GoogleCallback)

		// The seam real protocol-probe drivers (out of scope per spec.md
		// §1) call; authenticated the same way as every other write route.
		api.Group(func(protected chi.Router) {
			protected.Use(authH.AuthMiddleware)

			protected.Get("/auth/me", authH.Me)
			protected.Patch("/auth/me", authH.UpdateUser)

			// Monitor catalog
			protected.Get("/monitors", monitorH.ListMonitors)
			protected.Post("/monitors", monitorH.CreateMonitor)
			protected.Put("/monitors/{id}", monitorH.UpdateMonitor)
			protected.Delete("/monitors/{id}", monitorH.DeleteMonitor)
			protected.Get("/monitors/{id}/health", monitorH.GetMonitorHealth)

			// Probe ingestion (engine seam for external probe drivers)
			protected.Post("/probe-results", monitorH.SubmitProbeResult)

			// Incidents
			protected.Get("/incidents", incidentH.GetIncidents)

			// Durable event stream replay
			protected.Get("/events", eventH.GetEvents)

			// API Keys
			protected.Get("/api-keys", apiKeyH.ListKeys)
			protected.Post("/api-keys", apiKeyH.CreateKey)
			protected.Delete("/api-keys/{id}", apiKeyH.DeleteKey)

			// Admin
			protected.Post("/admin/reset", adminH.ResetDatabase)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
