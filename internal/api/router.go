// Package api provides the HTTP control API of the to-home sensors.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tohomedistance/tohomedistance/internal/api/handler"
	"github.com/tohomedistance/tohomedistance/internal/api/middleware"
	"github.com/tohomedistance/tohomedistance/internal/auth"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger
	Metrics   *middleware.Metrics
	Tokens    middleware.TokenValidator
	Entries   handler.EntryService
	Sensors   handler.SensorService
	Providers handler.ProviderHealthSource
	Checks    []handler.Check

	// RateLimitPerMinute caps requests per token subject (default: 120).
	RateLimitPerMinute int
	RequireTLS         bool
}

// sensorCounter adapts SensorService to the ops sensor count.
type sensorCounter struct {
	sensors handler.SensorService
}

func (c sensorCounter) Len() int {
	return len(c.sensors.Snapshots())
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	standard := middleware.StandardRateLimit
	if cfg.RateLimitPerMinute > 0 {
		standard = middleware.RateLimitConfig{RequestLimit: cfg.RateLimitPerMinute, WindowLength: time.Minute}
	}

	ops := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Checks:    cfg.Checks,
		Providers: cfg.Providers,
		Sensors:   sensorCounter{sensors: cfg.Sensors},
	})
	entries := handler.NewEntryHandler(cfg.Entries, cfg.Logger)
	sensors := handler.NewSensorHandler(cfg.Sensors, cfg.Logger)

	requireRead := middleware.RequireScope(auth.ScopeRead)
	requireAdmin := middleware.RequireScope(auth.ScopeAdmin)

	r.Route("/v1", func(r chi.Router) {
		// Probes stay public
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", ops.HealthCheck)
			r.Get("/ready", ops.ReadinessCheck)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Tokens))
			r.Use(middleware.RateLimit(standard))

			r.With(requireRead).Get("/ops/status", ops.SystemStatus)

			r.Route("/entries", func(r chi.Router) {
				r.With(requireRead).Get("/", entries.ListEntries)
				r.With(requireAdmin, middleware.RequireJSON).Post("/", entries.CreateEntry)
				r.With(requireRead).Get("/{entryId}", entries.GetEntry)
				r.With(requireAdmin).Delete("/{entryId}", entries.DeleteEntry)
			})

			r.Route("/sensors", func(r chi.Router) {
				r.With(requireRead).Get("/", sensors.ListSensors)
				r.With(requireRead).Get("/{entryId}", sensors.GetSensor)
				// Each refresh spends a directions request
				r.With(requireAdmin, middleware.RateLimit(middleware.RefreshRateLimit)).
					Post("/{entryId}/refresh", sensors.RefreshSensor)
			})
		})
	})

	return r
}
