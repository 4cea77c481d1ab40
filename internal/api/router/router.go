package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicflow/schedcore/internal/http/handlers"
	httpmiddleware "github.com/clinicflow/schedcore/internal/http/middleware"
	"github.com/clinicflow/schedcore/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	Availability *handlers.AvailabilityHandler
	Slots        *handlers.SlotsHandler
	Appointments *handlers.AppointmentsHandler
	Channels     *handlers.ChannelsHandler

	// WebhookIngress handles the external calendar's push notifications.
	WebhookIngress http.HandlerFunc

	// RateLimit wraps authenticated routes when set.
	RateLimit func(http.Handler) http.Handler

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(httpmiddleware.CORSOptions{AllowedOrigins: cfg.CORSAllowedOrigins}))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: health, metrics, webhook ingress. The webhook
	// route authenticates via its signature, not the principal headers.
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.WebhookIngress != nil {
			public.Post("/webhooks/calendar", cfg.WebhookIngress)
		}
	})

	// Authenticated scheduling API.
	r.Group(func(authed chi.Router) {
		authed.Use(httpmiddleware.Principal)
		if cfg.RateLimit != nil {
			authed.Use(cfg.RateLimit)
		}

		authed.Route("/providers/{providerID}", func(pr chi.Router) {
			pr.Get("/availability", cfg.Availability.Get)
			pr.Put("/availability", cfg.Availability.Put)
			pr.Post("/blocked-intervals", cfg.Availability.AddBlockedInterval)
			pr.Delete("/blocked-intervals/{intervalID}", cfg.Availability.RemoveBlockedInterval)

			pr.Post("/slots/generate", cfg.Slots.Generate)
			pr.Get("/slots", cfg.Slots.List)

			pr.Get("/appointments", cfg.Appointments.ListByProvider)
			pr.Delete("/calendar", cfg.Appointments.ClearCalendar)

			if cfg.Channels != nil {
				pr.Post("/calendar/watch", cfg.Channels.Setup)
				pr.Delete("/calendar/watch", cfg.Channels.Stop)
			}
		})

		authed.Route("/appointments", func(ar chi.Router) {
			ar.Post("/", cfg.Appointments.Create)
			ar.Get("/{appointmentID}", cfg.Appointments.Get)
			ar.Patch("/{appointmentID}/cancel", cfg.Appointments.Cancel)
			ar.Patch("/{appointmentID}/reschedule", cfg.Appointments.Reschedule)
			ar.Patch("/{appointmentID}/complete", cfg.Appointments.Complete)
		})
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
