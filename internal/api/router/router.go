package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/patient-portal/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/patient-portal/internal/http/middleware"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	PaymentPages       *handlers.PaymentPagesHandler
	Portal             *handlers.PortalHandler
	Health             http.Handler
	MetricsHandler     http.Handler
	PageTokenSecret    string
	CORSAllowedOrigins []string

	// RateLimiter is applied to every /api route when set.
	RateLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	health := cfg.Health
	if health == nil {
		health = handlers.NewHealthHandler(nil)
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Method(http.MethodGet, "/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/api", func(api chi.Router) {
		if cfg.RateLimiter != nil {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}
		api.Use(httpmiddleware.ForwardSessionCookies)

		if cfg.PaymentPages != nil {
			pages := cfg.PaymentPages
			api.Get("/payment-methods", pages.PaymentMethods)
			api.Post("/payment-pages", pages.Mount)
			api.Route("/payment-pages/{pageID}", func(page chi.Router) {
				page.Use(httpmiddleware.PageAuth(cfg.PageTokenSecret))
				page.Get("/", pages.Get)
				page.Delete("/", pages.Unmount)
				page.Put("/tab", pages.SelectTab)
				page.Patch("/card", pages.SetCardField)
				page.Post("/card/blur", pages.BlurCardField)
				page.Patch("/coverage", pages.SetCoverageFields)
				page.Post("/coverage/apply", pages.ApplyForCoverage)
				page.Post("/coverage/refresh", pages.RefreshCoverage)
				page.Patch("/cash", pages.SetCashFields)
				page.Post("/submit", pages.Submit)
				page.Post("/modal/dismiss", pages.DismissModal)
			})
		}

		if cfg.Portal != nil {
			portal := cfg.Portal
			api.Route("/me", func(me chi.Router) {
				me.Get("/payments", portal.ListPayments)
				me.Get("/cash-receipts", portal.ListCashReceipts)
				me.Get("/appointments", portal.ListAppointments)
			})
			api.Get("/departments", portal.ListDepartments)
			api.Get("/departments/{department}/doctors", portal.ListDoctors)
			api.Get("/doctors/{doctorID}/slots", portal.AvailableSlots)
			api.Post("/appointments", portal.CreateAppointment)
			api.Post("/logout", portal.Logout)
		}
	})

	return r
}
