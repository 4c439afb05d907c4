/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RealIP:        Client address from X-Forwarded-For / X-Real-IP
  3. Logger:        chi request logging
  4. RequestLogger: zap access log and HTTP metrics
  5. Recoverer:     Panic recovery (500 instead of crash)
  6. CORS:          Cross-origin requests for the frontend

ROUTE GROUPS:
  /healthz, /metrics        Ops
  /api/login                Public, rate limited per address
  /api/holidays, scenarios  Public
  /api/*                    Bearer token required
  /api/admin/*              Administrator only

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Authentication, rate limiting, access log
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/warp/vacation-planner/metrics"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	CORSOrigins []string
	// LoginRate is login attempts per second per address; zero disables
	// the limit.
	LoginRate  rate.Limit
	LoginBurst int
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	// AccessLog enables chi's stdout request logger.
	AccessLog bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(RequestLogger(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	login := http.HandlerFunc(h.Login)
	var loginHandler http.Handler = login
	if cfg.LoginRate > 0 {
		loginHandler = RateLimitByIP(NewIPRateLimiter(cfg.LoginRate, max(cfg.LoginBurst, 1)))(login)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/login", loginHandler)
		r.Get("/holidays", h.ListHolidays)
		r.Get("/scenarios", h.ListScenarios)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)

			r.Post("/logout", h.Logout)
			r.Get("/state", h.GetState)

			// Request routes
			r.Route("/requests", func(r chi.Router) {
				r.Post("/", h.SubmitRequest)
				r.Post("/{id}/approve", h.ApproveRequest)
				r.Delete("/{id}", h.DeleteRequest)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Post("/reset", h.ResetRequests)
				r.Get("/export", h.ExportReport)
				r.Post("/report", h.RunReport)
			})

			// Scenario routes
			r.Get("/scenarios/current", h.GetCurrentScenario)
			r.Post("/scenarios/load", h.LoadScenario)
		})
	})

	return r
}
