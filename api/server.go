/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions. This
  is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for admin frontends
  5. Metrics:    Prometheus RPS/latency/in-flight
  6. RateLimit:  Token-bucket cap on request rate
  7. Auth:       Bearer-token actor extraction on mutation routes

ROUTE GROUPS:
  /api/employees/*     Directory and balance reads
  /api/transactions/*  Ledger writes
  /api/overrides       Manual corrections
  /api/promotions      Promotion recalculation
  /api/accruals/*      Generator triggers
  /api/audit           Audit trail
  /metrics             Prometheus scrape endpoint
  /healthz             Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// NewRouter creates a router with all routes configured. Mutation routes
// sit behind the auth middleware; reads are open.
func NewRouter(h *Handler, auth *AuthManager, reg *prometheus.Registry) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(h.Metrics.Instrument)
	r.Use(rateLimit(rate.NewLimiter(rate.Limit(100), 200)))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Employee reads and admin
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/balances", h.ListBalances)
			r.Get("/{id}/ledger", h.GetLedger)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireActor)
				r.Post("/", h.CreateEmployee)
				r.Post("/{id}/status", h.SetEmployeeStatus)
			})
		})

		// Ledger writes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireActor)

			r.Route("/transactions", func(r chi.Router) {
				r.Post("/", h.SubmitTransaction)
				r.Post("/{id}/edit", h.EditTransaction)
			})

			r.Post("/overrides", h.ApplyOverride)
			r.Post("/promotions", h.RecordPromotion)

			r.Route("/accruals", func(r chi.Router) {
				r.Post("/run", h.RunAccrual)
				r.Post("/backfill", h.BackfillAccruals)
			})
		})

		// Audit trail
		r.Get("/audit", h.QueryAudit)
	})

	// Operational endpoints
	r.Handle("/metrics", MetricsHandler(reg))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}

// rateLimit applies one shared token bucket across all requests.
func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
