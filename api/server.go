/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Recoverer:  Panic recovery (500 instead of crash)
  2. RequestID:  Unique ID per request for tracing (X-Request-ID)
  3. Logger:     Structured request logging (zap)
  4. CORS:       Cross-origin requests for the police and public apps

ROUTE GROUPS:
  /health               Liveness
  /api/cases/*          Public reads, contributions (rate limited)
  /api/cases/*          Officer actions (JWT + role permission)
  /api/eligibility      Officer eligibility preview
  /api/audit            Audit log
  /api/integrity        Integrity audit
  /api/scenarios/*      Demo scenarios (Admin)

SECURITY:
  Contributors are anonymous: reading cases and contributing need no token.
  Everything an officer does needs a bearer token from cmd/token, and the
  role in it must carry the route's permission (see auth/rbac.go).

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Auth, logging, rate limiting
  - cmd/server/main.go: Server startup
*/
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bailaid/case-ledger/auth"
)

// RouterConfig carries what the router needs beyond the handler.
type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins []string

	// Redis backs the contribution rate limit; nil disables it.
	Redis           *redis.Client
	ContributeLimit int
	ContributeEvery time.Duration
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig, log *zap.Logger) *chi.Mux {
	if log == nil {
		log = zap.NewNop()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if cfg.ContributeEvery <= 0 {
		cfg.ContributeEvery = time.Minute
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	officer := AuthMiddleware(cfg.JWTSecret, log)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Case routes
		r.Route("/cases", func(r chi.Router) {
			r.Get("/", h.ListCases)
			r.Get("/browse", h.BrowseCases)
			r.Get("/stats", h.GetStats)
			r.Get("/{id}", h.GetCase)
			r.Get("/{id}/guidance", h.GetGuidance)

			r.With(RateLimitMiddleware(cfg.Redis, cfg.ContributeLimit, cfg.ContributeEvery)).
				Post("/{id}/contributions", h.Contribute)

			r.With(officer, RequirePermission(auth.PermRegisterCase)).Post("/", h.RegisterCase)
			r.With(officer, RequirePermission(auth.PermAuthorizeRelease)).Post("/{id}/release", h.ReleaseCase)
			r.With(officer, RequirePermission(auth.PermLockCase)).Post("/{id}/lock", h.LockCase)
			r.With(officer, RequirePermission(auth.PermLockCase)).Post("/{id}/unlock", h.UnlockCase)
			r.With(officer, RequirePermission(auth.PermCloseCase)).Post("/{id}/close", h.CloseCase)
		})

		// Officer tools
		r.Group(func(r chi.Router) {
			r.Use(officer)
			r.With(RequirePermission(auth.PermCheckEligibility)).Post("/eligibility", h.CheckEligibility)
			r.With(RequirePermission(auth.PermViewAudit)).Get("/audit", h.ListAudit)
			r.With(RequirePermission(auth.PermViewAudit)).Get("/integrity", h.GetIntegrity)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Use(officer, RequirePermission(auth.PermManageScenarios))
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
