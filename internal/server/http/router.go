// Package httpserver exposes the customer-facing JSON API over chi.
package httpserver

import (
	"context"
	"net/http"

	"github.com/and161185/warranty-keeper/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Pinger reports storage health for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config tunes the per-IP rate limit.
type Config struct {
	RatePerSecond float64
	Burst         int
}

// Handler serves the customer API.
type Handler struct {
	auth     service.AuthService
	regs     service.RegistrationService
	tokens   TokenParser
	health   Pinger
	log      *zap.Logger
	validate *validator.Validate
	limiter  *ipLimiter
}

// NewHandler wires services into HTTP handlers. health may be nil.
func NewHandler(auth service.AuthService, regs service.RegistrationService, tokens TokenParser, health Pinger, cfg Config, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	return &Handler{
		auth:     auth,
		regs:     regs,
		tokens:   tokens,
		health:   health,
		log:      log,
		validate: newValidator(),
		limiter:  newIPLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}
}

// NewRouter builds the chi router.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(recoverMiddleware(h.log))
	r.Use(loggingMiddleware(h.log))

	r.Get("/healthz", h.healthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.limiter.middleware)

		r.Post("/auth/register", h.register)
		r.Post("/auth/login", h.login)

		r.Route("/registrations", func(r chi.Router) {
			r.With(authMiddleware(h.tokens, false)).Post("/", h.createRegistration)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware(h.tokens, true))
				r.Get("/", h.listRegistrations)
				r.Get("/{id}", h.getRegistration)
				r.Patch("/{id}", h.updateRegistration)
			})
		})
	})
	return r
}
