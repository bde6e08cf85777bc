package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/Ding-Fan/deepseek-telegram-bot/internal/errors"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/observability"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/server/handlers"
)

func (s *Server) registerRoutes() {
	health := s.svc.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	api := &handlers.RelayAPI{Relay: s.svc.Relay, Ledger: s.svc.Ledger, Limit: s.svc.Limit}
	s.router.Route("/v1", func(r chi.Router) {
		if token := strings.TrimSpace(s.svc.AdminToken); token != "" {
			r.Use(requireBearer(token))
		} else if s.svc.Relay != nil && !isLoopbackHost(s.cfg.Host) {
			if logger := observability.ServerLogger; logger != nil {
				logger.Warn("Relay API is unauthenticated on a non-loopback host; set an admin token",
					zap.String("host", s.cfg.Host))
			}
		}
		if s.svc.Relay != nil {
			r.Post("/relay", api.HandleRelay)
		}
		if s.svc.Ledger != nil {
			r.Get("/users/{id}", api.HandleUser)
		}
	})

	s.registerAdminEndpoint()
}

// registerAdminEndpoint exposes gofulmen's signal handler behind a bearer token.
func (s *Server) registerAdminEndpoint() {
	token := strings.TrimSpace(s.svc.AdminToken)
	logger := observability.ServerLogger

	if token == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no admin token configured)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: token,
		RateLimit: 10,
		RateBurst: 5,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Warn("Admin signal endpoint enabled; keep this listener off the public internet",
			zap.String("path", "/admin/signal"))
	}
}

// requireBearer rejects requests whose Authorization header does not carry token.
func requireBearer(token string) func(http.Handler) http.Handler {
	want := []byte("Bearer " + token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				HandleError(w, r, apperrors.NewUnauthorizedError("missing or invalid bearer token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isLoopbackHost(host string) bool {
	switch strings.TrimSpace(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
