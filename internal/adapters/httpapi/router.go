// Package httpapi is the read-mostly dashboard API used by library staff
// tooling. The bot remains the primary front end; this surface exposes the
// registry, subscription state and the notification audit trail over JSON.
package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the API HTTP router.
//
// This is intentionally a thin adapter: handlers decode, delegate to the
// application services and render. No policy lives here.
func NewRouter(s *Server, apiToken string) http.Handler {
	r := chi.NewRouter()

	// Baseline production-safe middleware (minimal but useful).
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoint is unauthenticated (used for infra checks).
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		if apiToken != "" {
			r.Use(bearerAuth(apiToken))
		}
		r.Get("/stats", s.handleStats)
		r.Get("/members", s.handleListMembers)
		r.Post("/members", s.handleRegisterMember)
		r.Get("/members/{id}", s.handleGetMember)
		r.Patch("/members/{id}", s.handlePatchMember)
		r.Post("/members/{id}/activate", s.handleActivateMember)
		r.Post("/members/{id}/deactivate", s.handleDeactivateMember)
		r.Put("/members/{id}/plan", s.handleSetPlan)
		r.Get("/members/{id}/notifications", s.handleMemberNotifications)
		r.Get("/admins", s.handleListAdmins)
	})

	return r
}

// bearerAuth enforces a static deployment token. The dashboard runs on the
// staff network; per-user identity stays with the bot's admin hierarchy.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(authz, prefix) {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
			if subtle.ConstantTimeCompare([]byte(raw), []byte(token)) != 1 {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
