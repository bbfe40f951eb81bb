// Package server is the HTTP surface of the authentication core: one-time
// code verification, refresh-token rotation, logout, and external provider
// login, plus health and the dev-only code endpoint.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/platformplatform/identity-core/internal/devcode"
	extloginservice "github.com/platformplatform/identity-core/internal/extlogin/service"
	"github.com/platformplatform/identity-core/internal/identity"
	sessionservice "github.com/platformplatform/identity-core/internal/session/service"
	"github.com/platformplatform/identity-core/internal/telemetry"
	verificationservice "github.com/platformplatform/identity-core/internal/verification/service"
)

// Pinger is the readiness dependency, usually *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps holds the collaborators the HTTP surface dispatches into.
type Deps struct {
	Sessions      *sessionservice.Service
	Verifications *verificationservice.Service
	ExternalLogin *extloginservice.Service
	Identities    identity.Repository
	Emitter       telemetry.EventEmitter
	// DB backs the health endpoint; nil skips the ping.
	DB Pinger
	// DevCodes enables the dev-only plain-code endpoint when non-nil.
	DevCodes devcode.Store
}

// Server routes requests to the authentication services.
type Server struct {
	deps          Deps
	product       string
	refreshTTL    time.Duration
	secureCookies bool
}

// New returns a Server for the given product slug.
func New(deps Deps, product string, refreshTTL time.Duration, secureCookies bool) *Server {
	return &Server{deps: deps, product: product, refreshTTL: refreshTTL, secureCookies: secureCookies}
}

// Handler builds the route table. All API routes run inside the telemetry
// unit-of-work middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.withUnitOfWork(h))
	}

	prefix := fmt.Sprintf("/api/%s", s.product)

	api("POST "+prefix+"/verification/{flow}/start", s.handleVerificationStart)
	api("POST "+prefix+"/verification/{flow}/complete", s.handleVerificationComplete)
	api("POST "+prefix+"/verification/{flow}/resend", s.handleVerificationResend)

	api("POST "+prefix+"/authentication/refresh", s.handleRefresh)
	api("POST "+prefix+"/authentication/logout", s.handleLogout)
	api("GET "+prefix+"/authentication/sessions", s.handleSessions)

	api("GET "+prefix+"/authentication/{provider}/{flow}/start", s.handleExternalLoginStart)
	api("GET "+prefix+"/authentication/{provider}/{flow}/callback", s.handleExternalLoginCallback)

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.deps.DevCodes != nil {
		mux.HandleFunc("GET /dev/verification/{flow}/{id}/code", s.handleDevCode)
	}
	return mux
}

// statusRecorder captures the response status for the unit-of-work decision.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withUnitOfWork scopes a telemetry collector to the request and flushes it
// only when the response indicates success. Failed requests discard their
// buffered events; security signals bypass the buffer at the emit site.
func (s *Server) withUnitOfWork(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := telemetry.Begin(r.Context())
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r.WithContext(ctx))
		if rec.status < http.StatusBadRequest {
			telemetry.Complete(ctx, s.deps.Emitter)
		} else {
			telemetry.Discard(ctx)
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "serving"})
}
