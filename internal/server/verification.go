package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/platformplatform/identity-core/internal/apierr"
	sessiondomain "github.com/platformplatform/identity-core/internal/session/domain"
	"github.com/platformplatform/identity-core/internal/verification/domain"
)

type startVerificationRequest struct {
	Email string `json:"email"`
}

type startVerificationResponse struct {
	ID              string `json:"id"`
	ValidForSeconds int    `json:"validForSeconds"`
}

func (s *Server) handleVerificationStart(w http.ResponseWriter, r *http.Request) {
	flow := domain.FlowType(r.PathValue("flow"))
	var req startVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.BadRequest("invalid_body", "request body must be JSON with an email field", false))
		return
	}

	res, err := s.deps.Verifications.Start(r.Context(), flow, strings.TrimSpace(req.Email))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startVerificationResponse{ID: res.ID, ValidForSeconds: res.ValidForSeconds})
}

type completeVerificationRequest struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

type completeVerificationResponse struct {
	SessionID string `json:"sessionId,omitempty"`
}

func (s *Server) handleVerificationComplete(w http.ResponseWriter, r *http.Request) {
	flow := domain.FlowType(r.PathValue("flow"))
	var req completeVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.BadRequest("invalid_body", "request body must be JSON with id and code fields", false))
		return
	}

	res, err := s.deps.Verifications.Complete(r.Context(), flow, req.ID, strings.ToUpper(strings.TrimSpace(req.Code)))
	if err != nil {
		writeError(w, err)
		return
	}

	// The three flows share the state machine; only the side effect after a
	// successful completion differs.
	switch flow {
	case domain.FlowLogin:
		s.completeLogin(w, r, res.Email)
	case domain.FlowSignup:
		s.completeSignup(w, r, res.Email)
	default:
		s.completeConfirmation(w, r, res.Email)
	}
}

func (s *Server) completeLogin(w http.ResponseWriter, r *http.Request, email string) {
	user, err := s.deps.Identities.GetUserByEmail(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}
	if user == nil {
		writeError(w, apierr.NotFound("user_not_found", "no account exists for this email"))
		return
	}
	s.issueSession(w, r, user)
}

func (s *Server) completeSignup(w http.ResponseWriter, r *http.Request, email string) {
	existing, err := s.deps.Identities.GetUserByEmail(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}
	if existing != nil {
		writeError(w, apierr.Conflict("account_already_exists", "an account already exists for this email"))
		return
	}
	user, err := s.deps.Identities.CreateTenantWithOwner(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Identities.MarkEmailVerified(r.Context(), user.TenantID, user.ID); err != nil {
		writeError(w, err)
		return
	}
	s.issueSession(w, r, user)
}

func (s *Server) completeConfirmation(w http.ResponseWriter, r *http.Request, email string) {
	user, err := s.deps.Identities.GetUserByEmail(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}
	if user == nil {
		writeError(w, apierr.NotFound("user_not_found", "no account exists for this email"))
		return
	}
	if err := s.deps.Identities.MarkEmailVerified(r.Context(), user.TenantID, user.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completeVerificationResponse{})
}

type resendVerificationRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleVerificationResend(w http.ResponseWriter, r *http.Request) {
	flow := domain.FlowType(r.PathValue("flow"))
	var req resendVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.BadRequest("invalid_body", "request body must be JSON with an id field", false))
		return
	}

	res, err := s.deps.Verifications.Resend(r.Context(), flow, req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startVerificationResponse{ID: res.ID, ValidForSeconds: res.ValidForSeconds})
}

func (s *Server) handleDevCode(w http.ResponseWriter, r *http.Request) {
	flow := domain.FlowType(r.PathValue("flow"))
	code, ok := s.deps.DevCodes.Get(flow, r.PathValue("id"))
	if !ok {
		writeError(w, apierr.NotFound("verification_not_found", "no live code for this verification"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

func deviceContextFromRequest(r *http.Request) sessiondomain.DeviceContext {
	ip := r.Header.Get("X-Forwarded-For")
	if i := strings.Index(ip, ","); i >= 0 {
		ip = ip[:i]
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		} else {
			ip = r.RemoteAddr
		}
	}
	return sessiondomain.DeviceContext{UserAgent: r.UserAgent(), IPAddress: ip}
}
