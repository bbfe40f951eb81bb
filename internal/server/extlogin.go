package server

import (
	"errors"
	"log"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/trace"

	"github.com/platformplatform/identity-core/internal/extlogin/domain"
	extloginservice "github.com/platformplatform/identity-core/internal/extlogin/service"
	"github.com/platformplatform/identity-core/internal/identity"
)

// correlationCookie is host-only by construction: no Domain attribute is set.
const correlationCookie = "login-correlation"

func (s *Server) handleExternalLoginStart(w http.ResponseWriter, r *http.Request) {
	providerName := r.PathValue("provider")
	flow := domain.FlowType(r.PathValue("flow"))
	fingerprint := extloginservice.Fingerprint(r.UserAgent(), r.Header.Get("Accept-Language"))

	res, err := s.deps.ExternalLogin.Start(r.Context(), providerName, flow, r.URL.Query().Get("tenantId"), fingerprint)
	if err != nil {
		s.redirectFlowError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     correlationCookie,
		Value:    res.CookieValue,
		Path:     "/api/" + s.product + "/authentication",
		MaxAge:   res.CookieMaxAge,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, res.AuthorizationURL, http.StatusFound)
}

func (s *Server) handleExternalLoginCallback(w http.ResponseWriter, r *http.Request) {
	providerName := r.PathValue("provider")
	flow := domain.FlowType(r.PathValue("flow"))
	query := r.URL.Query()

	cookieValue := ""
	if c, err := r.Cookie(correlationCookie); err == nil {
		cookieValue = c.Value
	}

	result, err := s.deps.ExternalLogin.ValidateCallback(r.Context(), extloginservice.CallbackInput{
		Provider:         providerName,
		Flow:             flow,
		Code:             query.Get("code"),
		State:            query.Get("state"),
		ErrorParam:       query.Get("error"),
		ErrorDescription: query.Get("error_description"),
		CookieValue:      cookieValue,
		FingerprintHash:  extloginservice.Fingerprint(r.UserAgent(), r.Header.Get("Accept-Language")),
	})
	s.clearCorrelationCookie(w)
	if err != nil {
		s.redirectFlowError(w, r, err)
		return
	}

	switch flow {
	case domain.FlowSignup:
		s.finishExternalSignup(w, r, result)
	default:
		s.finishExternalLogin(w, r, result)
	}
}

func (s *Server) finishExternalLogin(w http.ResponseWriter, r *http.Request, result *extloginservice.CallbackResult) {
	user, err := s.deps.Identities.GetUserByEmail(r.Context(), result.Profile.Email)
	if err != nil {
		s.redirectError(w, r, extloginservice.PublicServerError, result.CorrelationID)
		return
	}
	if user == nil {
		s.redirectError(w, r, extloginservice.PublicUserNotFound, result.CorrelationID)
		return
	}
	s.issueSessionAndRedirect(w, r, result.CorrelationID, user)
}

func (s *Server) finishExternalSignup(w http.ResponseWriter, r *http.Request, result *extloginservice.CallbackResult) {
	existing, err := s.deps.Identities.GetUserByEmail(r.Context(), result.Profile.Email)
	if err != nil {
		s.redirectError(w, r, extloginservice.PublicServerError, result.CorrelationID)
		return
	}
	if existing != nil {
		s.redirectError(w, r, extloginservice.PublicAccountAlreadyExists, result.CorrelationID)
		return
	}
	user, err := s.deps.Identities.CreateTenantWithOwner(r.Context(), result.Profile.Email)
	if err != nil {
		s.redirectError(w, r, extloginservice.PublicServerError, result.CorrelationID)
		return
	}
	// The provider already verified the email; record that.
	if err := s.deps.Identities.MarkEmailVerified(r.Context(), user.TenantID, user.ID); err != nil {
		s.redirectError(w, r, extloginservice.PublicServerError, result.CorrelationID)
		return
	}
	s.issueSessionAndRedirect(w, r, result.CorrelationID, user)
}

func (s *Server) issueSessionAndRedirect(w http.ResponseWriter, r *http.Request, correlationID string, user *identity.User) {
	pair, err := s.deps.Sessions.CreateAndIssue(r.Context(), user.Snapshot(), deviceContextFromRequest(r))
	if err != nil {
		s.redirectError(w, r, extloginservice.PublicServerError, correlationID)
		return
	}
	setTokenCarriers(w, pair, s.refreshTTL, s.secureCookies)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) clearCorrelationCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     correlationCookie,
		Value:    "",
		Path:     "/api/" + s.product + "/authentication",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectFlowError sends the browser to the generic error page. The public
// code is the only detail exposed; the id lets support correlate with logs.
func (s *Server) redirectFlowError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *extloginservice.FlowError
	if errors.As(err, &fe) {
		s.redirectError(w, r, fe.Public, fe.CorrelationID)
		return
	}
	log.Printf("server: external login: %v", err)
	s.redirectError(w, r, extloginservice.PublicServerError, "")
}

func (s *Server) redirectError(w http.ResponseWriter, r *http.Request, publicCode, id string) {
	if id == "" {
		if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
			id = sc.TraceID().String()
		}
	}
	query := url.Values{}
	query.Set("error", publicCode)
	if id != "" {
		query.Set("id", id)
	}
	http.Redirect(w, r, "/error?"+query.Encode(), http.StatusFound)
}
