// Package service runs the external-login state machine: Start hands the
// browser to an identity provider with PKCE and an encrypted correlation,
// ValidateCallback walks the returning request through ordered gates where
// each failure is terminal and consumes the correlation.
package service

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/platformplatform/identity-core/internal/clock"
	"github.com/platformplatform/identity-core/internal/extlogin/domain"
	"github.com/platformplatform/identity-core/internal/extlogin/provider"
	"github.com/platformplatform/identity-core/internal/extlogin/repository"
	"github.com/platformplatform/identity-core/internal/security"
	"github.com/platformplatform/identity-core/internal/telemetry"
)

// Public error codes surfaced on the error page. Internal outcomes map onto
// this closed set; the detailed reason stays in logs and telemetry.
const (
	PublicAuthenticationFailed = "authentication_failed"
	PublicInvalidRequest       = "invalid_request"
	PublicSessionExpired       = "session_expired"
	PublicUserNotFound         = "user_not_found"
	PublicAccountAlreadyExists = "account_already_exists"
	PublicServerError          = "server_error"
)

// FlowError is a terminal gate failure. Outcome is the internal reason;
// Public is the only part a client ever sees.
type FlowError struct {
	Outcome domain.Outcome
	Public  string
	Detail  string
	// CorrelationID is set once a record was identified, for the error page.
	CorrelationID string
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("external login failed: %s (%s)", e.Outcome, e.Detail)
}

// Service coordinates correlations, providers, and the sealed state/cookie
// pair.
type Service struct {
	correlations repository.Repository
	providers    *provider.Registry
	envelope     *security.Envelope
	clock        clock.Clock
	emitter      telemetry.EventEmitter

	publicBaseURL string
	product       string
}

// New returns a Service. emitter may be nil.
func New(correlations repository.Repository, providers *provider.Registry, envelope *security.Envelope, clk clock.Clock, emitter telemetry.EventEmitter, publicBaseURL, product string) *Service {
	return &Service{
		correlations:  correlations,
		providers:     providers,
		envelope:      envelope,
		clock:         clk,
		emitter:       emitter,
		publicBaseURL: publicBaseURL,
		product:       product,
	}
}

// RedirectURI returns the provider callback URI for the flow.
func (s *Service) RedirectURI(providerName string, flow domain.FlowType) string {
	return fmt.Sprintf("%s/api/%s/authentication/%s/%s/callback", s.publicBaseURL, s.product, providerName, flow)
}

// StartResult carries everything the transport needs to send the browser to
// the provider.
type StartResult struct {
	CorrelationID    string
	AuthorizationURL string
	// CookieValue is the sealed correlation cookie; CookieMaxAge its max-age
	// in seconds.
	CookieValue  string
	CookieMaxAge int
}

// Start creates a pending correlation and builds the provider authorization
// URL. fingerprintHash binds the eventual callback to this browser.
func (s *Service) Start(ctx context.Context, providerName string, flow domain.FlowType, preferredTenantID, fingerprintHash string) (*StartResult, error) {
	if !flow.Valid() {
		return nil, &FlowError{Outcome: domain.OutcomeInvalidState, Public: PublicInvalidRequest, Detail: fmt.Sprintf("unknown flow %q", flow)}
	}
	p, err := s.providers.Get(providerName)
	if err != nil {
		return nil, &FlowError{Outcome: domain.OutcomeInvalidState, Public: PublicInvalidRequest, Detail: err.Error()}
	}

	codeVerifier, err := provider.NewCodeVerifier()
	if err != nil {
		return nil, err
	}
	nonce, err := provider.NewNonce()
	if err != nil {
		return nil, err
	}

	corr := &domain.Correlation{
		ID:              ulid.Make().String(),
		Provider:        providerName,
		FlowType:        flow,
		CodeVerifier:    codeVerifier,
		Nonce:           nonce,
		FingerprintHash: fingerprintHash,
		TenantID:        preferredTenantID,
		CreatedAt:       s.clock.Now(),
	}
	if err := s.correlations.Create(ctx, corr); err != nil {
		return nil, err
	}

	state, err := sealState(s.envelope, corr.ID)
	if err != nil {
		return nil, err
	}
	cookieValue, err := sealCookie(s.envelope, cookiePayload{
		CorrelationID:   corr.ID,
		FingerprintHash: fingerprintHash,
		TenantID:        preferredTenantID,
	})
	if err != nil {
		return nil, err
	}

	authURL := p.BuildAuthorizationURL(provider.AuthorizationRequest{
		RedirectURI:   s.RedirectURI(providerName, flow),
		State:         state,
		CodeChallenge: provider.ComputeS256Challenge(codeVerifier),
		Nonce:         nonce,
	})

	telemetry.Collect(ctx, telemetry.Event{
		Type:          telemetry.EventExternalLoginStarted,
		CorrelationID: corr.ID,
		Metadata:      map[string]string{"provider": providerName, "flow": string(flow)},
	})

	return &StartResult{
		CorrelationID:    corr.ID,
		AuthorizationURL: authURL,
		CookieValue:      cookieValue,
		CookieMaxAge:     int(domain.ValidFor.Seconds()),
	}, nil
}

// CallbackInput is the raw material of a provider redirect.
type CallbackInput struct {
	Provider         string
	Flow             domain.FlowType
	Code             string
	State            string
	ErrorParam       string
	ErrorDescription string
	// CookieValue is the sealed correlation cookie, empty if absent.
	CookieValue string
	// FingerprintHash is computed from the callback request's headers.
	FingerprintHash string
}

// CallbackResult is a fully validated external login. The caller resolves
// the user and hands off to session issuance.
type CallbackResult struct {
	CorrelationID     string
	PreferredTenantID string
	Profile           provider.Profile
}

// ValidateCallback walks the gates in order. Every failure is a *FlowError
// and, once a record is identified, consumes it with the internal reason;
// duplicate failure writes are tolerated no-ops.
func (s *Service) ValidateCallback(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	if in.State == "" && in.CookieValue == "" {
		return nil, s.fail(ctx, nil, domain.OutcomeInvalidState, PublicInvalidRequest, "state and correlation cookie both missing")
	}
	stateID, err := openState(s.envelope, in.State)
	if err != nil || stateID == "" {
		return nil, s.fail(ctx, nil, domain.OutcomeInvalidState, PublicInvalidRequest, "state missing or unreadable")
	}
	if in.CookieValue == "" {
		// A legitimate browser always carries the cookie it set at Start;
		// state without cookie is the primary replay signal.
		return nil, s.fail(ctx, nil, domain.OutcomeReplayDetected, PublicAuthenticationFailed, "correlation cookie missing")
	}
	cookie, err := openCookie(s.envelope, in.CookieValue)
	if err != nil {
		return nil, s.fail(ctx, nil, domain.OutcomeReplayDetected, PublicAuthenticationFailed, "correlation cookie unreadable")
	}

	corr, err := s.correlations.GetByID(ctx, stateID)
	if err != nil {
		return nil, err
	}
	if corr == nil {
		return nil, s.fail(ctx, nil, domain.OutcomeSessionNotFound, PublicSessionExpired, "correlation not found")
	}
	if cookie.CorrelationID != corr.ID || corr.Provider != in.Provider || corr.FlowType != in.Flow {
		return nil, s.fail(ctx, corr, domain.OutcomeFlowIDMismatch, PublicInvalidRequest, "cookie, state, and route identify different flows")
	}
	if cookie.FingerprintHash != corr.FingerprintHash || in.FingerprintHash != corr.FingerprintHash {
		return nil, s.fail(ctx, corr, domain.OutcomeHijackingDetected, PublicAuthenticationFailed, "browser fingerprint changed mid-flow")
	}
	now := s.clock.Now()
	if corr.HasExpired(now) {
		return nil, s.fail(ctx, corr, domain.OutcomeExpired, PublicSessionExpired, "correlation expired")
	}
	if corr.Consumed {
		return nil, s.fail(ctx, corr, domain.OutcomeAlreadyCompleted, PublicSessionExpired, "correlation already resolved")
	}
	if in.ErrorParam != "" {
		// Recorded verbatim for diagnostics; the client sees the generic code.
		detail := in.ErrorParam
		if in.ErrorDescription != "" {
			detail += ": " + in.ErrorDescription
		}
		return nil, s.fail(ctx, corr, domain.OutcomeProviderError, PublicAuthenticationFailed, detail)
	}
	if in.Code == "" {
		return nil, s.fail(ctx, corr, domain.OutcomeCodeExchangeFailed, PublicAuthenticationFailed, "authorization code missing")
	}

	p, err := s.providers.Get(in.Provider)
	if err != nil {
		return nil, s.fail(ctx, corr, domain.OutcomeCodeExchangeFailed, PublicAuthenticationFailed, err.Error())
	}
	tokens, err := p.ExchangeCode(ctx, in.Code, corr.CodeVerifier, s.RedirectURI(in.Provider, in.Flow))
	if err != nil {
		return nil, s.fail(ctx, corr, domain.OutcomeCodeExchangeFailed, PublicAuthenticationFailed, err.Error())
	}
	profile, err := p.FetchProfile(ctx, tokens)
	if err != nil {
		return nil, s.fail(ctx, corr, domain.OutcomeCodeExchangeFailed, PublicAuthenticationFailed, err.Error())
	}
	if profile.Email == "" || !profile.EmailVerified {
		return nil, s.fail(ctx, corr, domain.OutcomeCodeExchangeFailed, PublicAuthenticationFailed, "provider email missing or unverified")
	}
	// Providers without OIDC nonce support return an empty nonce; the OIDC
	// implementations fail profile validation when the echo is missing.
	if profile.Nonce != "" && profile.Nonce != corr.Nonce {
		return nil, s.fail(ctx, corr, domain.OutcomeNonceMismatch, PublicAuthenticationFailed, "id token nonce does not match")
	}

	consumed, err := s.correlations.TryConsume(ctx, corr.ID, domain.OutcomeSucceeded)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, s.fail(ctx, corr, domain.OutcomeAlreadyCompleted, PublicSessionExpired, "lost the consume race to a concurrent callback")
	}

	telemetry.Collect(ctx, telemetry.Event{
		Type:          telemetry.EventExternalLoginSuccess,
		CorrelationID: corr.ID,
		Metadata:      map[string]string{"provider": in.Provider, "flow": string(in.Flow)},
	})

	return &CallbackResult{
		CorrelationID:     corr.ID,
		PreferredTenantID: corr.TenantID,
		Profile:           *profile,
	}, nil
}

// fail consumes the record (when one was identified and the outcome is a
// fresh failure), emits the failure event immediately, and returns the
// FlowError. Emission bypasses the request collector: the request is about
// to fail, and the signal must not be lost with it.
func (s *Service) fail(ctx context.Context, corr *domain.Correlation, outcome domain.Outcome, public, detail string) *FlowError {
	event := telemetry.Event{
		Type:     telemetry.EventExternalLoginFailed,
		Reason:   string(outcome),
		Metadata: map[string]string{"detail": detail},
	}
	if corr != nil {
		event.CorrelationID = corr.ID
		if outcome != domain.OutcomeAlreadyCompleted {
			// First failure writer commits the reason; later duplicates are
			// tolerated no-ops.
			if _, err := s.correlations.TryConsume(ctx, corr.ID, outcome); err != nil {
				event.Metadata["consume_error"] = err.Error()
			}
		}
	}
	telemetry.EmitAsync(s.emitter, ctx, event)
	fe := &FlowError{Outcome: outcome, Public: public, Detail: detail}
	if corr != nil {
		fe.CorrelationID = corr.ID
	}
	return fe
}
