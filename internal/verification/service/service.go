// Package service implements the one-time-code state machine shared by the
// login, signup, and email-confirmation flows: Start issues a code, Complete
// validates it through ordered gates, Resend reissues within limits.
package service

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/platformplatform/identity-core/internal/apierr"
	"github.com/platformplatform/identity-core/internal/clock"
	"github.com/platformplatform/identity-core/internal/devcode"
	"github.com/platformplatform/identity-core/internal/email"
	"github.com/platformplatform/identity-core/internal/security"
	"github.com/platformplatform/identity-core/internal/telemetry"
	"github.com/platformplatform/identity-core/internal/verification/domain"
	"github.com/platformplatform/identity-core/internal/verification/repository"
)

// Service runs the verification state machine. All expected outcomes are
// *apierr.Error values; anything else is an infrastructure failure.
type Service struct {
	records repository.Repository
	hasher  *security.Hasher
	sender  email.Sender
	// devCodes is non-nil only when code return mode is enabled; production
	// configuration refuses to set it.
	devCodes devcode.Store
	clock    clock.Clock
	emitter  telemetry.EventEmitter
}

// New returns a Service. devCodes and emitter may be nil.
func New(records repository.Repository, hasher *security.Hasher, sender email.Sender, devCodes devcode.Store, clk clock.Clock, emitter telemetry.EventEmitter) *Service {
	return &Service{
		records:  records,
		hasher:   hasher,
		sender:   sender,
		devCodes: devCodes,
		clock:    clk,
		emitter:  emitter,
	}
}

// StartResult is the handle returned to the client after Start.
type StartResult struct {
	ID              string
	ValidForSeconds int
}

// CompleteResult reports a successful code validation.
type CompleteResult struct {
	Email string
	// ElapsedSeconds is the time from Start to Complete, for telemetry.
	ElapsedSeconds int
}

// purposeFor varies the message copy per flow. Security logic never branches
// on it.
func purposeFor(flow domain.FlowType) string {
	switch flow {
	case domain.FlowLogin:
		return "sign in to your account"
	case domain.FlowSignup:
		return "create your account"
	default:
		return "confirm your email address"
	}
}

// Start issues a fresh code for the email and sends it. Enforces the rolling
// 24h start cap and refuses a double start while a live record exists.
func (s *Service) Start(ctx context.Context, flow domain.FlowType, address string) (*StartResult, error) {
	if !flow.Valid() {
		return nil, apierr.BadRequest("invalid_flow", fmt.Sprintf("unknown verification flow %q", flow), false)
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return nil, apierr.BadRequest("invalid_email", "a valid email address is required", false)
	}
	now := s.clock.Now()

	newest, err := s.records.GetNewestByEmail(ctx, flow, address)
	if err != nil {
		return nil, err
	}
	if newest != nil && !newest.Completed && !newest.HasExpired(now) {
		return nil, apierr.Conflict("verification_in_progress", "a verification code was already sent; complete or resend it")
	}

	count, err := s.records.CountStartsSince(ctx, flow, address, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	if count >= domain.MaxStartsPerDay {
		return nil, apierr.TooManyRequests("too_many_verification_starts", "too many verification attempts for this email; try again later")
	}

	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}
	codeHash, err := s.hasher.Hash(code)
	if err != nil {
		return nil, err
	}

	v := &domain.Verification{
		ID:         ulid.Make().String(),
		FlowType:   flow,
		Email:      address,
		CodeHash:   codeHash,
		Purpose:    purposeFor(flow),
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if err := s.records.Create(ctx, v); err != nil {
		return nil, err
	}
	if s.devCodes != nil {
		s.devCodes.Put(flow, v.ID, code, now.Add(domain.ValidFor))
	}

	subject, body := email.CodeMessage(v.Purpose, code)
	if err := s.sender.Send(ctx, address, subject, body); err != nil {
		return nil, err
	}

	telemetry.Collect(ctx, telemetry.Event{
		Type:     telemetry.EventCodeStarted,
		Metadata: map[string]string{"flow": string(flow)},
	})
	return &StartResult{ID: v.ID, ValidForSeconds: int(domain.ValidFor.Seconds())}, nil
}

// Complete validates the presented code through ordered gates. The blocked
// gate runs before the code comparison, so lockout is independent of code
// correctness.
func (s *Service) Complete(ctx context.Context, flow domain.FlowType, id, code string) (*CompleteResult, error) {
	v, err := s.records.GetByID(ctx, flow, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, apierr.NotFound("verification_not_found", "verification not found")
	}
	if v.Completed {
		// Already consumed: a double-click, not a security event.
		return nil, apierr.BadRequest("verification_already_completed", "the code has already been used", false)
	}
	if v.IsBlocked() {
		return nil, apierr.Forbidden("verification_blocked", "too many failed attempts; request a new code", true)
	}
	now := s.clock.Now()
	if err := s.hasher.Verify(v.CodeHash, code); err != nil {
		if err := s.records.IncrementRetry(ctx, flow, id); err != nil {
			return nil, err
		}
		if v.RetryCount+1 >= domain.MaxAttempts {
			// Flushed immediately: the request fails, so the collector never would.
			telemetry.EmitAsync(s.emitter, ctx, telemetry.Event{
				Type:     telemetry.EventCodeBlocked,
				Reason:   "max-attempts",
				Metadata: map[string]string{"flow": string(flow)},
			})
		}
		return nil, apierr.BadRequest("invalid_code", "the code is not valid", true)
	}
	if v.HasExpired(now) {
		return nil, apierr.BadRequest("verification_expired", "the code has expired; request a new one", true)
	}

	ok, err := s.records.TryComplete(ctx, flow, id, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the set-once race to a concurrent Complete.
		return nil, apierr.BadRequest("verification_already_completed", "the code has already been used", false)
	}

	elapsed := int(now.Sub(v.CreatedAt).Seconds())
	telemetry.Collect(ctx, telemetry.Event{
		Type:     telemetry.EventCodeCompleted,
		Metadata: map[string]string{"flow": string(flow), "elapsed_seconds": fmt.Sprintf("%d", elapsed)},
	})
	return &CompleteResult{Email: v.Email, ElapsedSeconds: elapsed}, nil
}

// Resend reissues the code for an uncompleted record, outside the cooldown
// and within the resend cap. It does not extend the validity window.
func (s *Service) Resend(ctx context.Context, flow domain.FlowType, id string) (*StartResult, error) {
	v, err := s.records.GetByID(ctx, flow, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, apierr.NotFound("verification_not_found", "verification not found")
	}
	if v.Completed {
		return nil, apierr.BadRequest("verification_already_completed", "the code has already been used", false)
	}
	now := s.clock.Now()
	if v.InResendCooldown(now) {
		return nil, apierr.BadRequest("resend_cooldown", "a code was just sent; wait before requesting another", true)
	}
	if v.ResendCount >= domain.MaxResends {
		return nil, apierr.Forbidden("too_many_resends", "resend limit reached; start over", true)
	}

	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}
	codeHash, err := s.hasher.Hash(code)
	if err != nil {
		return nil, err
	}
	if err := s.records.ReissueCode(ctx, flow, id, codeHash, now); err != nil {
		return nil, err
	}
	if s.devCodes != nil {
		s.devCodes.Put(flow, id, code, v.CreatedAt.Add(domain.ValidFor))
	}

	subject, body := email.CodeMessage(v.Purpose, code)
	if err := s.sender.Send(ctx, v.Email, subject, body); err != nil {
		return nil, err
	}

	telemetry.Collect(ctx, telemetry.Event{
		Type:     telemetry.EventCodeResent,
		Metadata: map[string]string{"flow": string(flow)},
	})

	remaining := int(v.CreatedAt.Add(domain.ValidFor).Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return &StartResult{ID: id, ValidForSeconds: remaining}, nil
}
