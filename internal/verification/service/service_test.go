package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/platformplatform/identity-core/internal/apierr"
	"github.com/platformplatform/identity-core/internal/clock"
	"github.com/platformplatform/identity-core/internal/devcode"
	"github.com/platformplatform/identity-core/internal/security"
	"github.com/platformplatform/identity-core/internal/verification/domain"
)

// memVerificationRepo mirrors the Postgres repository semantics, including
// the set-once TryComplete.
type memVerificationRepo struct {
	mu      sync.Mutex
	records map[string]*domain.Verification
}

func newMemVerificationRepo() *memVerificationRepo {
	return &memVerificationRepo{records: make(map[string]*domain.Verification)}
}

func key(flow domain.FlowType, id string) string { return string(flow) + "/" + id }

func (r *memVerificationRepo) Create(_ context.Context, v *domain.Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *v
	r.records[key(v.FlowType, v.ID)] = &cp
	return nil
}

func (r *memVerificationRepo) GetByID(_ context.Context, flow domain.FlowType, id string) (*domain.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.records[key(flow, id)]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (r *memVerificationRepo) GetNewestByEmail(_ context.Context, flow domain.FlowType, email string) (*domain.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *domain.Verification
	for _, v := range r.records {
		if v.FlowType != flow || v.Email != email {
			continue
		}
		if newest == nil || v.CreatedAt.After(newest.CreatedAt) {
			newest = v
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (r *memVerificationRepo) CountStartsSince(_ context.Context, flow domain.FlowType, email string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, v := range r.records {
		if v.FlowType == flow && v.Email == email && !v.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memVerificationRepo) IncrementRetry(_ context.Context, flow domain.FlowType, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.records[key(flow, id)]; ok && !v.Completed {
		v.RetryCount++
	}
	return nil
}

func (r *memVerificationRepo) ReissueCode(_ context.Context, flow domain.FlowType, id, codeHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.records[key(flow, id)]; ok && !v.Completed {
		v.CodeHash = codeHash
		v.ResendCount++
		v.ModifiedAt = now
	}
	return nil
}

func (r *memVerificationRepo) TryComplete(_ context.Context, flow domain.FlowType, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.records[key(flow, id)]
	if !ok || v.Completed {
		return false, nil
	}
	v.Completed = true
	v.ModifiedAt = now
	return true, nil
}

type capturingSender struct {
	mu    sync.Mutex
	sends []string // recipient addresses in order
}

func (c *capturingSender) Send(_ context.Context, to, _, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, to)
	return nil
}

type fixture struct {
	svc    *Service
	repo   *memVerificationRepo
	sender *capturingSender
	codes  *devcode.MemoryStore
	clk    *clock.Frozen
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFrozen(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := newMemVerificationRepo()
	sender := &capturingSender{}
	codes := devcode.NewMemoryStore(clk)
	svc := New(repo, security.NewHasher(4), sender, codes, clk, nil) // min bcrypt cost keeps tests fast
	return &fixture{svc: svc, repo: repo, sender: sender, codes: codes, clk: clk}
}

// start runs Start and returns the record id plus the plain code retrieved
// through the dev code store.
func (f *fixture) start(t *testing.T, flow domain.FlowType, email string) (string, string) {
	t.Helper()
	res, err := f.svc.Start(context.Background(), flow, email)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	code, ok := f.codes.Get(flow, res.ID)
	if !ok {
		t.Fatalf("dev code store has no code for %s", res.ID)
	}
	return res.ID, code
}

func asAPIErr(t *testing.T, err error) *apierr.Error {
	t.Helper()
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected *apierr.Error, got %T: %v", err, err)
	}
	return ae
}

func TestGenerateCode_Format(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code length = %d, want 6", len(code))
		}
		for _, r := range code {
			if r < 'A' || r > 'Z' {
				t.Fatalf("code %q contains %q outside A-Z", code, r)
			}
		}
	}
}

func TestStart_SendsCodeAndReturnsHandle(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Start(context.Background(), domain.FlowLogin, "user@example.com")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.ID == "" {
		t.Fatal("Start returned empty id")
	}
	if res.ValidForSeconds != 300 {
		t.Fatalf("ValidForSeconds = %d, want 300", res.ValidForSeconds)
	}
	if len(f.sender.sends) != 1 || f.sender.sends[0] != "user@example.com" {
		t.Fatalf("sends = %v, want one to user@example.com", f.sender.sends)
	}
}

func TestStart_RejectsInvalidEmail(t *testing.T) {
	f := newFixture(t)
	for _, addr := range []string{"", "not-an-email", "Someone <user@example.com>"} {
		_, err := f.svc.Start(context.Background(), domain.FlowLogin, addr)
		ae := asAPIErr(t, err)
		if ae.Kind != apierr.KindBadRequest || ae.Code != "invalid_email" {
			t.Fatalf("Start(%q) = %+v, want BadRequest invalid_email", addr, ae)
		}
	}
}

func TestStart_ConflictWhileLiveRecordExists(t *testing.T) {
	f := newFixture(t)
	f.start(t, domain.FlowLogin, "user@example.com")

	_, err := f.svc.Start(context.Background(), domain.FlowLogin, "user@example.com")
	ae := asAPIErr(t, err)
	if ae.Kind != apierr.KindConflict {
		t.Fatalf("second Start = %+v, want Conflict", ae)
	}

	// A different flow is not blocked by the login record.
	if _, err := f.svc.Start(context.Background(), domain.FlowSignup, "user@example.com"); err != nil {
		t.Fatalf("Start in other flow: %v", err)
	}
}

func TestStart_RollingDayCap(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < domain.MaxStartsPerDay; i++ {
		f.start(t, domain.FlowLogin, "user@example.com")
		f.clk.Advance(domain.ValidFor + time.Second) // let the record expire
	}

	_, err := f.svc.Start(context.Background(), domain.FlowLogin, "user@example.com")
	ae := asAPIErr(t, err)
	if ae.Kind != apierr.KindTooManyRequests {
		t.Fatalf("fourth Start = %+v, want TooManyRequests", ae)
	}

	// The window rolls: one day after the first start, capacity frees up.
	f.clk.Advance(24 * time.Hour)
	if _, err := f.svc.Start(context.Background(), domain.FlowLogin, "user@example.com"); err != nil {
		t.Fatalf("Start after window rolled: %v", err)
	}
}

func TestComplete_AcceptsCorrectCode(t *testing.T) {
	f := newFixture(t)
	id, code := f.start(t, domain.FlowSignup, "user@example.com")

	f.clk.Advance(42 * time.Second)
	res, err := f.svc.Complete(context.Background(), domain.FlowSignup, id, code)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.Email != "user@example.com" {
		t.Fatalf("Email = %q", res.Email)
	}
	if res.ElapsedSeconds != 42 {
		t.Fatalf("ElapsedSeconds = %d, want 42", res.ElapsedSeconds)
	}
}

func TestComplete_RejectsWrongCode(t *testing.T) {
	f := newFixture(t)
	id, code := f.start(t, domain.FlowLogin, "user@example.com")

	wrong := "AAAAAA"
	if wrong == code {
		wrong = "BBBBBB"
	}
	_, err := f.svc.Complete(context.Background(), domain.FlowLogin, id, wrong)
	ae := asAPIErr(t, err)
	if ae.Kind != apierr.KindBadRequest || !ae.Retryable {
		t.Fatalf("wrong code = %+v, want retryable BadRequest", ae)
	}

	// The correct code still works after one failure.
	if _, err := f.svc.Complete(context.Background(), domain.FlowLogin, id, code); err != nil {
		t.Fatalf("Complete with correct code: %v", err)
	}
}

func TestComplete_LockoutIndependentOfCodeCorrectness(t *testing.T) {
	f := newFixture(t)
	id, code := f.start(t, domain.FlowLogin, "user@example.com")

	wrong := "AAAAAA"
	if wrong == code {
		wrong = "BBBBBB"
	}
	for i := 0; i < domain.MaxAttempts; i++ {
		_, err := f.svc.Complete(context.Background(), domain.FlowLogin, id, wrong)
		ae := asAPIErr(t, err)
		if ae.Kind != apierr.KindBadRequest {
			t.Fatalf("attempt %d = %+v, want BadRequest", i+1, ae)
		}
	}

	// Fourth attempt presents the correct code; the record is locked anyway.
	_, err := f.svc.Complete(context.Background(), domain.FlowLogin, id, code)
	ae := asAPIErr(t, err)
	if ae.Kind != apierr.KindForbidden || ae.Code != "verification_blocked" {
		t.Fatalf("locked Complete = %+v, want Forbidden verification_blocked", ae)
	}
	if !ae.Retryable {
		t.Fatal("blocked outcome must be retryable: the client should request a new code")
	}
}

func TestComplete_ExpiredCode(t *testing.T) {
	f := newFixture(t)
	id, code := f.start(t, domain.FlowConfirmation, "user@example.com")

	f.clk.Advance(domain.ValidFor + time.Second)
	_, err := f.svc.Complete(context.Background(), domain.FlowConfirmation, id, code)
	ae := asAPIErr(t, err)
	if ae.Kind != apierr.KindBadRequest || ae.Code != "verification_expired" {
		t.Fatalf("expired Complete = %+v, want BadRequest verification_expired", ae)
	}
}

func TestComplete_AlreadyCompleted(t *testing.T) {
	f := newFixture(t)
	id, code := f.start(t, domain.FlowLogin, "user@example.com")

	if _, err := f.svc.Complete(context.Background(), domain.FlowLogin, id, code); err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	_, err := f.svc.Complete(context.Background(), domain.FlowLogin, id, code)
	ae := asAPIErr(t, err)
	if ae.Kind != apierr.KindBadRequest || ae.Retryable {
		t.Fatalf("second Complete = %+v, want non-retryable BadRequest", ae)
	}
}

func TestComplete_NotFoundAndFlowScoping(t *testing.T) {
	f := newFixture(t)
	id, code := f.start(t, domain.FlowLogin, "user@example.com")

	_, err := f.svc.Complete(context.Background(), domain.FlowLogin, "no-such-id", code)
	if ae := asAPIErr(t, err); ae.Kind != apierr.KindNotFound {
		t.Fatalf("unknown id = %+v, want NotFound", ae)
	}

	// The same id does not resolve in another flow.
	_, err = f.svc.Complete(context.Background(), domain.FlowSignup, id, code)
	if ae := asAPIErr(t, err); ae.Kind != apierr.KindNotFound {
		t.Fatalf("cross-flow id = %+v, want NotFound", ae)
	}
}

func TestResend_CooldownThenSuccess(t *testing.T) {
	f := newFixture(t)
	id, firstCode := f.start(t, domain.FlowLogin, "user@example.com")

	f.clk.Advance(time.Second)
	_, err := f.svc.Resend(context.Background(), domain.FlowLogin, id)
	ae := asAPIErr(t, err)
	if ae.Kind != apierr.KindBadRequest || ae.Code != "resend_cooldown" {
		t.Fatalf("Resend inside cooldown = %+v, want BadRequest resend_cooldown", ae)
	}

	f.clk.Advance(domain.ResendCooldown)
	res, err := f.svc.Resend(context.Background(), domain.FlowLogin, id)
	if err != nil {
		t.Fatalf("Resend after cooldown: %v", err)
	}
	if res.ValidForSeconds >= 300 {
		t.Fatalf("ValidForSeconds = %d; resend must not extend the window", res.ValidForSeconds)
	}

	v, _ := f.repo.GetByID(context.Background(), domain.FlowLogin, id)
	if v.ResendCount != 1 {
		t.Fatalf("ResendCount = %d, want 1", v.ResendCount)
	}
	newCode, _ := f.codes.Get(domain.FlowLogin, id)
	if newCode == firstCode {
		t.Skip("fresh code happened to collide with the first; nothing to assert")
	}

	// The old code no longer matches.
	_, err = f.svc.Complete(context.Background(), domain.FlowLogin, id, firstCode)
	if ae := asAPIErr(t, err); ae.Code != "invalid_code" {
		t.Fatalf("old code = %+v, want invalid_code", ae)
	}
	if _, err := f.svc.Complete(context.Background(), domain.FlowLogin, id, newCode); err != nil {
		t.Fatalf("Complete with reissued code: %v", err)
	}
}

func TestResend_LimitAndCompletedRecord(t *testing.T) {
	f := newFixture(t)
	id, _ := f.start(t, domain.FlowLogin, "user@example.com")

	for i := 0; i < domain.MaxResends; i++ {
		f.clk.Advance(domain.ResendCooldown + time.Second)
		if _, err := f.svc.Resend(context.Background(), domain.FlowLogin, id); err != nil {
			t.Fatalf("Resend %d: %v", i+1, err)
		}
	}
	f.clk.Advance(domain.ResendCooldown + time.Second)
	_, err := f.svc.Resend(context.Background(), domain.FlowLogin, id)
	if ae := asAPIErr(t, err); ae.Kind != apierr.KindForbidden {
		t.Fatalf("Resend over limit = %+v, want Forbidden", ae)
	}

	// A completed record rejects resends outright.
	id2, code2 := f.start(t, domain.FlowSignup, "other@example.com")
	if _, err := f.svc.Complete(context.Background(), domain.FlowSignup, id2, code2); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	_, err = f.svc.Resend(context.Background(), domain.FlowSignup, id2)
	if ae := asAPIErr(t, err); ae.Code != "verification_already_completed" {
		t.Fatalf("Resend on completed = %+v", ae)
	}
}

func TestCodeMessageAddressing(t *testing.T) {
	f := newFixture(t)
	f.start(t, domain.FlowLogin, "a@example.com")
	f.start(t, domain.FlowSignup, "b@example.com")
	if !strings.Contains(strings.Join(f.sender.sends, ","), "b@example.com") {
		t.Fatalf("sends = %v", f.sender.sends)
	}
}
