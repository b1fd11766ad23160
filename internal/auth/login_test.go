package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"basemini.app/internal/session"
	"basemini.app/internal/siwe"
)

func TestIssueNonceReplacesPending(t *testing.T) {
	f := newFixture(t, "")
	h := newHandle()
	first, err := f.auth.IssueNonce(context.Background(), h)
	if err != nil {
		t.Fatalf("IssueNonce: %v", err)
	}
	second, err := f.auth.IssueNonce(context.Background(), h)
	if err != nil {
		t.Fatalf("IssueNonce: %v", err)
	}
	if first == second || len(second) != 32 {
		t.Fatalf("expected distinct 32-char nonces, got %q %q", first, second)
	}
	if h.s.Nonce != second || h.s.NonceIssuedAt == nil || len(h.saved) != 2 {
		t.Fatalf("session not updated: %+v", h.s)
	}
}

func TestVerifySIWEFlow(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	key, addr := newKey(t)
	h := newHandle()

	msg, err := f.auth.PrepareMessage(ctx, h, addr.Hex(), 84532)
	if err != nil {
		t.Fatalf("PrepareMessage: %v", err)
	}
	if !strings.Contains(msg, h.s.Nonce) || !strings.Contains(msg, "Sign in to the mini app") {
		t.Fatalf("prepared message missing nonce or statement:\n%s", msg)
	}

	acc, err := f.auth.VerifySIWE(ctx, h, msg, sign(t, key, msg))
	if err != nil {
		t.Fatalf("VerifySIWE: %v", err)
	}
	want := strings.ToLower(addr.Hex())
	if acc.Address != want || acc.Role != RoleUser || acc.ChainID != 84532 {
		t.Fatalf("unexpected account: %+v", acc)
	}
	if !h.s.Authenticated() || h.s.Address != want || h.s.ChainID != 84532 || h.s.AuthMethod != session.AuthMethodSIWE {
		t.Fatalf("session not signed in: %+v", h.s)
	}
	if h.s.Nonce != "" {
		t.Fatalf("nonce left in session")
	}

	if _, err := f.auth.VerifySIWE(ctx, h, msg, sign(t, key, msg)); !errors.Is(err, ErrNoNonce) {
		t.Fatalf("replay: expected ErrNoNonce, got %v", err)
	}
}

func TestVerifySIWEWithoutNonce(t *testing.T) {
	f := newFixture(t, "")
	key, addr := newKey(t)
	v := newVerifier(t)
	m, err := v.Challenge(addr, 8453, "abcdef0123456789", "")
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	raw := m.String()
	if _, err := f.auth.VerifySIWE(context.Background(), newHandle(), raw, sign(t, key, raw)); !errors.Is(err, ErrNoNonce) {
		t.Fatalf("expected ErrNoNonce, got %v", err)
	}
}

func TestFailedVerificationConsumesNonce(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	key, addr := newKey(t)
	h := newHandle()

	msg, err := f.auth.PrepareMessage(ctx, h, addr.Hex(), 8453)
	if err != nil {
		t.Fatalf("PrepareMessage: %v", err)
	}
	bad := strings.Replace(msg, testDomain, "evil.example.com", 1)
	if _, err := f.auth.VerifySIWE(ctx, h, bad, sign(t, key, bad)); !errors.Is(err, siwe.ErrDomainMismatch) {
		t.Fatalf("expected ErrDomainMismatch, got %v", err)
	}
	last := h.saved[len(h.saved)-1]
	if last.Nonce != "" {
		t.Fatalf("nonce removal was not persisted before verification")
	}
	if _, err := f.auth.VerifySIWE(ctx, h, msg, sign(t, key, msg)); !errors.Is(err, ErrNoNonce) {
		t.Fatalf("retry after failure: expected ErrNoNonce, got %v", err)
	}
}

func TestStaleSessionCopyCannotReuseNonce(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	key, addr := newKey(t)
	h := newHandle()

	msg, err := f.auth.PrepareMessage(ctx, h, addr.Hex(), 8453)
	if err != nil {
		t.Fatalf("PrepareMessage: %v", err)
	}
	snapshot := *h.s
	sig := sign(t, key, msg)
	if _, err := f.auth.VerifySIWE(ctx, h, msg, sig); err != nil {
		t.Fatalf("VerifySIWE: %v", err)
	}

	replay := &testHandle{s: &snapshot}
	if _, err := f.auth.VerifySIWE(ctx, replay, msg, sig); !errors.Is(err, ErrNoNonce) {
		t.Fatalf("replayed session copy: expected ErrNoNonce, got %v", err)
	}
	if replay.s.Authenticated() {
		t.Fatalf("replayed session must not be signed in")
	}
}

func TestExpiredNonceRejected(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	key, addr := newKey(t)
	h := newHandle()

	msg, err := f.auth.PrepareMessage(ctx, h, addr.Hex(), 8453)
	if err != nil {
		t.Fatalf("PrepareMessage: %v", err)
	}
	old := time.Now().UTC().Add(-DefaultNonceTTL - time.Minute)
	h.s.NonceIssuedAt = &old
	if _, err := f.auth.VerifySIWE(ctx, h, msg, sign(t, key, msg)); !errors.Is(err, ErrNoNonce) {
		t.Fatalf("expected ErrNoNonce, got %v", err)
	}
}

func TestSaveFailureAbortsVerification(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	key, addr := newKey(t)
	h := newHandle()
	msg, err := f.auth.PrepareMessage(ctx, h, addr.Hex(), 8453)
	if err != nil {
		t.Fatalf("PrepareMessage: %v", err)
	}
	h.saveErr = errors.New("write failed")
	if _, err := f.auth.VerifySIWE(ctx, h, msg, sign(t, key, msg)); err == nil || errors.Is(err, ErrNoNonce) {
		t.Fatalf("expected save error, got %v", err)
	}
	if _, err := f.store.GetAccountByAddress(ctx, addr.Hex()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("account must not be created when the nonce could not be spent")
	}
}

func TestWrongSignerRejected(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	_, addr := newKey(t)
	other, _ := newKey(t)
	h := newHandle()
	msg, err := f.auth.PrepareMessage(ctx, h, addr.Hex(), 8453)
	if err != nil {
		t.Fatalf("PrepareMessage: %v", err)
	}
	if _, err := f.auth.VerifySIWE(ctx, h, msg, sign(t, other, msg)); !errors.Is(err, siwe.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
	if h.s.Authenticated() {
		t.Fatalf("session signed in after failed verification")
	}
}

func TestPrepareMessageValidatesInput(t *testing.T) {
	f := newFixture(t, "")
	h := newHandle()
	if _, err := f.auth.PrepareMessage(context.Background(), h, "not-an-address", 8453); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.auth.PrepareMessage(context.Background(), h, addrAlice, 1); !errors.Is(err, siwe.ErrChainNotAllowed) {
		t.Fatalf("expected ErrChainNotAllowed, got %v", err)
	}
	if h.s.Nonce != "" {
		t.Fatalf("rejected prepare must not issue a nonce")
	}
}

func TestSuperAdminBootstrapOnSignIn(t *testing.T) {
	key, addr := newKey(t)
	f := newFixture(t, addr.Hex())
	ctx := context.Background()
	hooks := 0
	f.auth = NewAuthenticator(newVerifier(t), f.store, f.resolver, WithPromotionHook(func(ctx context.Context, acc Account) {
		if acc.Role != RoleSuperAdmin {
			t.Errorf("hook saw role %s", acc.Role)
		}
		hooks++
	}))

	for i := 0; i < 2; i++ {
		h := newHandle()
		msg, err := f.auth.PrepareMessage(ctx, h, addr.Hex(), 8453)
		if err != nil {
			t.Fatalf("PrepareMessage: %v", err)
		}
		acc, err := f.auth.VerifySIWE(ctx, h, msg, sign(t, key, msg))
		if err != nil {
			t.Fatalf("VerifySIWE: %v", err)
		}
		if acc.Role != RoleSuperAdmin {
			t.Fatalf("sign-in %d: expected superadmin, got %s", i, acc.Role)
		}
	}
	if ok, _ := f.resolver.IsSuperAdmin(ctx, addr.Hex()); !ok {
		t.Fatalf("resolver does not see bootstrap promotion")
	}
	if hooks != 1 {
		t.Fatalf("expected one promotion hook call, got %d", hooks)
	}
}

func TestVerifySIWF(t *testing.T) {
	key, addr := newKey(t)
	f := newFixture(t, "", siwe.WithFidResolver(fidTable{addr: 4242}))
	ctx := context.Background()
	h := newHandle()

	nonce, err := f.auth.IssueNonce(ctx, h)
	if err != nil {
		t.Fatalf("IssueNonce: %v", err)
	}
	m, err := newVerifier(t).Challenge(addr, siwe.FarcasterChainID, nonce, "Farcaster Auth")
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	m.Resources = []string{"farcaster://fid/4242"}
	raw := m.String()

	acc, err := f.auth.VerifySIWF(ctx, h, FarcasterSignIn{
		Message:     raw,
		Signature:   sign(t, key, raw),
		Username:    "alice",
		DisplayName: "Alice",
		AvatarURL:   "https://example.com/a.png",
	})
	if err != nil {
		t.Fatalf("VerifySIWF: %v", err)
	}
	if acc.Fid != 4242 || acc.Username != "alice" || acc.ChainID != siwe.FarcasterChainID {
		t.Fatalf("unexpected account: %+v", acc)
	}
	if h.s.Fid != 4242 || h.s.AuthMethod != session.AuthMethodFarcaster || h.s.Address != strings.ToLower(addr.Hex()) {
		t.Fatalf("unexpected session: %+v", h.s)
	}
	stored, err := f.store.GetAccountByAddress(ctx, addr.Hex())
	if err != nil || stored.DisplayName != "Alice" {
		t.Fatalf("profile not stored: %+v %v", stored, err)
	}
}

func TestVerifySIWFRejectsForeignFid(t *testing.T) {
	key, addr := newKey(t)
	f := newFixture(t, "", siwe.WithFidResolver(fidTable{addr: 7}))
	ctx := context.Background()
	h := newHandle()
	nonce, err := f.auth.IssueNonce(ctx, h)
	if err != nil {
		t.Fatalf("IssueNonce: %v", err)
	}
	m, err := newVerifier(t).Challenge(addr, siwe.FarcasterChainID, nonce, "")
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	m.Resources = []string{"farcaster://fid/8"}
	raw := m.String()
	if _, err := f.auth.VerifySIWF(ctx, h, FarcasterSignIn{Message: raw, Signature: sign(t, key, raw), Username: "someone-else"}); !errors.Is(err, siwe.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
	if _, err := f.store.GetAccountByAddress(ctx, addr.Hex()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no account should be created")
	}
}

func TestAcceptTermsAndLogout(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	h := newHandle()
	if err := f.auth.AcceptTerms(ctx, h, "2026-01"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}

	key, _ := crypto.GenerateKey()
	addr := crypto.PubkeyToAddress(key.PublicKey)
	msg, err := f.auth.PrepareMessage(ctx, h, addr.Hex(), 8453)
	if err != nil {
		t.Fatalf("PrepareMessage: %v", err)
	}
	if _, err := f.auth.VerifySIWE(ctx, h, msg, sign(t, key, msg)); err != nil {
		t.Fatalf("VerifySIWE: %v", err)
	}
	if err := f.auth.AcceptTerms(ctx, h, " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := f.auth.AcceptTerms(ctx, h, "2026-01"); err != nil {
		t.Fatalf("AcceptTerms: %v", err)
	}
	acc, _ := f.store.GetAccountByAddress(ctx, addr.Hex())
	if acc.TosAcceptedVersion != "2026-01" || h.s.TosAcceptedVersion != "2026-01" {
		t.Fatalf("terms not recorded: %+v %+v", acc, h.s)
	}

	if err := f.auth.Logout(ctx, h); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if !h.destroyed || h.s.Authenticated() {
		t.Fatalf("session not destroyed")
	}
}
