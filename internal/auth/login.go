package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"basemini.app/internal/session"
	"basemini.app/internal/siwe"
)

// DefaultNonceTTL bounds how long an issued nonce may wait for its signed message.
const DefaultNonceTTL = 10 * time.Minute

// SessionHandle is the per-request session capability the authenticator needs.
type SessionHandle interface {
	Session() *session.Session
	Save(ctx context.Context) error
	Destroy(ctx context.Context) error
}

// Authenticator drives the challenge / verify / sign-in flow.
type Authenticator struct {
	verifier  *siwe.Verifier
	accounts  AccountStore
	resolver  *RoleResolver
	consumed  Cache[struct{}]
	statement string
	nonceTTL  time.Duration
	now       func() time.Time
	promoted  func(context.Context, Account)
}

// AuthenticatorOption customises an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithStatement sets the human-readable statement placed in prepared messages.
func WithStatement(s string) AuthenticatorOption {
	return func(a *Authenticator) { a.statement = s }
}

// WithNonceTTL overrides DefaultNonceTTL.
func WithNonceTTL(d time.Duration) AuthenticatorOption {
	return func(a *Authenticator) {
		if d > 0 {
			a.nonceTTL = d
		}
	}
}

// WithAuthClock overrides the wall clock.
func WithAuthClock(fn func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) { a.now = fn }
}

// WithConsumedNonces replaces the ledger of spent nonces. Entries must outlive the
// nonce TTL.
func WithConsumedNonces(c Cache[struct{}]) AuthenticatorOption {
	return func(a *Authenticator) { a.consumed = c }
}

// WithPromotionHook registers fn to run after a sign-in promotes the bootstrap
// superadmin.
func WithPromotionHook(fn func(ctx context.Context, acc Account)) AuthenticatorOption {
	return func(a *Authenticator) { a.promoted = fn }
}

// NewAuthenticator wires the sign-in flow.
func NewAuthenticator(verifier *siwe.Verifier, accounts AccountStore, resolver *RoleResolver, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		verifier: verifier,
		accounts: accounts,
		resolver: resolver,
		nonceTTL: DefaultNonceTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.consumed == nil {
		a.consumed = NewTTLCache[struct{}](a.nonceTTL)
	}
	return a
}

// IssueNonce stores a fresh random nonce in the session and returns it. Any earlier
// pending nonce is replaced.
func (a *Authenticator) IssueNonce(ctx context.Context, h SessionHandle) (string, error) {
	nonce, err := newNonce()
	if err != nil {
		return "", err
	}
	h.Session().SetNonce(nonce, a.now())
	if err := h.Save(ctx); err != nil {
		return "", err
	}
	return nonce, nil
}

// PrepareMessage issues a nonce and renders the message the wallet at address should
// sign on chainID.
func (a *Authenticator) PrepareMessage(ctx context.Context, h SessionHandle, address string, chainID int64) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: address", ErrInvalidInput)
	}
	if !a.verifier.ChainAllowed(chainID) {
		return "", fmt.Errorf("%w: %d", siwe.ErrChainNotAllowed, chainID)
	}
	nonce, err := a.IssueNonce(ctx, h)
	if err != nil {
		return "", err
	}
	msg, err := a.verifier.Challenge(common.HexToAddress(address), chainID, nonce, a.statement)
	if err != nil {
		return "", err
	}
	return msg.String(), nil
}

// consumeNonce removes the pending nonce from the session and persists that removal
// before any verification runs, so a nonce is spent whether or not verification passes.
func (a *Authenticator) consumeNonce(ctx context.Context, h SessionHandle) (string, error) {
	nonce, issued := h.Session().TakeNonce()
	replayed := false
	if nonce != "" {
		_, replayed = a.consumed.Get(nonce)
		a.consumed.Set(nonce, struct{}{})
	}
	if err := h.Save(ctx); err != nil {
		return "", err
	}
	switch {
	case nonce == "", replayed:
		return "", ErrNoNonce
	case issued.IsZero(), a.now().Sub(issued) > a.nonceTTL:
		return "", fmt.Errorf("%w: nonce expired", ErrNoNonce)
	}
	return nonce, nil
}

// VerifySIWE checks a signed SIWE message against the session's nonce and, on success,
// signs the session in as the recovered address.
func (a *Authenticator) VerifySIWE(ctx context.Context, h SessionHandle, message, signature string) (Account, error) {
	nonce, err := a.consumeNonce(ctx, h)
	if err != nil {
		return Account{}, err
	}
	res, err := a.verifier.Verify(ctx, message, signature, nonce)
	if err != nil {
		return Account{}, err
	}
	acc, err := a.establish(ctx, res.Address.Hex(), res.ChainID)
	if err != nil {
		return Account{}, err
	}
	h.Session().SignIn(acc.Address, res.ChainID)
	if err := h.Save(ctx); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// FarcasterSignIn is a SIWF submission. Profile fields are display data only.
type FarcasterSignIn struct {
	Message     string
	Signature   string
	Username    string
	DisplayName string
	AvatarURL   string
}

// VerifySIWF checks a Sign-In-With-Farcaster message and signs the session in as the
// fid's custody address.
func (a *Authenticator) VerifySIWF(ctx context.Context, h SessionHandle, in FarcasterSignIn) (Account, error) {
	nonce, err := a.consumeNonce(ctx, h)
	if err != nil {
		return Account{}, err
	}
	res, err := a.verifier.VerifyFarcaster(ctx, in.Message, in.Signature, nonce)
	if err != nil {
		return Account{}, err
	}
	acc, err := a.establish(ctx, res.Address.Hex(), siwe.FarcasterChainID)
	if err != nil {
		return Account{}, err
	}
	profile := Profile{
		Fid:         res.Fid,
		Username:    strings.TrimSpace(in.Username),
		DisplayName: strings.TrimSpace(in.DisplayName),
		AvatarURL:   strings.TrimSpace(in.AvatarURL),
	}
	if err := a.accounts.UpdateProfile(ctx, acc.Address, profile); err != nil {
		return Account{}, err
	}
	acc.Fid = profile.Fid
	acc.Username = profile.Username
	acc.DisplayName = profile.DisplayName
	acc.AvatarURL = profile.AvatarURL

	h.Session().SignInFarcaster(acc.Address, siwe.FarcasterChainID, res.Fid)
	if err := h.Save(ctx); err != nil {
		return Account{}, err
	}
	return acc, nil
}

func (a *Authenticator) establish(ctx context.Context, address string, chainID int64) (Account, error) {
	addr := NormalizeAddress(address)
	acc, err := a.accounts.UpsertAccountByAddress(ctx, addr, chainID)
	if err != nil {
		return Account{}, err
	}
	promoted, err := a.resolver.InitializeSuperAdmin(ctx, addr)
	if err != nil {
		return Account{}, err
	}
	if promoted {
		acc.Role = RoleSuperAdmin
		if a.promoted != nil {
			a.promoted(ctx, acc)
		}
	}
	return acc, nil
}

// AcceptTerms records terms-of-service acceptance on the account and the session.
func (a *Authenticator) AcceptTerms(ctx context.Context, h SessionHandle, version string) error {
	s := h.Session()
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}
	version = strings.TrimSpace(version)
	if version == "" {
		return fmt.Errorf("%w: version", ErrInvalidInput)
	}
	at := a.now()
	if err := a.accounts.AcceptTerms(ctx, s.Address, version, at); err != nil {
		return err
	}
	s.AcceptTerms(version, at)
	return h.Save(ctx)
}

// Logout destroys the session. Logging out without a session is not an error.
func (a *Authenticator) Logout(ctx context.Context, h SessionHandle) error {
	return h.Destroy(ctx)
}

func newNonce() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
