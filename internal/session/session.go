package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// MinSecretLength is the shortest accepted sealing secret.
const MinSecretLength = 32

// ErrSecretTooShort is returned by store constructors given a weak secret.
var ErrSecretTooShort = errors.New("session: secret must be at least 32 characters")

// AuthMethod records how the principal signed in.
type AuthMethod string

const (
	AuthMethodSIWE      AuthMethod = "siwe"
	AuthMethodFarcaster AuthMethod = "farcaster"
)

// Session is the authenticated-principal state carried by the client. It is never a
// source of truth for roles; the account record is.
type Session struct {
	Address            string     `json:"address,omitempty"`
	ChainID            int64      `json:"chainId,omitempty"`
	IsLoggedIn         bool       `json:"isLoggedIn"`
	Nonce              string     `json:"nonce,omitempty"`
	NonceIssuedAt      *time.Time `json:"nonceIssuedAt,omitempty"`
	Fid                uint64     `json:"fid,omitempty"`
	AuthMethod         AuthMethod `json:"authMethod,omitempty"`
	TosAcceptedVersion string     `json:"tosAcceptedVersion,omitempty"`
	TosAcceptedAt      *time.Time `json:"tosAcceptedAt,omitempty"`
}

// SetNonce records a freshly issued challenge nonce.
func (s *Session) SetNonce(nonce string, at time.Time) {
	at = at.UTC()
	s.Nonce = nonce
	s.NonceIssuedAt = &at
}

// TakeNonce returns the pending nonce and its issue time and clears both.
func (s *Session) TakeNonce() (string, time.Time) {
	nonce := s.Nonce
	var issued time.Time
	if s.NonceIssuedAt != nil {
		issued = *s.NonceIssuedAt
	}
	s.Nonce = ""
	s.NonceIssuedAt = nil
	return nonce, issued
}

// SignIn marks the session as authenticated via SIWE.
func (s *Session) SignIn(address string, chainID int64) {
	s.Address = strings.ToLower(address)
	s.ChainID = chainID
	s.IsLoggedIn = true
	s.Fid = 0
	s.AuthMethod = AuthMethodSIWE
}

// SignInFarcaster marks the session as authenticated via Sign-In-With-Farcaster.
func (s *Session) SignInFarcaster(address string, chainID int64, fid uint64) {
	s.SignIn(address, chainID)
	s.Fid = fid
	s.AuthMethod = AuthMethodFarcaster
}

// AcceptTerms stamps terms-of-service acceptance.
func (s *Session) AcceptTerms(version string, at time.Time) {
	at = at.UTC()
	s.TosAcceptedVersion = version
	s.TosAcceptedAt = &at
}

// Authenticated reports whether the session carries a signed-in address.
func (s *Session) Authenticated() bool {
	return s != nil && s.IsLoggedIn && s.Address != ""
}

// Store loads and persists sessions for a request. Load never fails on missing or
// tampered input; it yields an empty session instead.
type Store interface {
	Load(r *http.Request) (*Session, error)
	Save(w http.ResponseWriter, r *http.Request, s *Session) error
	Destroy(w http.ResponseWriter, r *http.Request) error
}

// Manager opens request-bound session handles.
type Manager struct {
	store Store
}

// NewManager wraps store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Open loads the session for r. Handles must be saved before the response body is written.
func (m *Manager) Open(w http.ResponseWriter, r *http.Request) (*Handle, error) {
	s, err := m.store.Load(r)
	if err != nil {
		return nil, err
	}
	return &Handle{store: m.store, w: w, r: r, data: s}, nil
}

// Handle is a mutable view of one request's session.
type Handle struct {
	store Store
	w     http.ResponseWriter
	r     *http.Request
	data  *Session
}

// Session returns the mutable session data.
func (h *Handle) Session() *Session { return h.data }

// Save re-seals the session onto the response.
func (h *Handle) Save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.store.Save(h.w, h.r, h.data)
}

// Destroy clears the session on the client and resets the in-memory view.
func (h *Handle) Destroy(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.data = &Session{}
	return h.store.Destroy(h.w, h.r)
}
