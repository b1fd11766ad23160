package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// TokenHeader carries the session token in both directions.
	TokenHeader = "X-Session-Token"

	tokenIssuer = "basemini"
)

// TokenStore carries the session as an HS256-signed JWT in a request header, for clients
// that cannot hold cookies (embedded frames with partitioned storage). The token is
// signed, not encrypted.
type TokenStore struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type tokenClaims struct {
	Session Session `json:"session"`
	jwt.RegisteredClaims
}

// NewTokenStore requires a secret of at least MinSecretLength characters.
func NewTokenStore(secret string, ttl time.Duration) (*TokenStore, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenStore{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Load implements Store. The token is read from X-Session-Token or a Bearer Authorization header.
func (t *TokenStore) Load(r *http.Request) (*Session, error) {
	raw := strings.TrimSpace(r.Header.Get(TokenHeader))
	if raw == "" {
		if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			raw = strings.TrimSpace(h[7:])
		}
	}
	if raw == "" {
		return &Session{}, nil
	}
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return &Session{}, nil
	}
	return &claims.Session, nil
}

// Save implements Store by returning a freshly signed token in the response header.
func (t *TokenStore) Save(w http.ResponseWriter, _ *http.Request, s *Session) error {
	now := t.now().UTC()
	claims := tokenClaims{
		Session: *s,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   s.Address,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return err
	}
	w.Header().Set(TokenHeader, signed)
	return nil
}

// Destroy implements Store. The client is told to drop its token.
func (t *TokenStore) Destroy(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set(TokenHeader, "")
	return nil
}
