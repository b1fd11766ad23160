package session

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	DefaultCookieName = "miniapp_session"
	DefaultTTL        = 7 * 24 * time.Hour

	cookieKeyInfo = "basemini session cookie v1"
)

// CookieOptions controls the attributes of the session cookie.
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	TTL      time.Duration
}

// CookieStore keeps the session in an XChaCha20-Poly1305 sealed cookie. Integrity is
// established by the seal alone; no server-side table is consulted.
type CookieStore struct {
	aead cipher.AEAD
	opts CookieOptions
	now  func() time.Time
}

type sealedEnvelope struct {
	Session Session `json:"s"`
	Expires int64   `json:"exp"`
}

// NewCookieStore derives the sealing key from secret, which must be at least
// MinSecretLength characters.
func NewCookieStore(secret string, opts CookieOptions) (*CookieStore, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(cookieKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("session: derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("session: init cipher: %w", err)
	}
	if opts.Name == "" {
		opts.Name = DefaultCookieName
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}
	return &CookieStore{aead: aead, opts: opts, now: time.Now}, nil
}

// Load implements Store.
func (c *CookieStore) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(c.opts.Name)
	if err != nil || cookie.Value == "" {
		return &Session{}, nil
	}
	s, err := c.open(cookie.Value)
	if err != nil {
		return &Session{}, nil
	}
	return s, nil
}

// Save implements Store.
func (c *CookieStore) Save(w http.ResponseWriter, _ *http.Request, s *Session) error {
	expires := c.now().Add(c.opts.TTL)
	value, err := c.seal(s, expires)
	if err != nil {
		return err
	}
	http.SetCookie(w, c.cookie(value, expires, int(c.opts.TTL/time.Second)))
	return nil
}

// Destroy implements Store.
func (c *CookieStore) Destroy(w http.ResponseWriter, _ *http.Request) error {
	http.SetCookie(w, c.cookie("", time.Unix(0, 0), -1))
	return nil
}

func (c *CookieStore) cookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.opts.Name,
		Value:    value,
		Path:     c.opts.Path,
		Domain:   c.opts.Domain,
		Expires:  expires,
		MaxAge:   maxAge,
		Secure:   c.opts.Secure,
		HttpOnly: true,
		SameSite: c.opts.SameSite,
	}
}

func (c *CookieStore) seal(s *Session, expires time.Time) (string, error) {
	plaintext, err := json.Marshal(sealedEnvelope{Session: *s, Expires: expires.Unix()})
	if err != nil {
		return "", fmt.Errorf("session: encode: %w", err)
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("session: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, []byte(c.opts.Name))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *CookieStore) open(value string) (*Session, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}
	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return nil, errors.New("session: sealed value too short")
	}
	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, []byte(c.opts.Name))
	if err != nil {
		return nil, err
	}
	var env sealedEnvelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return nil, err
	}
	if c.now().Unix() >= env.Expires {
		return nil, errors.New("session: expired")
	}
	return &env.Session, nil
}
