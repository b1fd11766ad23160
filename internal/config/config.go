package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SessionMode selects how the session travels between client and server.
type SessionMode string

const (
	SessionCookie SessionMode = "cookie"
	SessionToken  SessionMode = "token"
)

// Config is the runtime configuration of the API server.
type Config struct {
	Addr  string
	PGDSN string

	Domain string
	URI    string

	SessionSecret  string
	SessionMode    SessionMode
	SessionTTL     time.Duration
	CookieName     string
	CookieSecure   bool
	CookieSameSite http.SameSite

	SuperAdminAddress string
	ChainIDs          []int64

	// EthRPCURLs are JSON-RPC endpoints used for EIP-1271 checks, one per chain.
	// Each node's own chain id decides which messages it serves.
	EthRPCURLs          []string
	OptimismRPCURL      string
	FarcasterIDRegistry string

	RoleCacheTTL time.Duration
	NonceRate    float64
	NonceBurst   int

	AllowedOrigins []string
	Statement      string
	TosVersion     string
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func (osEnv) LookupEnv(key string) (string, bool) { return os.LookupEnv(key) }

// Load reads the process environment.
func Load() (Config, error) {
	return LoadFromEnv(osEnv{})
}

// LoadFromEnv reads MINIAPP_* variables from env.
func LoadFromEnv(env Env) (Config, error) {
	get := func(key string) string { return strings.TrimSpace(env.Getenv("MINIAPP_" + key)) }

	cfg := Config{
		Addr:           ":8080",
		SessionMode:    SessionCookie,
		SessionTTL:     7 * 24 * time.Hour,
		CookieName:     "miniapp_session",
		CookieSecure:   true,
		CookieSameSite: http.SameSiteLaxMode,
		ChainIDs:       []int64{8453, 84532},
		RoleCacheTTL:   60 * time.Second,
		NonceRate:      1,
		NonceBurst:     10,
		Statement:      "Sign in with Ethereum to the app.",
	}

	if raw := get("ADDR"); raw != "" {
		cfg.Addr = raw
	}
	cfg.PGDSN = get("PG_DSN")

	cfg.Domain = get("DOMAIN")
	if cfg.Domain == "" {
		return Config{}, fmt.Errorf("MINIAPP_DOMAIN is required")
	}
	cfg.URI = get("URI")
	if cfg.URI == "" {
		return Config{}, fmt.Errorf("MINIAPP_URI is required")
	}

	cfg.SessionSecret = env.Getenv("MINIAPP_SESSION_SECRET")
	if len(cfg.SessionSecret) < 32 {
		return Config{}, fmt.Errorf("MINIAPP_SESSION_SECRET must be at least 32 characters")
	}

	if raw := get("SESSION_MODE"); raw != "" {
		switch mode := SessionMode(strings.ToLower(raw)); mode {
		case SessionCookie, SessionToken:
			cfg.SessionMode = mode
		default:
			return Config{}, fmt.Errorf("invalid MINIAPP_SESSION_MODE %q", raw)
		}
	}
	if raw := get("SESSION_TTL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid MINIAPP_SESSION_TTL")
		}
		cfg.SessionTTL = d
	}
	if raw := get("COOKIE_NAME"); raw != "" {
		cfg.CookieName = raw
	}
	if raw := get("COOKIE_SECURE"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MINIAPP_COOKIE_SECURE")
		}
		cfg.CookieSecure = b
	}
	if raw := get("COOKIE_SAMESITE"); raw != "" {
		switch strings.ToLower(raw) {
		case "lax":
			cfg.CookieSameSite = http.SameSiteLaxMode
		case "strict":
			cfg.CookieSameSite = http.SameSiteStrictMode
		case "none":
			cfg.CookieSameSite = http.SameSiteNoneMode
		default:
			return Config{}, fmt.Errorf("invalid MINIAPP_COOKIE_SAMESITE %q", raw)
		}
	}
	if cfg.CookieSameSite == http.SameSiteNoneMode && !cfg.CookieSecure {
		return Config{}, fmt.Errorf("MINIAPP_COOKIE_SAMESITE=none requires MINIAPP_COOKIE_SECURE")
	}

	if raw := get("SUPERADMIN_ADDRESS"); raw != "" {
		if !common.IsHexAddress(raw) {
			return Config{}, fmt.Errorf("invalid MINIAPP_SUPERADMIN_ADDRESS")
		}
		cfg.SuperAdminAddress = strings.ToLower(raw)
	}
	if raw, ok := lookup(env, "MINIAPP_CHAIN_IDS"); ok {
		ids, err := parseChainIDs(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.ChainIDs = ids
	}

	cfg.EthRPCURLs = splitList(get("ETH_RPC_URL"))
	cfg.OptimismRPCURL = get("OPTIMISM_RPC_URL")
	cfg.FarcasterIDRegistry = get("FARCASTER_ID_REGISTRY")
	if cfg.FarcasterIDRegistry != "" && !common.IsHexAddress(cfg.FarcasterIDRegistry) {
		return Config{}, fmt.Errorf("invalid MINIAPP_FARCASTER_ID_REGISTRY")
	}

	if raw := get("ROLE_CACHE_TTL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("invalid MINIAPP_ROLE_CACHE_TTL")
		}
		cfg.RoleCacheTTL = d
	}
	if raw := get("NONCE_RATE"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f <= 0 {
			return Config{}, fmt.Errorf("invalid MINIAPP_NONCE_RATE")
		}
		cfg.NonceRate = f
	}
	if raw := get("NONCE_BURST"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MINIAPP_NONCE_BURST")
		}
		cfg.NonceBurst = n
	}

	cfg.AllowedOrigins = splitList(get("ALLOWED_ORIGINS"))
	if raw := get("SIWE_STATEMENT"); raw != "" {
		cfg.Statement = raw
	}
	cfg.TosVersion = get("TOS_VERSION")

	return cfg, nil
}

// lookup distinguishes an unset variable from one set to the empty string.
func lookup(env Env, key string) (string, bool) {
	if l, ok := env.(interface{ LookupEnv(string) (string, bool) }); ok {
		return l.LookupEnv(key)
	}
	v := env.Getenv(key)
	return v, v != ""
}

func parseChainIDs(raw string) ([]int64, error) {
	out := []int64{}
	for _, part := range splitList(raw) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid chain id %q in MINIAPP_CHAIN_IDS", part)
		}
		out = append(out, id)
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
