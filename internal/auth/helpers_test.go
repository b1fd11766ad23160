package auth

import (
	"context"
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"basemini.app/internal/session"
	"basemini.app/internal/siwe"
)

const (
	testDomain = "miniapp.example.com"
	testURI    = "https://miniapp.example.com"
)

type testHandle struct {
	s         *session.Session
	saved     []session.Session
	saveErr   error
	destroyed bool
}

func newHandle() *testHandle { return &testHandle{s: &session.Session{}} }

func (h *testHandle) Session() *session.Session { return h.s }

func (h *testHandle) Save(ctx context.Context) error {
	if h.saveErr != nil {
		return h.saveErr
	}
	h.saved = append(h.saved, *h.s)
	return nil
}

func (h *testHandle) Destroy(ctx context.Context) error {
	h.s = &session.Session{}
	h.destroyed = true
	return nil
}

type fidTable map[common.Address]uint64

func (f fidTable) FidOf(ctx context.Context, owner common.Address) (uint64, error) {
	return f[owner], nil
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func sign(t *testing.T, key *ecdsa.PrivateKey, raw string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(raw)), key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func newVerifier(t *testing.T, opts ...siwe.Option) *siwe.Verifier {
	t.Helper()
	opts = append([]siwe.Option{siwe.WithAllowedChains(8453, 84532, siwe.FarcasterChainID)}, opts...)
	v, err := siwe.NewVerifier(testDomain, testURI, opts...)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

type fixture struct {
	store    *MemoryStore
	resolver *RoleResolver
	grants   *GrantService
	auth     *Authenticator
}

func newFixture(t *testing.T, superAdmin string, opts ...siwe.Option) *fixture {
	t.Helper()
	store := NewMemoryStore()
	resolver := NewRoleResolver(store, store, WithSuperAdmin(superAdmin))
	return &fixture{
		store:    store,
		resolver: resolver,
		grants:   NewGrantService(store, store, resolver),
		auth:     NewAuthenticator(newVerifier(t, opts...), store, resolver, WithStatement("Sign in to the mini app")),
	}
}

func (f *fixture) account(t *testing.T, address string, role Role) Account {
	t.Helper()
	ctx := context.Background()
	acc, err := f.store.UpsertAccountByAddress(ctx, address, 8453)
	if err != nil {
		t.Fatalf("UpsertAccountByAddress: %v", err)
	}
	if role != RoleUser {
		if err := f.resolver.UpdateUserRole(ctx, address, role); err != nil {
			t.Fatalf("UpdateUserRole: %v", err)
		}
		acc.Role = role
	}
	return acc
}
