package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
)

const (
	addrAlice = "0x1111111111111111111111111111111111111111"
	addrBob   = "0x2222222222222222222222222222222222222222"
	addrCarol = "0x3333333333333333333333333333333333333333"
	addrRoot  = "0xAbCdEf0000000000000000000000000000000001"
)

type countingStore struct {
	*MemoryStore
	lookups int
	fail    error
}

func (c *countingStore) GetAccountByAddress(ctx context.Context, address string) (Account, error) {
	c.lookups++
	if c.fail != nil {
		return Account{}, c.fail
	}
	return c.MemoryStore.GetAccountByAddress(ctx, address)
}

func TestGetUserRoleDefaultsToUser(t *testing.T) {
	store := NewMemoryStore()
	r := NewRoleResolver(store, store)
	role, err := r.GetUserRole(context.Background(), addrAlice)
	if err != nil {
		t.Fatalf("GetUserRole: %v", err)
	}
	if role != RoleUser {
		t.Fatalf("expected user, got %s", role)
	}
	admin, err := r.IsAdmin(context.Background(), addrAlice)
	if err != nil || admin {
		t.Fatalf("unknown address must not be admin: %v %v", admin, err)
	}
}

func TestGetUserRoleIsCaseInsensitive(t *testing.T) {
	f := newFixture(t, "")
	f.account(t, addrRoot, RoleAdmin)

	for _, addr := range []string{addrRoot, "0xabcdef0000000000000000000000000000000001", "0XABCDEF0000000000000000000000000000000001"} {
		ok, err := f.resolver.IsAdmin(context.Background(), addr)
		if err != nil || !ok {
			t.Fatalf("%s: expected admin, got %v %v", addr, ok, err)
		}
	}
}

func TestGetUserRoleCachesAndPropagatesStoreErrors(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	r := NewRoleResolver(store, store)
	ctx := context.Background()

	store.fail = errors.New("db down")
	if _, err := r.GetUserRole(ctx, addrAlice); err == nil {
		t.Fatalf("expected store error")
	}
	store.fail = nil
	for i := 0; i < 3; i++ {
		if _, err := r.GetUserRole(ctx, addrAlice); err != nil {
			t.Fatalf("GetUserRole: %v", err)
		}
	}
	if store.lookups != 2 {
		t.Fatalf("expected one failed and one cached lookup, got %d", store.lookups)
	}
}

func TestUpdateUserRoleInvalidatesCache(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	f.account(t, addrAlice, RoleUser)

	if ok, _ := f.resolver.IsAdmin(ctx, addrAlice); ok {
		t.Fatalf("expected user before promotion")
	}
	if err := f.resolver.UpdateUserRole(ctx, addrAlice, RoleAdmin); err != nil {
		t.Fatalf("UpdateUserRole: %v", err)
	}
	if ok, _ := f.resolver.IsAdmin(ctx, addrAlice); !ok {
		t.Fatalf("promotion not visible on next read")
	}
	if err := f.resolver.UpdateUserRole(ctx, addrAlice, RoleUser); err != nil {
		t.Fatalf("UpdateUserRole: %v", err)
	}
	if ok, _ := f.resolver.IsAdmin(ctx, addrAlice); ok {
		t.Fatalf("demotion not visible on next read")
	}
}

func TestUpdateUserRoleRejectsUnknownRole(t *testing.T) {
	f := newFixture(t, "")
	f.account(t, addrAlice, RoleUser)
	if err := f.resolver.UpdateUserRole(context.Background(), addrAlice, Role("owner")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestInitializeSuperAdmin(t *testing.T) {
	f := newFixture(t, addrRoot)
	ctx := context.Background()
	f.account(t, addrRoot, RoleUser)
	f.account(t, addrAlice, RoleUser)

	promoted, err := f.resolver.InitializeSuperAdmin(ctx, addrAlice)
	if err != nil || promoted {
		t.Fatalf("non-configured address promoted: %v %v", promoted, err)
	}
	promoted, err = f.resolver.InitializeSuperAdmin(ctx, "0xabcdef0000000000000000000000000000000001")
	if err != nil || !promoted {
		t.Fatalf("expected promotion: %v %v", promoted, err)
	}
	promoted, err = f.resolver.InitializeSuperAdmin(ctx, addrRoot)
	if err != nil || promoted {
		t.Fatalf("second bootstrap must be a no-op: %v %v", promoted, err)
	}
	if ok, _ := f.resolver.IsSuperAdmin(ctx, addrRoot); !ok {
		t.Fatalf("expected superadmin")
	}
}

func TestInitializeSuperAdminConcurrentLogins(t *testing.T) {
	f := newFixture(t, addrRoot)
	f.account(t, addrRoot, RoleUser)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		promoted int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.resolver.InitializeSuperAdmin(context.Background(), addrRoot)
			if err != nil {
				t.Errorf("InitializeSuperAdmin: %v", err)
				return
			}
			if ok {
				mu.Lock()
				promoted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if promoted != 1 {
		t.Fatalf("expected exactly one promotion, got %d", promoted)
	}
}

func TestGetAdminPermissions(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	root := f.account(t, addrRoot, RoleSuperAdmin)
	admin := f.account(t, addrAlice, RoleAdmin)
	f.account(t, addrBob, RoleUser)

	if _, err := f.grants.GrantPermission(ctx, admin.ID, PermViewUsers, root.ID, ""); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}

	access, err := f.resolver.GetAdminPermissions(ctx, addrRoot)
	if err != nil {
		t.Fatalf("GetAdminPermissions: %v", err)
	}
	if access.Role != RoleSuperAdmin || len(access.Permissions) != len(AllPermissions()) {
		t.Fatalf("superadmin must hold every permission: %+v", access)
	}

	access, err = f.resolver.GetAdminPermissions(ctx, addrAlice)
	if err != nil {
		t.Fatalf("GetAdminPermissions: %v", err)
	}
	if access.Role != RoleAdmin || len(access.Permissions) != 1 || access.Permissions[0] != PermViewUsers {
		t.Fatalf("unexpected admin access: %+v", access)
	}

	access, err = f.resolver.GetAdminPermissions(ctx, addrBob)
	if err != nil {
		t.Fatalf("GetAdminPermissions: %v", err)
	}
	if access.Role != RoleUser || access.Permissions == nil || len(access.Permissions) != 0 {
		t.Fatalf("user must have an empty permission set: %+v", access)
	}
}

func TestSuperAdminPermissionsSkipGrantStore(t *testing.T) {
	store := NewMemoryStore()
	grants := &failingGrants{}
	r := NewRoleResolver(store, grants)
	ctx := context.Background()
	if _, err := store.UpsertAccountByAddress(ctx, addrRoot, 1); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := r.UpdateUserRole(ctx, addrRoot, RoleSuperAdmin); err != nil {
		t.Fatalf("UpdateUserRole: %v", err)
	}
	if _, err := r.GetAdminPermissions(ctx, addrRoot); err != nil {
		t.Fatalf("GetAdminPermissions: %v", err)
	}
	if grants.calls != 0 {
		t.Fatalf("grant store consulted for superadmin")
	}
}

type failingGrants struct{ calls int }

func (g *failingGrants) UpsertGrant(ctx context.Context, grant PermissionGrant) (PermissionGrant, error) {
	g.calls++
	return PermissionGrant{}, errors.New("unexpected")
}

func (g *failingGrants) DeleteGrant(ctx context.Context, accountID string, p Permission) error {
	g.calls++
	return errors.New("unexpected")
}

func (g *failingGrants) ListGrants(ctx context.Context, accountID string) ([]PermissionGrant, error) {
	g.calls++
	return nil, errors.New("unexpected")
}
