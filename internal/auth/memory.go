package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"basemini.app/internal/ids"
)

// MemoryStore implements AccountStore and GrantStore in process.
// Used by tests and by cmd/api when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account // lower-cased address -> account
	byID     map[string]string   // id -> address
	grants   map[string]map[Permission]PermissionGrant
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		byID:     make(map[string]string),
		grants:   make(map[string]map[Permission]PermissionGrant),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) UpsertAccountByAddress(ctx context.Context, address string, chainID int64) (Account, error) {
	addr := NormalizeAddress(address)
	if addr == "" {
		return Account{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	acc, ok := s.accounts[addr]
	if !ok {
		acc = &Account{
			ID:        ids.NewAt(now),
			Address:   addr,
			Role:      RoleUser,
			CreatedAt: now,
		}
		s.accounts[addr] = acc
		s.byID[acc.ID] = addr
	}
	acc.ChainID = chainID
	acc.LastLoginAt = &now
	acc.UpdatedAt = now
	return *acc, nil
}

func (s *MemoryStore) GetAccountByAddress(ctx context.Context, address string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[NormalizeAddress(address)]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *acc, nil
}

func (s *MemoryStore) GetAccountByID(ctx context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.byID[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *s.accounts[addr], nil
}

func (s *MemoryStore) UpdateRole(ctx context.Context, address string, role Role) error {
	return s.mutate(address, func(acc *Account) { acc.Role = role })
}

func (s *MemoryStore) PromoteRole(ctx context.Context, address string, role Role) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[NormalizeAddress(address)]
	if !ok {
		return false, ErrNotFound
	}
	if acc.Role == role {
		return false, nil
	}
	acc.Role = role
	acc.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, address string, p Profile) error {
	return s.mutate(address, func(acc *Account) {
		acc.Fid = p.Fid
		acc.Username = p.Username
		acc.DisplayName = p.DisplayName
		acc.AvatarURL = p.AvatarURL
	})
}

func (s *MemoryStore) AcceptTerms(ctx context.Context, address, version string, at time.Time) error {
	return s.mutate(address, func(acc *Account) {
		acc.TosAcceptedVersion = version
		acc.TosAcceptedAt = &at
	})
}

func (s *MemoryStore) mutate(address string, fn func(*Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[NormalizeAddress(address)]
	if !ok {
		return ErrNotFound
	}
	fn(acc)
	acc.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) ListAccounts(ctx context.Context, f AccountFilter) ([]Account, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		if f.Role != "" && acc.Role != f.Role {
			continue
		}
		if f.After != "" && acc.ID <= f.After {
			continue
		}
		out = append(out, *acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpsertGrant(ctx context.Context, g PermissionGrant) (PermissionGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[g.AccountID]; !ok {
		return PermissionGrant{}, ErrNotFound
	}
	now := s.now()
	perms, ok := s.grants[g.AccountID]
	if !ok {
		perms = make(map[Permission]PermissionGrant)
		s.grants[g.AccountID] = perms
	}
	if existing, ok := perms[g.Permission]; ok {
		existing.GrantedBy = g.GrantedBy
		existing.Signature = g.Signature
		existing.UpdatedAt = now
		perms[g.Permission] = existing
		return existing, nil
	}
	g.ID = ids.NewAt(now)
	g.CreatedAt = now
	g.UpdatedAt = now
	perms[g.Permission] = g
	return g, nil
}

func (s *MemoryStore) DeleteGrant(ctx context.Context, accountID string, p Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants[accountID], p)
	return nil
}

func (s *MemoryStore) ListGrants(ctx context.Context, accountID string) ([]PermissionGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PermissionGrant, 0, len(s.grants[accountID]))
	for _, g := range s.grants[accountID] {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Permission < out[j].Permission })
	return out, nil
}
