package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"basemini.app/internal/auth"
	"basemini.app/internal/ids"
)

const accountColumns = `id, address, role, chain_id, fid, username, display_name, avatar_url,
	tos_accepted_version, tos_accepted_at, last_login_at, created_at, updated_at`

func scanAccount(row scanner) (auth.Account, error) {
	var (
		acc                            auth.Account
		role                           string
		fid                            sql.NullInt64
		username, display, avatar, tos sql.NullString
		tosAt, lastLogin               sql.NullTime
	)
	if err := row.Scan(&acc.ID, &acc.Address, &role, &acc.ChainID, &fid, &username, &display, &avatar,
		&tos, &tosAt, &lastLogin, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		return auth.Account{}, err
	}
	acc.Role = auth.Role(role)
	if fid.Valid && fid.Int64 > 0 {
		acc.Fid = uint64(fid.Int64)
	}
	acc.Username = username.String
	acc.DisplayName = display.String
	acc.AvatarURL = avatar.String
	acc.TosAcceptedVersion = tos.String
	if tosAt.Valid {
		t := tosAt.Time.UTC()
		acc.TosAcceptedAt = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		acc.LastLoginAt = &t
	}
	return acc, nil
}

func (s *Store) UpsertAccountByAddress(ctx context.Context, address string, chainID int64) (auth.Account, error) {
	if s.db == nil {
		return auth.Account{}, errNoDB
	}
	addr := auth.NormalizeAddress(address)
	if addr == "" {
		return auth.Account{}, auth.ErrInvalidInput
	}
	now := s.now()
	row := s.db.QueryRowContext(ctx, `
		insert into accounts (id, address, chain_id, last_login_at, created_at, updated_at)
		values ($1, $2, $3, $4, $4, $4)
		on conflict (address) do update
		set chain_id = excluded.chain_id,
		    last_login_at = excluded.last_login_at,
		    updated_at = excluded.updated_at
		returning `+accountColumns, ids.NewAt(now), addr, chainID, now)
	acc, err := scanAccount(row)
	if err != nil {
		return auth.Account{}, fmt.Errorf("upsert account: %w", err)
	}
	return acc, nil
}

func (s *Store) GetAccountByAddress(ctx context.Context, address string) (auth.Account, error) {
	return s.getAccount(ctx, `address = $1`, auth.NormalizeAddress(address))
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (auth.Account, error) {
	return s.getAccount(ctx, `id = $1`, strings.TrimSpace(id))
}

func (s *Store) getAccount(ctx context.Context, where string, arg any) (auth.Account, error) {
	if s.db == nil {
		return auth.Account{}, errNoDB
	}
	acc, err := scanAccount(s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Account{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Account{}, err
	}
	return acc, nil
}

func (s *Store) UpdateRole(ctx context.Context, address string, role auth.Role) error {
	return s.updateAccount(ctx, address, `role = $2`, string(role))
}

// PromoteRole relies on the conditional update so concurrent callers see exactly one
// affected row.
func (s *Store) PromoteRole(ctx context.Context, address string, role auth.Role) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	addr := auth.NormalizeAddress(address)
	res, err := s.db.ExecContext(ctx,
		`update accounts set role = $2, updated_at = now() where address = $1 and role <> $2`, addr, string(role))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetAccountByAddress(ctx, addr); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) UpdateProfile(ctx context.Context, address string, p auth.Profile) error {
	var fid sql.NullInt64
	if p.Fid > 0 {
		fid = sql.NullInt64{Int64: int64(p.Fid), Valid: true}
	}
	return s.updateAccount(ctx, address, `fid = $2, username = $3, display_name = $4, avatar_url = $5`,
		fid, nullIfEmpty(p.Username), nullIfEmpty(p.DisplayName), nullIfEmpty(p.AvatarURL))
}

func (s *Store) AcceptTerms(ctx context.Context, address, version string, at time.Time) error {
	return s.updateAccount(ctx, address, `tos_accepted_version = $2, tos_accepted_at = $3`, version, at.UTC())
}

func (s *Store) updateAccount(ctx context.Context, address, set string, args ...any) error {
	if s.db == nil {
		return errNoDB
	}
	params := append([]any{auth.NormalizeAddress(address)}, args...)
	res, err := s.db.ExecContext(ctx, `update accounts set `+set+`, updated_at = now() where address = $1`, params...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, f auth.AccountFilter) ([]auth.Account, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var (
		clauses []string
		args    []any
	)
	if f.Role != "" {
		args = append(args, string(f.Role))
		clauses = append(clauses, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.After != "" {
		args = append(args, f.After)
		clauses = append(clauses, fmt.Sprintf("id > $%d", len(args)))
	}
	query := `select ` + accountColumns + ` from accounts`
	if len(clauses) > 0 {
		query += ` where ` + strings.Join(clauses, " and ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` order by id limit $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []auth.Account{}
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}
