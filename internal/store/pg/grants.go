package pg

import (
	"context"
	"database/sql"

	"basemini.app/internal/auth"
	"basemini.app/internal/ids"
)

func scanGrant(row scanner) (auth.PermissionGrant, error) {
	var (
		g    auth.PermissionGrant
		perm string
		sig  sql.NullString
	)
	if err := row.Scan(&g.ID, &g.AccountID, &perm, &g.GrantedBy, &sig, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return auth.PermissionGrant{}, err
	}
	g.Permission = auth.Permission(perm)
	g.Signature = sig.String
	return g, nil
}

func (s *Store) UpsertGrant(ctx context.Context, g auth.PermissionGrant) (auth.PermissionGrant, error) {
	if s.db == nil {
		return auth.PermissionGrant{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		insert into permission_grants (id, account_id, permission, granted_by, signature)
		values ($1, $2, $3, $4, $5)
		on conflict (account_id, permission) do update
		set granted_by = excluded.granted_by,
		    signature = excluded.signature,
		    updated_at = now()
		returning id, account_id, permission, granted_by, signature, created_at, updated_at
	`, ids.New(), g.AccountID, string(g.Permission), g.GrantedBy, nullIfEmpty(g.Signature))
	out, err := scanGrant(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.PermissionGrant{}, auth.ErrNotFound
		}
		return auth.PermissionGrant{}, err
	}
	return out, nil
}

func (s *Store) DeleteGrant(ctx context.Context, accountID string, p auth.Permission) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `delete from permission_grants where account_id = $1 and permission = $2`, accountID, string(p))
	return err
}

func (s *Store) ListGrants(ctx context.Context, accountID string) ([]auth.PermissionGrant, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, account_id, permission, granted_by, signature, created_at, updated_at
		from permission_grants
		where account_id = $1
		order by permission
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []auth.PermissionGrant{}
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
