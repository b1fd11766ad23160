package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"basemini.app/internal/audit"
)

func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, account_id, actor_address, action, resource_type, resource_id,
			previous_value, new_value, success, error_message, request_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, nullIfEmpty(e.AccountID), nullIfEmpty(e.ActorAddress), e.Action, e.ResourceType, e.ResourceID,
		jsonOrNull(e.PreviousValue), jsonOrNull(e.NewValue), e.Success, nullIfEmpty(e.ErrorMessage),
		nullIfEmpty(e.RequestID), e.CreatedAt)
	return err
}

func (s *Store) List(ctx context.Context, q audit.Query) ([]audit.Entry, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if q.Action != "" {
		add("action = $%d", q.Action)
	}
	if q.AccountID != "" {
		add("account_id = $%d", q.AccountID)
	}
	if q.ResourceID != "" {
		add("resource_id = $%d", q.ResourceID)
	}
	if q.Before != "" {
		add("id < $%d", q.Before)
	}
	query := `select id, account_id, actor_address, action, resource_type, resource_id,
		previous_value, new_value, success, error_message, request_id, created_at
		from audit_log`
	if len(clauses) > 0 {
		query += ` where ` + strings.Join(clauses, " and ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` order by id desc limit $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []audit.Entry{}
	for rows.Next() {
		var (
			e                               audit.Entry
			accountID, actor, errMsg, reqID sql.NullString
			prev, next                      []byte
		)
		if err := rows.Scan(&e.ID, &accountID, &actor, &e.Action, &e.ResourceType, &e.ResourceID,
			&prev, &next, &e.Success, &errMsg, &reqID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.AccountID = accountID.String
		e.ActorAddress = actor.String
		e.ErrorMessage = errMsg.String
		e.RequestID = reqID.String
		if len(prev) > 0 {
			e.PreviousValue = prev
		}
		if len(next) > 0 {
			e.NewValue = next
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func jsonOrNull(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
