package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Action names recorded by the admin API.
const (
	ActionRoleUpdate       = "role.update"
	ActionPermissionGrant  = "permission.grant"
	ActionPermissionRevoke = "permission.revoke"
	ActionSuperAdminInit   = "superadmin.bootstrap"
	ActionTermsAccept      = "terms.accept"
)

// Entry is an immutable record of an admin action.
type Entry struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"accountId,omitempty"`
	ActorAddress  string          `json:"actorAddress,omitempty"`
	Action        string          `json:"action"`
	ResourceType  string          `json:"resourceType"`
	ResourceID    string          `json:"resourceId"`
	PreviousValue json.RawMessage `json:"previousValue,omitempty"`
	NewValue      json.RawMessage `json:"newValue,omitempty"`
	Success       bool            `json:"success"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	RequestID     string          `json:"requestId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Query filters audit reads. Before is an entry id cursor; results are newest first.
type Query struct {
	Action     string
	AccountID  string
	ResourceID string
	Before     string
	Limit      int
}

// Sink appends entries.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// Reader queries entries.
type Reader interface {
	List(ctx context.Context, q Query) ([]Entry, error)
}

// Store is a Sink that can also be queried.
type Store interface {
	Sink
	Reader
}

// Snapshot marshals v for PreviousValue/NewValue, yielding nil when v is nil.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
