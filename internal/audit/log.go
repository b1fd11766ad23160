package audit

import (
	"context"
	"errors"
	"strings"

	"basemini.app/internal/auth"
	"basemini.app/internal/obs"
)

type requestIDKey struct{}

// ErrEmptyEvent is returned by LogEvent for a blank event name.
var ErrEmptyEvent = errors.New("audit: event name is required")

// WithRequestID tags ctx so audit lines and entries can be joined with request logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID = strings.TrimSpace(requestID); requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the id set by WithRequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	rid, _ := ctx.Value(requestIDKey{}).(string)
	return rid
}

// LogEvent mirrors an audit event to the structured log with the acting principal
// and request id taken from ctx.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	if event = strings.TrimSpace(event); event == "" {
		return ErrEmptyEvent
	}
	detail := make(map[string]any, len(fields))
	for k, v := range fields {
		detail[k] = v
	}
	line := map[string]any{
		"type":   "audit",
		"event":  event,
		"fields": detail,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		line["request_id"] = rid
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		line["actor"] = p.Address
		if p.AccountID != "" {
			line["actor_account"] = p.AccountID
		}
	}
	obs.Info("audit_event", line)
	return nil
}
