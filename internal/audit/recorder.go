package audit

import (
	"context"
	"time"

	"basemini.app/internal/auth"
	"basemini.app/internal/ids"
	"basemini.app/internal/obs"
)

const writeTimeout = 5 * time.Second

// Publisher receives every recorded entry, e.g. a live feed.
type Publisher interface {
	Publish(Entry) int
}

// Recorder stamps and persists audit entries. Failures are logged and counted and
// never returned to the caller.
type Recorder struct {
	sink Sink
	feed Publisher
	now  func() time.Time
}

// NewRecorder wires a recorder. feed may be nil.
func NewRecorder(sink Sink, feed Publisher) *Recorder {
	return &Recorder{sink: sink, feed: feed, now: func() time.Time { return time.Now().UTC() }}
}

// Record fills id, timestamp, request id and actor from ctx, then appends e.
func (r *Recorder) Record(ctx context.Context, e Entry) Entry {
	now := r.now()
	e.ID = ids.NewAt(now)
	e.CreatedAt = now
	if e.RequestID == "" {
		e.RequestID = RequestIDFromContext(ctx)
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		if e.AccountID == "" {
			e.AccountID = p.AccountID
		}
		if e.ActorAddress == "" {
			e.ActorAddress = p.Address
		}
	}

	_ = LogEvent(ctx, e.Action, map[string]any{
		"id":            e.ID,
		"resource_type": e.ResourceType,
		"resource_id":   e.ResourceID,
		"success":       e.Success,
		"error":         e.ErrorMessage,
	})

	if r.sink != nil {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		if err := r.sink.Append(wctx, e); err != nil {
			obs.AuditWriteFailures.Inc()
			obs.Error("audit_write_failed", err, map[string]any{"action": e.Action, "id": e.ID})
		}
	}
	if r.feed != nil {
		r.feed.Publish(e)
	}
	return e
}
