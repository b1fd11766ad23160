package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"basemini.app/internal/audit"
)

func (a *API) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.AuditLog == nil {
		writeError(w, r, http.StatusServiceUnavailable, "audit_unavailable")
		return
	}
	started := time.Now()
	q := r.URL.Query()
	query := audit.Query{
		Action:     q.Get("action"),
		AccountID:  q.Get("accountId"),
		ResourceID: q.Get("resourceId"),
		Before:     q.Get("before"),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_limit")
			return
		}
		query.Limit = n
	}
	entries, err := a.AuditLog.List(r.Context(), query)
	if err != nil {
		handleError(w, r, err, started)
		return
	}
	resp := map[string]any{"entries": entries}
	if n := len(entries); n > 0 && query.Limit > 0 && n == query.Limit {
		resp["nextCursor"] = entries[n-1].ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAuditStream relays recorded audit entries as Server-Sent Events.
func (a *API) handleAuditStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.Feed == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming_disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming_unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.Feed.Subscribe(ctx)

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for entry := range ch {
		payload, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("event: audit\ndata: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
