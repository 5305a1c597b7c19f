package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Stream serves GET /v1/events?org_id=... as server-sent transition events.
// The caller needs an active role in the organization.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	user, ok := actor(w, r)
	if !ok {
		return
	}
	orgID := strings.TrimSpace(r.URL.Query().Get("org_id"))
	if orgID == "" {
		writeError(w, r, http.StatusBadRequest, "org_id is required")
		return
	}
	if err := a.svc.WatchOrganization(r.Context(), user, orgID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := a.broker.Subscribe(r.Context(), orgID)

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("event: transition\ndata: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
