package httpapi

import (
	"net/http"
	"strings"
	"time"

	"grantflow.org/internal/auth"
	"grantflow.org/internal/lifecycle"
)

type tokenRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleAuthToken issues development tokens. It is hidden unless enabled.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if !a.devTokens || a.tokens == nil {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user := strings.TrimSpace(req.UserID)
	if user == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	token, expiresAt, err := a.tokens.Issue(user, req.Email, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	auditEvent(r, "auth.token.issued", map[string]any{
		"user_id":    user,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}

type resolvePermissionRequest struct {
	ScopeType  string `json:"scope_type"`
	ScopeID    string `json:"scope_id"`
	Permission string `json:"permission"`
}

func (a *API) handleResolvePermission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var req resolvePermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	scope, ok := auth.ParseResourceType(req.ScopeType)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown scope_type")
		return
	}
	if strings.TrimSpace(req.ScopeID) == "" || strings.TrimSpace(req.Permission) == "" {
		writeError(w, r, http.StatusBadRequest, "scope_id and permission are required")
		return
	}
	info, err := a.svc.ResolvePermission(r.Context(), user, scope, req.ScopeID, req.Permission)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleLifecycle serves GET /v1/lifecycles/{kind}.
func (a *API) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	kind, ok := lifecycle.ParseKind(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/lifecycles/"), "/"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "unknown lifecycle")
		return
	}
	desc, err := a.svc.Lifecycle(kind)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}
