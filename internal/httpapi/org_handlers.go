package httpapi

import (
	"net/http"
	"strings"

	"grantflow.org/internal/auth"
	"grantflow.org/internal/controlplane"
)

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var req controlplane.NewOrganization
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.svc.CreateOrganization(r.Context(), user, auth.EmailFromContext(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/organizations/"+org.ID)
	writeJSON(w, http.StatusCreated, org)
}

// handleOrganizationScoped routes /v1/organizations/{id}[/...].
func (a *API) handleOrganizationScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/organizations/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	user, ok := actor(w, r)
	if !ok {
		return
	}
	parts := strings.Split(path, "/")
	orgID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			org, err := a.svc.GetOrganization(r.Context(), user, orgID)
			if err != nil {
				handleServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, org)
		case http.MethodDelete:
			if err := a.svc.DeleteOrganization(r.Context(), user, orgID); err != nil {
				handleServiceError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "members":
		a.addMember(w, r, user, orgID)
	case len(parts) == 2 && parts[1] == "authorizations":
		a.grantAuthorization(w, r, user, orgID)
	case len(parts) == 4 && parts[1] == "authorizations" && parts[3] == "revoke":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if err := a.svc.RevokeAuthorization(r.Context(), user, orgID, parts[2]); err != nil {
			handleServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "projects":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		items, err := a.svc.ListProjects(r.Context(), user, orgID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case len(parts) == 2 && parts[1] == "applications":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		items, err := a.svc.ListApplications(r.Context(), user, orgID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case len(parts) == 2 && parts[1] == "documents":
		a.createDocument(w, r, user, orgID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) addMember(w http.ResponseWriter, r *http.Request, user, orgID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req controlplane.NewMember
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.svc.AddMember(r.Context(), user, orgID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

func (a *API) grantAuthorization(w http.ResponseWriter, r *http.Request, user, orgID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req controlplane.NewAuthorization
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	granted, err := a.svc.GrantAuthorization(r.Context(), user, orgID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, granted)
}

func (a *API) createDocument(w http.ResponseWriter, r *http.Request, user, orgID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req controlplane.NewDocument
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := a.svc.CreateDocument(r.Context(), user, orgID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/documents/"+doc.ID)
	writeJSON(w, http.StatusCreated, doc)
}

type documentStatusRequest struct {
	Status string `json:"status"`
}

// handleDocumentScoped routes /v1/documents/{id}[/status].
func (a *API) handleDocumentScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/documents/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) > 2 || (len(parts) == 2 && parts[1] != "status") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	user, ok := actor(w, r)
	if !ok {
		return
	}
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		doc, err := a.svc.GetDocument(r.Context(), user, parts[0])
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req documentStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := a.svc.ChangeDocumentStatus(r.Context(), user, parts[0], req.Status)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
