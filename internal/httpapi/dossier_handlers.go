package httpapi

import (
	"net/http"
	"strings"

	"grantflow.org/internal/controlplane"
	"grantflow.org/internal/lifecycle"
)

type createProjectRequest struct {
	OrgID string `json:"org_id"`
	controlplane.ProjectConfig
}

type createApplicationRequest struct {
	CompanyID string `json:"company_id"`
	controlplane.NewApplication
}

type transitionRequest struct {
	To     lifecycle.State `json:"to"`
	Reason string          `json:"reason"`
}

func (a *API) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.OrgID) == "" {
		writeError(w, r, http.StatusBadRequest, "org_id is required")
		return
	}
	p, err := a.svc.CreateProject(r.Context(), user, req.OrgID, req.ProjectConfig)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/projects/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleApplications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var req createApplicationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.CompanyID) == "" {
		writeError(w, r, http.StatusBadRequest, "company_id is required")
		return
	}
	app, err := a.svc.CreateApplication(r.Context(), user, req.CompanyID, req.NewApplication)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/applications/"+app.ID)
	writeJSON(w, http.StatusCreated, app)
}

// handleDossierScoped routes /v1/projects/{id}[/...] and /v1/applications/{id}[/...].
func (a *API) handleDossierScoped(w http.ResponseWriter, r *http.Request) {
	kind, rest := lifecycle.KindProject, strings.TrimPrefix(r.URL.Path, "/v1/projects/")
	if strings.HasPrefix(r.URL.Path, "/v1/applications/") {
		kind, rest = lifecycle.KindApplication, strings.TrimPrefix(r.URL.Path, "/v1/applications/")
	}
	rest = strings.Trim(rest, "/")
	if rest == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	user, ok := actor(w, r)
	if !ok {
		return
	}
	id, sub, _ := strings.Cut(rest, "/")

	switch sub {
	case "":
		a.dossierResource(w, r, user, kind, id)
	case "transition":
		a.transition(w, r, user, kind, id)
	case "history":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		history, err := a.svc.History(r.Context(), user, kind, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": history})
	case "audit":
		a.auditLog(w, r, user, kind, id)
	case "orchestration":
		a.orchestration(w, r, user, kind, id)
	case "guide":
		var req controlplane.NewGuideAsset
		create(w, r, &req, func() (any, error) {
			return a.svc.AttachGuide(r.Context(), user, kind, id, req)
		})
	case "required-documents":
		var req controlplane.NewRequiredDocument
		create(w, r, &req, func() (any, error) {
			return a.svc.AddRequiredDocument(r.Context(), user, kind, id, req)
		})
	case "required-documents/freeze":
		if kind != lifecycle.KindApplication {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		app, err := a.svc.FreezeChecklist(r.Context(), user, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, app)
	case "documents":
		var req controlplane.NewUpload
		create(w, r, &req, func() (any, error) {
			return a.svc.UploadRequiredDocument(r.Context(), user, kind, id, req)
		})
	case "drafts":
		var req controlplane.NewDraft
		create(w, r, &req, func() (any, error) {
			return a.svc.AddDraft(r.Context(), user, kind, id, req)
		})
	case "reports":
		var req controlplane.NewComplianceReport
		create(w, r, &req, func() (any, error) {
			return a.svc.RecordComplianceReport(r.Context(), user, kind, id, req)
		})
	case "members":
		if kind != lifecycle.KindProject {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		var req controlplane.NewMember
		create(w, r, &req, func() (any, error) {
			return a.svc.AddProjectMember(r.Context(), user, id, req)
		})
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// create decodes a POST body into req and answers 201 with the result of fn.
func create(w http.ResponseWriter, r *http.Request, req any, fn func() (any, error)) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := decodeJSON(w, r, req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	out, err := fn()
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *API) dossierResource(w http.ResponseWriter, r *http.Request, user string, kind lifecycle.Kind, id string) {
	var (
		out any
		err error
	)
	switch r.Method {
	case http.MethodGet:
		if kind == lifecycle.KindProject {
			out, err = a.svc.GetProject(r.Context(), user, id)
		} else {
			out, err = a.svc.GetApplication(r.Context(), user, id)
		}
	case http.MethodPatch:
		if kind == lifecycle.KindProject {
			var cfg controlplane.ProjectConfig
			if err := decodeJSON(w, r, &cfg); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			out, err = a.svc.ConfigureProject(r.Context(), user, id, cfg)
		} else {
			var cfg controlplane.ApplicationConfig
			if err := decodeJSON(w, r, &cfg); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			out, err = a.svc.ConfigureApplication(r.Context(), user, id, cfg)
		}
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) transition(w http.ResponseWriter, r *http.Request, user string, kind lifecycle.Kind, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(string(req.To)) == "" {
		writeError(w, r, http.StatusBadRequest, "to is required")
		return
	}
	res, err := a.svc.Transition(r.Context(), kind, id, req.To, user, req.Reason)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) auditLog(w http.ResponseWriter, r *http.Request, user string, kind lifecycle.Kind, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := a.svc.AuditLog(r.Context(), user, kind, id, limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

// orchestration runs the readiness checks on POST and lists past reports on GET.
func (a *API) orchestration(w http.ResponseWriter, r *http.Request, user string, kind lifecycle.Kind, id string) {
	switch r.Method {
	case http.MethodPost:
		report, err := a.svc.RunOrchestration(r.Context(), user, kind, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	case http.MethodGet:
		reports, err := a.svc.DecisionReports(r.Context(), user, kind, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": reports})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
