package grants

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"grantflow.org/internal/auth"
	"grantflow.org/internal/lifecycle"
)

// Organization is a tenant applying for funding.
type Organization struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	TaxID          string               `json:"tax_id,omitempty"`
	Members        []auth.Member        `json:"members"`
	Authorizations []auth.Authorization `json:"authorizations"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	Version        int64                `json:"version"`
}

// AddMember appends m. A user can be a member only once.
func (o *Organization) AddMember(m auth.Member) error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if !m.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, m.Role)
	}
	if slices.ContainsFunc(o.Members, func(x auth.Member) bool { return x.UserID == m.UserID }) {
		return fmt.Errorf("%w: %s is already a member", ErrAlreadyExists, m.UserID)
	}
	o.Members = append(o.Members, m)
	return nil
}

// Member returns the membership of userID.
func (o *Organization) Member(userID string) (auth.Member, bool) {
	i := slices.IndexFunc(o.Members, func(x auth.Member) bool { return x.UserID == userID })
	if i < 0 {
		return auth.Member{}, false
	}
	return o.Members[i], true
}

// GrantAuthorization appends a delegation for an existing delegate member.
// Stored order is significant: resolution picks the first effective entry.
func (o *Organization) GrantAuthorization(a auth.Authorization) error {
	m, ok := o.Member(a.UserID)
	if !ok {
		return fmt.Errorf("%w: %s is not a member", ErrInvalidInput, a.UserID)
	}
	if m.Role != auth.RoleDelegate {
		return fmt.Errorf("%w: authorizations apply to delegates only", ErrInvalidInput)
	}
	if len(a.Scope) == 0 {
		return fmt.Errorf("%w: scope must name at least one action", ErrInvalidInput)
	}
	if a.ValidUntil.IsZero() {
		return fmt.Errorf("%w: valid_until is required", ErrInvalidInput)
	}
	a.Status = auth.AuthorizationActive
	o.Authorizations = append(o.Authorizations, a)
	return nil
}

// RevokeAuthorization marks the authorization revoked. Entries are never removed.
func (o *Organization) RevokeAuthorization(id string) error {
	for i := range o.Authorizations {
		if o.Authorizations[i].ID == id {
			o.Authorizations[i].Status = auth.AuthorizationRevoked
			return nil
		}
	}
	return fmt.Errorf("%w: authorization %s", ErrNotFound, id)
}

// ProcurementItem is one planned purchase.
type ProcurementItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// Total is quantity times unit cost.
func (p ProcurementItem) Total() decimal.Decimal {
	return p.UnitCost.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// Guide asset kinds.
const (
	AssetGuide       = "guide"
	AssetLegislation = "legislation"
	AssetTemplate    = "template"
)

// GuideAsset is reference material attached to a dossier: applicant guide,
// legislation, templates.
type GuideAsset struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	StorageKey string    `json:"storage_key,omitempty"`
	AddedAt    time.Time `json:"added_at"`
	AddedBy    string    `json:"added_by"`
}

// RequiredDocument is a checklist element. Upload fields are set once the
// applicant provides the file.
type RequiredDocument struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Category   string     `json:"category,omitempty"`
	DocumentID string     `json:"document_id,omitempty"`
	FileName   string     `json:"file_name,omitempty"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
	UploadedBy string     `json:"uploaded_by,omitempty"`
}

func (d RequiredDocument) Uploaded() bool { return d.DocumentID != "" }

// Checklist is the ordered list of documents a dossier requires.
type Checklist []RequiredDocument

// Add appends d. Element ids are unique within a checklist.
func (c *Checklist) Add(d RequiredDocument) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: document name is required", ErrInvalidInput)
	}
	if slices.ContainsFunc(*c, func(x RequiredDocument) bool { return x.ID == d.ID }) {
		return fmt.Errorf("%w: required document %s", ErrAlreadyExists, d.ID)
	}
	*c = append(*c, d)
	return nil
}

// MarkUploaded records an upload against the element with id reqID.
func (c Checklist) MarkUploaded(reqID, documentID, fileName, by string, at time.Time) error {
	i := slices.IndexFunc(c, func(d RequiredDocument) bool { return d.ID == reqID })
	if i < 0 {
		return fmt.Errorf("%w: required document %s", ErrNotFound, reqID)
	}
	at = at.UTC()
	c[i].DocumentID = documentID
	c[i].FileName = fileName
	c[i].UploadedAt = &at
	c[i].UploadedBy = by
	return nil
}

// Dossier is the preparation surface shared by projects and applications.
type Dossier interface {
	AddGuide(g GuideAsset)
	AddRequiredDocument(d RequiredDocument) error
	MarkUploaded(reqID, documentID, fileName, by string, at time.Time) error
	AddDraft(d Draft)
}

var (
	_ Dossier = (*Project)(nil)
	_ Dossier = (*Application)(nil)
)

// Draft is a generated section of the application text.
type Draft struct {
	ID        string    `json:"id"`
	Template  string    `json:"template"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}

// Project is a funding project owned by an organization.
type Project struct {
	ID                 string                   `json:"id"`
	OrgID              string                   `json:"org_id"`
	Title              string                   `json:"title"`
	Program            string                   `json:"program,omitempty"`
	Type               string                   `json:"type,omitempty"`
	Theme              string                   `json:"theme,omitempty"`
	CallID             string                   `json:"call_id,omitempty"`
	ImplementationSite string                   `json:"implementation_site,omitempty"`
	Procurement        []ProcurementItem        `json:"procurement"`
	BudgetEstimated    decimal.Decimal          `json:"budget_estimated"`
	Members            []auth.Member            `json:"members"`
	RequiredDocuments  Checklist                `json:"required_documents"`
	GuideAssets        []GuideAsset             `json:"guide_assets"`
	Drafts             []Draft                  `json:"drafts"`
	Status             lifecycle.State          `json:"status"`
	StatusLabel        string                   `json:"status_label"`
	History            []lifecycle.HistoryEntry `json:"history"`
	Version            int64                    `json:"version"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
	CreatedBy          string                   `json:"created_by"`
}

// MissingConfiguration lists the setup fields still empty.
func (p *Project) MissingConfiguration() []string {
	var missing []string
	if strings.TrimSpace(p.Type) == "" {
		missing = append(missing, "Project type not set")
	}
	if strings.TrimSpace(p.Theme) == "" {
		missing = append(missing, "Project theme not defined")
	}
	if strings.TrimSpace(p.CallID) == "" {
		missing = append(missing, "Funding call not selected")
	}
	if !p.BudgetEstimated.IsPositive() {
		missing = append(missing, "Estimated budget not set")
	}
	if len(p.Procurement) == 0 {
		missing = append(missing, "Procurement list empty")
	}
	if strings.TrimSpace(p.ImplementationSite) == "" {
		missing = append(missing, "Implementation site not defined")
	}
	return missing
}

// ProjectMember returns the direct membership of userID on the project.
func (p *Project) ProjectMember(userID string) (auth.Member, bool) {
	i := slices.IndexFunc(p.Members, func(m auth.Member) bool { return m.UserID == userID })
	if i < 0 {
		return auth.Member{}, false
	}
	return p.Members[i], true
}

func (p *Project) AddGuide(g GuideAsset) { p.GuideAssets = append(p.GuideAssets, g) }

func (p *Project) AddRequiredDocument(d RequiredDocument) error {
	return p.RequiredDocuments.Add(d)
}

func (p *Project) MarkUploaded(reqID, documentID, fileName, by string, at time.Time) error {
	return p.RequiredDocuments.MarkUploaded(reqID, documentID, fileName, by, at)
}

func (p *Project) AddDraft(d Draft) { p.Drafts = append(p.Drafts, d) }

// Application is a dossier prepared by a company for one funding call.
type Application struct {
	ID                 string                   `json:"id"`
	CompanyID          string                   `json:"company_id"`
	CallID             string                   `json:"call_id"`
	CallTitle          string                   `json:"call_title"`
	Title              string                   `json:"title"`
	Description        string                   `json:"description,omitempty"`
	ImplementationSite string                   `json:"implementation_site,omitempty"`
	Procurement        []ProcurementItem        `json:"procurement"`
	BudgetEstimated    decimal.Decimal          `json:"budget_estimated"`
	GuideAssets        []GuideAsset             `json:"guide_assets"`
	RequiredDocuments  Checklist                `json:"required_documents"`
	ChecklistFrozen    bool                     `json:"checklist_frozen"`
	Drafts             []Draft                  `json:"drafts"`
	Status             lifecycle.State          `json:"status"`
	StatusLabel        string                   `json:"status_label"`
	History            []lifecycle.HistoryEntry `json:"history"`
	Version            int64                    `json:"version"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
	CreatedBy          string                   `json:"created_by"`
}

// MissingConfiguration lists the setup fields still empty.
func (a *Application) MissingConfiguration() []string {
	var missing []string
	if strings.TrimSpace(a.CallID) == "" {
		missing = append(missing, "Funding call not selected")
	}
	if strings.TrimSpace(a.Description) == "" {
		missing = append(missing, "Project description not defined")
	}
	if !a.BudgetEstimated.IsPositive() {
		missing = append(missing, "Estimated budget not set")
	}
	if len(a.Procurement) == 0 {
		missing = append(missing, "Procurement list empty")
	}
	if strings.TrimSpace(a.ImplementationSite) == "" {
		missing = append(missing, "Implementation site not defined")
	}
	return missing
}

func (a *Application) AddGuide(g GuideAsset) { a.GuideAssets = append(a.GuideAssets, g) }

// AddRequiredDocument appends a checklist element unless the checklist is frozen.
func (a *Application) AddRequiredDocument(d RequiredDocument) error {
	if a.ChecklistFrozen {
		return ErrChecklistFrozen
	}
	return a.RequiredDocuments.Add(d)
}

// MarkUploaded records an upload against the checklist element with id reqID.
// Uploads are allowed after the checklist is frozen.
func (a *Application) MarkUploaded(reqID, documentID, fileName, by string, at time.Time) error {
	return a.RequiredDocuments.MarkUploaded(reqID, documentID, fileName, by, at)
}

func (a *Application) AddDraft(d Draft) { a.Drafts = append(a.Drafts, d) }

// Document statuses.
const (
	DocumentUploaded = "uploaded"
	DocumentApproved = "approved"
	DocumentRejected = "rejected"
)

// Document is a file registered with an organization and optionally a project.
type Document struct {
	ID         string    `json:"id"`
	OrgID      string    `json:"org_id"`
	ProjectID  string    `json:"project_id,omitempty"`
	Name       string    `json:"name"`
	StorageKey string    `json:"storage_key,omitempty"`
	Status     string    `json:"status"`
	Revision   int       `json:"revision"`
	UploadedBy string    `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Version    int64     `json:"version"`
}

// Compliance report types.
const (
	ReportEligibility    = "eligibility"
	ReportEvaluation     = "evaluation"
	ReportValidation     = "validation"
	ReportConformityGrid = "conformity_grid"
)

// ValidReportType reports whether t is a known compliance report type.
func ValidReportType(t string) bool {
	switch t {
	case ReportEligibility, ReportEvaluation, ReportValidation, ReportConformityGrid:
		return true
	}
	return false
}

// ComplianceReport is the stored outcome of an eligibility or validation pass.
type ComplianceReport struct {
	ID         string         `json:"id"`
	EntityKind lifecycle.Kind `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Type       string         `json:"type"`
	Result     string         `json:"result"`
	Summary    string         `json:"summary,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	CreatedBy  string         `json:"created_by"`
}
