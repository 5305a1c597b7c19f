package controlplane

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"grantflow.org/internal/grants"
	"grantflow.org/internal/ids"
	"grantflow.org/internal/lifecycle"
	"grantflow.org/internal/obs"
)

// editDossier applies fn to the project or application and saves it under
// the version guard.
func (s *Service) editDossier(ctx context.Context, kind lifecycle.Kind, id string, fn func(grants.Dossier) error) (orgID string, status lifecycle.State, err error) {
	switch kind {
	case lifecycle.KindProject:
		p, err := s.store.GetProject(ctx, id)
		if err != nil {
			return "", "", err
		}
		if err := fn(&p); err != nil {
			return "", "", err
		}
		if err := s.store.UpdateProject(ctx, &p); err != nil {
			return "", "", err
		}
		return p.OrgID, p.Status, nil
	case lifecycle.KindApplication:
		a, err := s.store.GetApplication(ctx, id)
		if err != nil {
			return "", "", err
		}
		if err := fn(&a); err != nil {
			return "", "", err
		}
		if err := s.store.UpdateApplication(ctx, &a); err != nil {
			return "", "", err
		}
		return a.CompanyID, a.Status, nil
	}
	return "", "", fmt.Errorf("%w: %q", lifecycle.ErrUnknownKind, kind)
}

// NewGuideAsset describes reference material to attach.
type NewGuideAsset struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	StorageKey string `json:"storage_key"`
}

// AttachGuide adds reference material. Attaching the applicant guide to an
// application waiting in call_selected moves it to guide_ready.
func (s *Service) AttachGuide(ctx context.Context, actor string, kind lifecycle.Kind, id string, in NewGuideAsset) (grants.GuideAsset, error) {
	if err := s.require(ctx, actor, kind, id, "write"); err != nil {
		return grants.GuideAsset{}, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return grants.GuideAsset{}, fmt.Errorf("%w: name is required", grants.ErrInvalidInput)
	}
	assetKind := in.Kind
	switch assetKind {
	case "":
		assetKind = grants.AssetGuide
	case grants.AssetGuide, grants.AssetLegislation, grants.AssetTemplate:
	default:
		return grants.GuideAsset{}, fmt.Errorf("%w: unknown asset kind %q", grants.ErrInvalidInput, in.Kind)
	}
	asset := grants.GuideAsset{
		ID:         ids.New(),
		Name:       strings.TrimSpace(in.Name),
		Kind:       assetKind,
		StorageKey: in.StorageKey,
		AddedAt:    s.now().UTC(),
		AddedBy:    actor,
	}
	orgID, status, err := s.editDossier(ctx, kind, id, func(d grants.Dossier) error {
		d.AddGuide(asset)
		return nil
	})
	if err != nil {
		return grants.GuideAsset{}, err
	}
	s.record(ctx, actor, string(kind)+".guide_attached", string(kind), id, orgID, map[string]any{
		"asset_id": asset.ID,
		"kind":     asset.Kind,
	})

	if kind == lifecycle.KindApplication && status == lifecycle.AppCallSelected && asset.Kind == grants.AssetGuide {
		if _, err := s.AutoTransition(ctx, kind, id, lifecycle.AppGuideReady, "", "guide attached: "+asset.Name); err != nil {
			obs.FromContext(ctx).Warn("guide auto-transition skipped", zap.String("application_id", id), zap.Error(err))
		}
	}
	return asset, nil
}

// NewRequiredDocument describes a checklist element.
type NewRequiredDocument struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// AddRequiredDocument extends the checklist. Frozen application checklists
// reject additions with grants.ErrChecklistFrozen.
func (s *Service) AddRequiredDocument(ctx context.Context, actor string, kind lifecycle.Kind, id string, in NewRequiredDocument) (grants.RequiredDocument, error) {
	if err := s.require(ctx, actor, kind, id, "write"); err != nil {
		return grants.RequiredDocument{}, err
	}
	doc := grants.RequiredDocument{ID: ids.New(), Name: strings.TrimSpace(in.Name), Category: strings.TrimSpace(in.Category)}
	orgID, _, err := s.editDossier(ctx, kind, id, func(d grants.Dossier) error {
		return d.AddRequiredDocument(doc)
	})
	if err != nil {
		return grants.RequiredDocument{}, err
	}
	s.record(ctx, actor, string(kind)+".required_document_added", string(kind), id, orgID, map[string]any{
		"required_document_id": doc.ID,
		"name":                 doc.Name,
	})
	return doc, nil
}

// NewUpload describes a file provided for a checklist element.
type NewUpload struct {
	RequiredDocumentID string `json:"required_document_id"`
	FileName           string `json:"file_name"`
	StorageKey         string `json:"storage_key"`
}

// UploadRequiredDocument registers the file as an organization document and
// marks the checklist element as provided.
func (s *Service) UploadRequiredDocument(ctx context.Context, actor string, kind lifecycle.Kind, id string, in NewUpload) (grants.Document, error) {
	if err := s.require(ctx, actor, kind, id, "upload_doc"); err != nil {
		return grants.Document{}, err
	}
	if strings.TrimSpace(in.RequiredDocumentID) == "" || strings.TrimSpace(in.FileName) == "" {
		return grants.Document{}, fmt.Errorf("%w: required_document_id and file_name are required", grants.ErrInvalidInput)
	}
	rec, err := s.store.LoadRecord(ctx, kind, id)
	if err != nil {
		return grants.Document{}, err
	}
	doc := grants.Document{
		ID:         ids.New(),
		OrgID:      rec.OrgID,
		Name:       strings.TrimSpace(in.FileName),
		StorageKey: in.StorageKey,
		Status:     grants.DocumentUploaded,
		Revision:   1,
		UploadedBy: actor,
	}
	if kind == lifecycle.KindProject {
		doc.ProjectID = id
	}
	if err := s.store.CreateDocument(ctx, &doc); err != nil {
		return grants.Document{}, err
	}
	now := s.now()
	if _, _, err := s.editDossier(ctx, kind, id, func(d grants.Dossier) error {
		return d.MarkUploaded(in.RequiredDocumentID, doc.ID, doc.Name, actor, now)
	}); err != nil {
		return grants.Document{}, err
	}
	s.record(ctx, actor, string(kind)+".document_uploaded", string(kind), id, rec.OrgID, map[string]any{
		"document_id":          doc.ID,
		"required_document_id": in.RequiredDocumentID,
	})
	return doc, nil
}

// NewDraft is a generated section of the application text.
type NewDraft struct {
	Template string `json:"template"`
	Content  string `json:"content"`
}

func (s *Service) AddDraft(ctx context.Context, actor string, kind lifecycle.Kind, id string, in NewDraft) (grants.Draft, error) {
	if err := s.require(ctx, actor, kind, id, "write"); err != nil {
		return grants.Draft{}, err
	}
	if strings.TrimSpace(in.Template) == "" {
		return grants.Draft{}, fmt.Errorf("%w: template is required", grants.ErrInvalidInput)
	}
	draft := grants.Draft{
		ID:        ids.New(),
		Template:  strings.TrimSpace(in.Template),
		Content:   in.Content,
		CreatedAt: s.now().UTC(),
		CreatedBy: actor,
	}
	orgID, _, err := s.editDossier(ctx, kind, id, func(d grants.Dossier) error {
		d.AddDraft(draft)
		return nil
	})
	if err != nil {
		return grants.Draft{}, err
	}
	s.record(ctx, actor, string(kind)+".draft_added", string(kind), id, orgID, map[string]any{"draft_id": draft.ID, "template": draft.Template})
	return draft, nil
}

// NewComplianceReport is the outcome of an eligibility or validation pass.
type NewComplianceReport struct {
	Type    string `json:"type"`
	Result  string `json:"result"`
	Summary string `json:"summary"`
}

// RecordComplianceReport stores the outcome of an eligibility, evaluation or
// validation pass so later orchestration runs can see it.
func (s *Service) RecordComplianceReport(ctx context.Context, actor string, kind lifecycle.Kind, id string, in NewComplianceReport) (grants.ComplianceReport, error) {
	if err := s.require(ctx, actor, kind, id, "compliance"); err != nil {
		return grants.ComplianceReport{}, err
	}
	if !grants.ValidReportType(in.Type) {
		return grants.ComplianceReport{}, fmt.Errorf("%w: unknown report type %q", grants.ErrInvalidInput, in.Type)
	}
	rec, err := s.store.LoadRecord(ctx, kind, id)
	if err != nil {
		return grants.ComplianceReport{}, err
	}
	r := grants.ComplianceReport{
		ID:         ids.New(),
		EntityKind: kind,
		EntityID:   id,
		Type:       in.Type,
		Result:     strings.TrimSpace(in.Result),
		Summary:    in.Summary,
		CreatedAt:  s.now().UTC(),
		CreatedBy:  actor,
	}
	if err := s.store.AddComplianceReport(ctx, &r); err != nil {
		return grants.ComplianceReport{}, err
	}
	s.record(ctx, actor, "compliance.report", string(kind), id, rec.OrgID, map[string]any{"report_id": r.ID, "type": r.Type, "result": r.Result})
	return r, nil
}
