package controlplane

import (
	"context"
	"fmt"
	"strings"

	"grantflow.org/internal/auth"
	"grantflow.org/internal/grants"
	"grantflow.org/internal/ids"
)

// NewDocument registers a file with an organization, optionally under a project.
type NewDocument struct {
	ProjectID  string `json:"project_id"`
	Name       string `json:"name"`
	StorageKey string `json:"storage_key"`
}

// CreateDocument registers a document. Project documents need upload_doc on
// the project, which must belong to orgID; others need write on the organization.
func (s *Service) CreateDocument(ctx context.Context, actor, orgID string, in NewDocument) (grants.Document, error) {
	if in.ProjectID != "" {
		if _, err := s.resolver.RequirePermission(ctx, actor, auth.ResourceProject, in.ProjectID, "upload_doc"); err != nil {
			return grants.Document{}, err
		}
	} else if _, err := s.resolver.RequirePermission(ctx, actor, auth.ResourceOrg, orgID, "write"); err != nil {
		return grants.Document{}, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return grants.Document{}, fmt.Errorf("%w: name is required", grants.ErrInvalidInput)
	}
	if in.ProjectID != "" {
		p, err := s.store.GetProject(ctx, in.ProjectID)
		if err != nil {
			return grants.Document{}, err
		}
		if p.OrgID != orgID {
			return grants.Document{}, fmt.Errorf("%w: project %s belongs to another organization", grants.ErrInvalidInput, in.ProjectID)
		}
	}
	d := grants.Document{
		ID:         ids.New(),
		OrgID:      orgID,
		ProjectID:  in.ProjectID,
		Name:       strings.TrimSpace(in.Name),
		StorageKey: in.StorageKey,
		Status:     grants.DocumentUploaded,
		Revision:   1,
		UploadedBy: actor,
	}
	if err := s.store.CreateDocument(ctx, &d); err != nil {
		return grants.Document{}, err
	}
	s.record(ctx, actor, "document.create", "document", d.ID, orgID, map[string]any{"project_id": d.ProjectID, "name": d.Name})
	return d, nil
}

func (s *Service) GetDocument(ctx context.Context, actor, id string) (grants.Document, error) {
	if _, err := s.resolver.RequirePermission(ctx, actor, auth.ResourceDocument, id, "read"); err != nil {
		return grants.Document{}, err
	}
	return s.store.GetDocument(ctx, id)
}

// ChangeDocumentStatus approves or rejects a document.
func (s *Service) ChangeDocumentStatus(ctx context.Context, actor, id, status string) (grants.Document, error) {
	switch status {
	case grants.DocumentUploaded, grants.DocumentApproved, grants.DocumentRejected:
	default:
		return grants.Document{}, fmt.Errorf("%w: unknown document status %q", grants.ErrInvalidInput, status)
	}
	if _, err := s.resolver.RequirePermission(ctx, actor, auth.ResourceDocument, id, "change_status"); err != nil {
		return grants.Document{}, err
	}
	d, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return grants.Document{}, err
	}
	from := d.Status
	d.Status = status
	if err := s.store.UpdateDocument(ctx, &d); err != nil {
		return grants.Document{}, err
	}
	s.record(ctx, actor, "document.status", "document", id, d.OrgID, map[string]any{"from": from, "to": status})
	return d, nil
}
