package grants

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantflow.org/internal/auth"
	"grantflow.org/internal/lifecycle"
)

func seedOrg(t *testing.T, s *InMemory) Organization {
	t.Helper()
	org := Organization{ID: "org-1", Name: "Acme"}
	require.NoError(t, org.AddMember(auth.Member{UserID: "owner", Role: auth.RoleOwner}))
	require.NoError(t, s.CreateOrganization(context.Background(), &org))
	return org
}

func seedProject(t *testing.T, s *InMemory, id string) Project {
	t.Helper()
	at := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	p := Project{
		ID:          id,
		OrgID:       "org-1",
		Title:       "Solar",
		Status:      lifecycle.ProjectDraft,
		StatusLabel: lifecycle.Project.Label(lifecycle.ProjectDraft),
		History:     lifecycle.ProjectGenesis("owner", at),
	}
	require.NoError(t, s.CreateProject(context.Background(), &p))
	return p
}

func TestInMemoryOrganizationVersioning(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	org := seedOrg(t, s)
	assert.EqualValues(t, 1, org.Version)

	stale := org
	require.NoError(t, org.AddMember(auth.Member{UserID: "v1", Role: auth.RoleViewer}))
	require.NoError(t, s.UpdateOrganization(ctx, &org))
	assert.EqualValues(t, 2, org.Version)

	require.ErrorIs(t, s.UpdateOrganization(ctx, &stale), ErrConflict)

	got, err := s.GetOrganization(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, got.Members, 2)

	_, err = s.GetOrganization(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	seedOrg(t, s)

	got, err := s.GetOrganization(ctx, "org-1")
	require.NoError(t, err)
	got.Members[0].Role = auth.RoleViewer

	again, err := s.GetOrganization(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleOwner, again.Members[0].Role)
}

func TestInMemoryUpdateProjectPreservesLifecycleFields(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	seedOrg(t, s)
	p := seedProject(t, s, "p1")

	p.Title = "Solar farm"
	p.Status = lifecycle.ProjectApproved
	p.History = nil
	require.NoError(t, s.UpdateProject(ctx, &p))

	got, err := s.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Solar farm", got.Title)
	assert.Equal(t, lifecycle.ProjectDraft, got.Status)
	assert.Len(t, got.History, 1)
	assert.EqualValues(t, 2, got.Version)
}

func TestInMemoryAppendTransition(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	seedOrg(t, s)
	seedProject(t, s, "p1")

	rec, err := s.LoadRecord(ctx, lifecycle.KindProject, "p1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", rec.OrgID)

	entry := lifecycle.HistoryEntry{From: lifecycle.ProjectDraft, To: lifecycle.ProjectPreEligible, By: "owner", At: time.Now().UTC()}
	v, err := s.AppendTransition(ctx, lifecycle.KindProject, "p1", rec.Version, entry, "Pre-eligible")
	require.NoError(t, err)
	assert.Equal(t, rec.Version+1, v)

	_, err = s.AppendTransition(ctx, lifecycle.KindProject, "p1", rec.Version, entry, "Pre-eligible")
	require.ErrorIs(t, err, ErrConflict)

	got, err := s.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.ProjectPreEligible, got.Status)
	assert.Equal(t, "Pre-eligible", got.StatusLabel)
	assert.Len(t, got.History, 2)

	_, err = s.LoadRecord(ctx, lifecycle.KindApplication, "p1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.LoadRecord(ctx, lifecycle.Kind("invoice"), "p1")
	require.ErrorIs(t, err, lifecycle.ErrUnknownKind)
}

func TestInMemoryDeleteOrganizationGuard(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	seedOrg(t, s)
	p := seedProject(t, s, "p1")

	require.ErrorIs(t, s.DeleteOrganization(ctx, "org-1"), ErrActiveDependents)

	s.mu.Lock()
	p.Status = lifecycle.ProjectArchived
	s.proj["p1"] = p
	s.mu.Unlock()

	require.NoError(t, s.AddComplianceReport(ctx, &ComplianceReport{ID: "r1", EntityKind: lifecycle.KindProject, EntityID: "p1", Type: ReportEligibility}))

	require.NoError(t, s.DeleteOrganization(ctx, "org-1"))
	_, err := s.GetProject(ctx, "p1")
	require.ErrorIs(t, err, ErrNotFound)
	s.mu.RLock()
	assert.Empty(t, s.reports)
	s.mu.RUnlock()
	require.ErrorIs(t, s.DeleteOrganization(ctx, "org-1"), ErrNotFound)
}

func TestInMemoryDeleteOrganizationBlockedByApplications(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	seedOrg(t, s)
	app := Application{ID: "a1", CompanyID: "org-1", CallID: "c1", Status: lifecycle.AppCallSelected}
	require.NoError(t, s.CreateApplication(ctx, &app))

	require.ErrorIs(t, s.DeleteOrganization(ctx, "org-1"), ErrActiveDependents)
}

func TestInMemoryDirectory(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	seedOrg(t, s)
	p := seedProject(t, s, "p1")
	p.Members = []auth.Member{{UserID: "pm", Role: auth.RoleConsultant}}
	require.NoError(t, s.UpdateProject(ctx, &p))

	doc := Document{ID: "d1", OrgID: "org-1", ProjectID: "p1", Name: "budget.xlsx", Status: DocumentUploaded}
	require.NoError(t, s.CreateDocument(ctx, &doc))
	bad := Document{ID: "d2", OrgID: "org-1", ProjectID: "nope"}
	require.ErrorIs(t, s.CreateDocument(ctx, &bad), ErrNotFound)

	orgAccess, err := s.OrgAccess(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, orgAccess.Members, 1)

	projAccess, err := s.ProjectAccess(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", projAccess.OrgID)
	assert.Equal(t, "pm", projAccess.Members[0].UserID)

	docAccess, err := s.DocumentAccess(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, auth.DocumentAccess{DocumentID: "d1", OrgID: "org-1", ProjectID: "p1"}, docAccess)

	_, err = s.OrgAccess(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryDocumentProjectMustShareOrganization(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	seedOrg(t, s)
	seedProject(t, s, "p1")
	other := Organization{ID: "org-2", Name: "Other"}
	require.NoError(t, s.CreateOrganization(ctx, &other))

	doc := Document{ID: "d1", OrgID: "org-2", ProjectID: "p1", Name: "budget.xlsx", Status: DocumentUploaded}
	require.ErrorIs(t, s.CreateDocument(ctx, &doc), ErrInvalidInput)
	_, err := s.GetDocument(ctx, "d1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryComplianceReports(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	seedOrg(t, s)
	seedProject(t, s, "p1")

	require.NoError(t, s.AddComplianceReport(ctx, &ComplianceReport{ID: "r1", EntityKind: lifecycle.KindProject, EntityID: "p1", Type: ReportEligibility, Result: "eligible"}))
	require.ErrorIs(t, s.AddComplianceReport(ctx, &ComplianceReport{ID: "r2", EntityKind: lifecycle.KindApplication, EntityID: "p1"}), ErrNotFound)

	got, err := s.ListComplianceReports(ctx, lifecycle.KindProject, "p1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ReportEligibility, got[0].Type)
	assert.False(t, got[0].CreatedAt.IsZero())
}
