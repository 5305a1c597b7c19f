package controlplane

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"grantflow.org/internal/audit"
	"grantflow.org/internal/auth"
	"grantflow.org/internal/events"
	"grantflow.org/internal/grants"
	"grantflow.org/internal/lifecycle"
	"grantflow.org/internal/narrative"
	"grantflow.org/internal/obs"
)

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	store  *grants.InMemory
	audit  *audit.MemoryStore
	broker *events.Broker
	org    grants.Organization
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Cleanup(obs.SetLogger(zap.NewNop()))
	store := grants.NewInMemory()
	auditStore := audit.NewMemoryStore()
	broker := events.NewBroker()
	svc := New(store, audit.NewTrail(auditStore), Options{
		Narrator: narrative.Template{},
		Broker:   broker,
		Clock:    func() time.Time { return testNow },
	})
	ctx := context.Background()
	org, err := svc.CreateOrganization(ctx, "owner", "owner@acme.test", NewOrganization{Name: "Acme"})
	require.NoError(t, err)
	for _, m := range []NewMember{
		{UserID: "delegate", Role: auth.RoleDelegate},
		{UserID: "consultant", Role: auth.RoleConsultant},
		{UserID: "viewer", Role: auth.RoleViewer},
	} {
		org, err = svc.AddMember(ctx, "owner", org.ID, m)
		require.NoError(t, err)
	}
	return &fixture{svc: svc, store: store, audit: auditStore, broker: broker, org: org}
}

func (f *fixture) project(t *testing.T) grants.Project {
	t.Helper()
	p, err := f.svc.CreateProject(context.Background(), "owner", f.org.ID, ProjectConfig{Title: ptr("Solar roof")})
	require.NoError(t, err)
	return p
}

func (f *fixture) application(t *testing.T) grants.Application {
	t.Helper()
	a, err := f.svc.CreateApplication(context.Background(), "owner", f.org.ID, NewApplication{
		CallID:    "pnrr-c9",
		CallTitle: "PNRR C9 digitalisation",
		Title:     "ERP rollout",
	})
	require.NoError(t, err)
	return a
}

func ptr[T any](v T) *T { return &v }

func denialReason(t *testing.T, err error) string {
	t.Helper()
	reason, ok := auth.DenialReason(err)
	require.True(t, ok, "expected permission denial, got %v", err)
	return reason
}

func TestCreateOrganizationMakesCreatorOwner(t *testing.T) {
	f := newFixture(t)
	owner, ok := f.org.Member("owner")
	require.True(t, ok)
	assert.Equal(t, auth.RoleOwner, owner.Role)

	_, err := f.svc.AddMember(context.Background(), "owner", f.org.ID, NewMember{UserID: "viewer", Role: auth.RoleConsultant})
	require.ErrorIs(t, err, grants.ErrAlreadyExists)

	_, err = f.svc.AddMember(context.Background(), "consultant", f.org.ID, NewMember{UserID: "x", Role: auth.RoleViewer})
	assert.Equal(t, auth.ReasonInsufficientRole, denialReason(t, err))
}

func TestDelegateScopeLimitsProjectPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)

	_, err := f.svc.GrantAuthorization(ctx, "owner", f.org.ID, NewAuthorization{
		UserID:     "delegate",
		Scope:      []string{"read"},
		ValidUntil: auth.DateOf(testNow.AddDate(0, 1, 0)),
	})
	require.NoError(t, err)

	info, err := f.svc.ResolvePermission(ctx, "delegate", auth.ResourceProject, p.ID, "read")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleDelegate, info.Role)
	assert.Equal(t, []string{"read"}, info.Scope)

	_, err = f.svc.ResolvePermission(ctx, "delegate", auth.ResourceProject, p.ID, "write")
	assert.Equal(t, auth.ReasonInsufficientRole, denialReason(t, err))

	_, err = f.svc.ResolvePermission(ctx, "stranger", auth.ResourceProject, p.ID, "read")
	assert.Equal(t, auth.ReasonNotMember, denialReason(t, err))
}

func TestExpiredDelegationIsDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)

	_, err := f.svc.GrantAuthorization(ctx, "owner", f.org.ID, NewAuthorization{
		UserID:     "delegate",
		Scope:      []string{"read", "write"},
		ValidUntil: auth.DateOf(testNow.AddDate(0, 0, -1)),
	})
	require.NoError(t, err)

	_, err = f.svc.ResolvePermission(ctx, "delegate", auth.ResourceProject, p.ID, "read")
	assert.Equal(t, auth.ReasonExpiredDelegation, denialReason(t, err))
}

func TestValidUntilTodayIsStillEffective(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)

	_, err := f.svc.GrantAuthorization(ctx, "owner", f.org.ID, NewAuthorization{
		UserID:     "delegate",
		Scope:      []string{"read"},
		ValidUntil: auth.DateOf(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	_, err = f.svc.ResolvePermission(ctx, "delegate", auth.ResourceProject, p.ID, "read")
	require.NoError(t, err)
}

func TestRevokedAuthorizationStopsApplying(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)

	a, err := f.svc.GrantAuthorization(ctx, "owner", f.org.ID, NewAuthorization{
		UserID: "delegate", Scope: []string{"read"}, ValidUntil: auth.DateOf(testNow.AddDate(1, 0, 0)),
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.RevokeAuthorization(ctx, "owner", f.org.ID, a.ID))

	_, err = f.svc.ResolvePermission(ctx, "delegate", auth.ResourceProject, p.ID, "read")
	assert.Equal(t, auth.ReasonExpiredDelegation, denialReason(t, err))

	org, err := f.store.GetOrganization(ctx, f.org.ID)
	require.NoError(t, err)
	require.Len(t, org.Authorizations, 1)
	assert.Equal(t, auth.AuthorizationRevoked, org.Authorizations[0].Status)
}

func TestGrantAuthorizationValidatesScope(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GrantAuthorization(context.Background(), "owner", f.org.ID, NewAuthorization{
		UserID: "delegate", Scope: []string{"delete"}, ValidUntil: auth.DateOf(testNow.AddDate(0, 1, 0)),
	})
	require.ErrorIs(t, err, grants.ErrInvalidInput)

	_, err = f.svc.GrantAuthorization(context.Background(), "owner", f.org.ID, NewAuthorization{
		UserID: "consultant", Scope: []string{"read"}, ValidUntil: auth.DateOf(testNow.AddDate(0, 1, 0)),
	})
	require.ErrorIs(t, err, grants.ErrInvalidInput)
}

func TestGetOrganizationHidesDelegationsFromLimitedReaders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.GrantAuthorization(ctx, "owner", f.org.ID, NewAuthorization{
		UserID: "delegate", Scope: []string{"read"}, ValidUntil: auth.DateOf(testNow.AddDate(0, 1, 0)),
	})
	require.NoError(t, err)

	full, err := f.svc.GetOrganization(ctx, "owner", f.org.ID)
	require.NoError(t, err)
	assert.Len(t, full.Authorizations, 1)

	limited, err := f.svc.GetOrganization(ctx, "viewer", f.org.ID)
	require.NoError(t, err)
	assert.Empty(t, limited.Authorizations)
	assert.Len(t, limited.Members, 4)

	_, err = f.svc.GetOrganization(ctx, "stranger", f.org.ID)
	assert.Equal(t, auth.ReasonNotMember, denialReason(t, err))
}

func TestWatchOrganizationAcceptsEveryActiveRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, user := range []string{"owner", "consultant", "viewer"} {
		assert.NoError(t, f.svc.WatchOrganization(ctx, user, f.org.ID), user)
	}
	assert.Equal(t, auth.ReasonExpiredDelegation, denialReason(t, f.svc.WatchOrganization(ctx, "delegate", f.org.ID)))
	assert.Equal(t, auth.ReasonNotMember, denialReason(t, f.svc.WatchOrganization(ctx, "stranger", f.org.ID)))

	_, err := f.svc.GrantAuthorization(ctx, "owner", f.org.ID, NewAuthorization{
		UserID: "delegate", Scope: []string{"read"}, ValidUntil: auth.DateOf(testNow),
	})
	require.NoError(t, err)
	assert.NoError(t, f.svc.WatchOrganization(ctx, "delegate", f.org.ID))

	assert.ErrorIs(t, f.svc.WatchOrganization(ctx, "owner", "missing-org"), grants.ErrNotFound)
}

func TestProjectGenesisAndDirectMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)

	assert.Equal(t, lifecycle.ProjectDraft, p.Status)
	require.Len(t, p.History, 1)
	assert.Equal(t, lifecycle.State(""), p.History[0].From)
	assert.Equal(t, "owner", p.History[0].By)

	_, err := f.svc.ResolvePermission(ctx, "viewer", auth.ResourceProject, p.ID, "write")
	assert.Equal(t, auth.ReasonInsufficientRole, denialReason(t, err))

	_, err = f.svc.AddProjectMember(ctx, "owner", p.ID, NewMember{UserID: "viewer", Role: auth.RoleOwner})
	require.NoError(t, err)
	info, err := f.svc.ResolvePermission(ctx, "viewer", auth.ResourceProject, p.ID, "write")
	require.NoError(t, err)
	assert.Equal(t, auth.SourceProject, info.Source)
}

func TestTransitionRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)
	sub, cancel := context.WithCancel(ctx)
	defer cancel()
	feed := f.broker.Subscribe(sub, f.org.ID)

	res, err := f.svc.Transition(ctx, lifecycle.KindProject, p.ID, lifecycle.ProjectPreEligible, "owner", "documents look fine")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.ProjectDraft, res.Entry.From)
	assert.Equal(t, "Pre-eligible", res.Label)

	evt := <-feed
	assert.Equal(t, p.ID, evt.ID)
	assert.Equal(t, lifecycle.ProjectPreEligible, evt.To)
	assert.False(t, evt.Automated)

	_, err = f.svc.Transition(ctx, lifecycle.KindProject, p.ID, lifecycle.ProjectApproved, "owner", "")
	var illegal *lifecycle.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, lifecycle.ProjectPreEligible, illegal.From)
	assert.Equal(t, lifecycle.ProjectApproved, illegal.To)

	_, err = f.svc.Transition(ctx, lifecycle.KindProject, p.ID, lifecycle.ProjectBlocked, "viewer", "")
	assert.Equal(t, auth.ReasonInsufficientRole, denialReason(t, err))

	_, err = f.svc.Transition(ctx, lifecycle.KindProject, "missing", lifecycle.ProjectBlocked, "owner", "")
	require.ErrorIs(t, err, grants.ErrNotFound)

	got, err := f.svc.GetProject(ctx, "owner", p.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.ProjectPreEligible, got.Status)
	assert.Len(t, got.History, 2)

	entries, err := f.svc.AuditLog(ctx, "owner", lifecycle.KindProject, p.ID, 0)
	require.NoError(t, err)
	var transitions int
	for _, e := range entries {
		if e.Action == "project.transition" {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions)
}

func TestArchivedProjectIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)
	for _, to := range []lifecycle.State{
		lifecycle.ProjectPreEligible, lifecycle.ProjectCompliant, lifecycle.ProjectSubmitted,
		lifecycle.ProjectRejected, lifecycle.ProjectArchived,
	} {
		_, err := f.svc.Transition(ctx, lifecycle.KindProject, p.ID, to, "owner", "")
		require.NoError(t, err, "to %s", to)
	}
	for _, to := range lifecycle.Project.States() {
		_, err := f.svc.Transition(ctx, lifecycle.KindProject, p.ID, to, "owner", "")
		var illegal *lifecycle.IllegalTransitionError
		require.ErrorAs(t, err, &illegal, "archived -> %s", to)
	}
}

func TestConcurrentTransitionsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)

	const n = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transition(ctx, lifecycle.KindProject, p.ID, lifecycle.ProjectBlocked, "owner", "race")
			var illegal *lifecycle.IllegalTransitionError
			switch {
			case err == nil:
				mu.Lock()
				wins++
				mu.Unlock()
			case errors.Is(err, lifecycle.ErrConflict), errors.As(err, &illegal):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	got, err := f.store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.ProjectBlocked, got.Status)
	assert.Len(t, got.History, 2)
}

func TestApplicationGenesisAndGuideAutoTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.application(t)

	assert.Equal(t, lifecycle.AppCallSelected, a.Status)
	require.Len(t, a.History, 2)
	assert.Equal(t, lifecycle.AppDraft, a.History[0].To)
	assert.Equal(t, lifecycle.AppDraft, a.History[1].From)
	assert.Equal(t, "call selected: PNRR C9 digitalisation", a.History[1].Reason)

	_, err := f.svc.AttachGuide(ctx, "owner", lifecycle.KindApplication, a.ID, NewGuideAsset{Name: "Applicant guide v2"})
	require.NoError(t, err)

	got, err := f.svc.GetApplication(ctx, "viewer", a.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.AppGuideReady, got.Status)
	last := got.History[len(got.History)-1]
	assert.Equal(t, SystemActor, last.By)
	assert.Equal(t, lifecycle.AppCallSelected, last.From)

	entries, err := f.audit.ListAudit(ctx, audit.Filter{EntityID: a.ID, Action: "application.transition"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].Details["automated"])

	_, err = f.svc.AttachGuide(ctx, "owner", lifecycle.KindApplication, a.ID, NewGuideAsset{Name: "Errata"})
	require.NoError(t, err)
	got, err = f.svc.GetApplication(ctx, "owner", a.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.AppGuideReady, got.Status)
	assert.Len(t, got.GuideAssets, 2)
}

func TestAutoTransitionNamesAutomation(t *testing.T) {
	f := newFixture(t)
	a := f.application(t)
	res, err := f.svc.AutoTransition(context.Background(), lifecycle.KindApplication, a.ID, lifecycle.AppGuideReady, "ocr-worker", "guide parsed")
	require.NoError(t, err)
	assert.Equal(t, "automation:ocr-worker", res.Entry.By)

	_, err = f.svc.AutoTransition(context.Background(), lifecycle.KindApplication, a.ID, lifecycle.AppMonitoring, "ocr-worker", "")
	var illegal *lifecycle.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
}

func TestFrozenChecklistRejectsAdditionsButAcceptsUploads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.application(t)

	req, err := f.svc.AddRequiredDocument(ctx, "owner", lifecycle.KindApplication, a.ID, NewRequiredDocument{Name: "Balance sheet 2025"})
	require.NoError(t, err)
	_, err = f.svc.FreezeChecklist(ctx, "owner", a.ID)
	require.NoError(t, err)

	_, err = f.svc.AddRequiredDocument(ctx, "owner", lifecycle.KindApplication, a.ID, NewRequiredDocument{Name: "Statute"})
	require.ErrorIs(t, err, grants.ErrChecklistFrozen)

	doc, err := f.svc.UploadRequiredDocument(ctx, "consultant", lifecycle.KindApplication, a.ID, NewUpload{
		RequiredDocumentID: req.ID,
		FileName:           "bilant-2025.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, f.org.ID, doc.OrgID)

	got, err := f.svc.GetApplication(ctx, "owner", a.ID)
	require.NoError(t, err)
	require.Len(t, got.RequiredDocuments, 1)
	assert.Equal(t, doc.ID, got.RequiredDocuments[0].DocumentID)
	assert.Equal(t, lifecycle.AppCallSelected, got.Status)
}

func TestDeleteOrganizationGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.project(t)

	require.ErrorIs(t, f.svc.DeleteOrganization(ctx, "owner", f.org.ID), grants.ErrActiveDependents)

	err := f.svc.DeleteOrganization(ctx, "viewer", f.org.ID)
	assert.Equal(t, auth.ReasonInsufficientRole, denialReason(t, err))

	empty, err := f.svc.CreateOrganization(ctx, "owner", "", NewOrganization{Name: "Empty SRL"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteOrganization(ctx, "owner", empty.ID))
	_, err = f.store.GetOrganization(ctx, empty.ID)
	require.ErrorIs(t, err, grants.ErrNotFound)
}

func TestDocumentPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.project(t)

	doc, err := f.svc.CreateDocument(ctx, "consultant", f.org.ID, NewDocument{ProjectID: p.ID, Name: "offer.pdf"})
	require.NoError(t, err)

	_, err = f.svc.ChangeDocumentStatus(ctx, "consultant", doc.ID, grants.DocumentApproved)
	assert.Equal(t, auth.ReasonInsufficientRole, denialReason(t, err))

	got, err := f.svc.ChangeDocumentStatus(ctx, "owner", doc.ID, grants.DocumentApproved)
	require.NoError(t, err)
	assert.Equal(t, grants.DocumentApproved, got.Status)

	_, err = f.svc.CreateDocument(ctx, "viewer", f.org.ID, NewDocument{Name: "notes.txt"})
	assert.Equal(t, auth.ReasonInsufficientRole, denialReason(t, err))
}

func TestCreateDocumentRejectsProjectOfAnotherOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := f.svc.CreateOrganization(ctx, "consultant", "", NewOrganization{Name: "Other SRL"})
	require.NoError(t, err)
	p := f.project(t)

	_, err = f.svc.CreateDocument(ctx, "consultant", other.ID, NewDocument{ProjectID: p.ID, Name: "offer.pdf"})
	require.ErrorIs(t, err, grants.ErrInvalidInput)

	_, err = f.svc.CreateDocument(ctx, "consultant", other.ID, NewDocument{ProjectID: "missing", Name: "offer.pdf"})
	assert.ErrorIs(t, err, grants.ErrNotFound)

	doc, err := f.svc.CreateDocument(ctx, "consultant", f.org.ID, NewDocument{ProjectID: p.ID, Name: "offer.pdf"})
	require.NoError(t, err)
	assert.Equal(t, f.org.ID, doc.OrgID)
}

func TestRunOrchestrationReflectsDossierProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.application(t)

	first, err := f.svc.RunOrchestration(ctx, "viewer", lifecycle.KindApplication, a.ID)
	require.NoError(t, err)
	assert.True(t, first.NeedsAction)
	assert.False(t, first.NarrativeDegraded)

	_, err = f.svc.ConfigureApplication(ctx, "owner", a.ID, ApplicationConfig{
		Description:        ptr("Integrated ERP for production planning"),
		ImplementationSite: ptr("Brasov"),
		BudgetEstimated:    ptr(decimal.RequireFromString("180000")),
		Procurement:        []grants.ProcurementItem{{Name: "ERP licence", Quantity: 1, UnitCost: decimal.RequireFromString("150000")}},
	})
	require.NoError(t, err)
	_, err = f.svc.AttachGuide(ctx, "owner", lifecycle.KindApplication, a.ID, NewGuideAsset{Name: "Guide"})
	require.NoError(t, err)
	req, err := f.svc.AddRequiredDocument(ctx, "owner", lifecycle.KindApplication, a.ID, NewRequiredDocument{Name: "Statute"})
	require.NoError(t, err)
	_, err = f.svc.UploadRequiredDocument(ctx, "owner", lifecycle.KindApplication, a.ID, NewUpload{RequiredDocumentID: req.ID, FileName: "statut.pdf"})
	require.NoError(t, err)
	for _, tpl := range []string{"funding_request", "business_plan", "declarations"} {
		_, err = f.svc.AddDraft(ctx, "owner", lifecycle.KindApplication, a.ID, NewDraft{Template: tpl})
		require.NoError(t, err)
	}
	for _, typ := range []string{grants.ReportEligibility, grants.ReportConformityGrid} {
		_, err = f.svc.RecordComplianceReport(ctx, "consultant", lifecycle.KindApplication, a.ID, NewComplianceReport{Type: typ, Result: "pass"})
		require.NoError(t, err)
	}

	second, err := f.svc.RunOrchestration(ctx, "owner", lifecycle.KindApplication, a.ID)
	require.NoError(t, err)
	assert.False(t, second.NeedsAction)
	assert.Zero(t, second.TotalIssues)

	third, err := f.svc.RunOrchestration(ctx, "owner", lifecycle.KindApplication, a.ID)
	require.NoError(t, err)
	assert.Equal(t, second.Checks, third.Checks)

	reports, err := f.svc.DecisionReports(ctx, "owner", lifecycle.KindApplication, a.ID)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, third.ID, reports[0].ID)

	_, err = f.svc.RunOrchestration(ctx, "stranger", lifecycle.KindApplication, a.ID)
	assert.Equal(t, auth.ReasonNotMember, denialReason(t, err))
}

func TestLifecycleDescription(t *testing.T) {
	f := newFixture(t)
	d, err := f.svc.Lifecycle(lifecycle.KindApplication)
	require.NoError(t, err)
	assert.Len(t, d.States, 13)
	_, err = f.svc.Lifecycle("invoice")
	require.ErrorIs(t, err, lifecycle.ErrUnknownKind)
}
