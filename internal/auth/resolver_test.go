package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMissing = errors.New("missing")

type fakeDirectory struct {
	orgs     map[string]OrgAccess
	projects map[string]ProjectAccess
	docs     map[string]DocumentAccess
	apps     map[string]string
}

func (f *fakeDirectory) OrgAccess(_ context.Context, id string) (OrgAccess, error) {
	o, ok := f.orgs[id]
	if !ok {
		return OrgAccess{}, errMissing
	}
	return o, nil
}

func (f *fakeDirectory) ProjectAccess(_ context.Context, id string) (ProjectAccess, error) {
	p, ok := f.projects[id]
	if !ok {
		return ProjectAccess{}, errMissing
	}
	return p, nil
}

func (f *fakeDirectory) DocumentAccess(_ context.Context, id string) (DocumentAccess, error) {
	d, ok := f.docs[id]
	if !ok {
		return DocumentAccess{}, errMissing
	}
	return d, nil
}

func (f *fakeDirectory) ApplicationOrg(_ context.Context, id string) (string, error) {
	o, ok := f.apps[id]
	if !ok {
		return "", errMissing
	}
	return o, nil
}

var today = time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)

func newFixture() *fakeDirectory {
	return &fakeDirectory{
		orgs: map[string]OrgAccess{
			"org-1": {
				OrgID: "org-1",
				Members: []Member{
					{UserID: "owner", Role: RoleOwner},
					{UserID: "delegate", Role: RoleDelegate},
					{UserID: "consultant", Role: RoleConsultant},
					{UserID: "legacy", Role: Role("imputernicit")},
				},
			},
		},
		projects: map[string]ProjectAccess{
			"proj-1": {ProjectID: "proj-1", OrgID: "org-1", Members: []Member{{UserID: "outsider", Role: RoleConsultant}}},
		},
		docs: map[string]DocumentAccess{
			"doc-1": {DocumentID: "doc-1", OrgID: "org-1", ProjectID: "proj-1"},
			"doc-2": {DocumentID: "doc-2", OrgID: "org-1"},
		},
		apps: map[string]string{"app-1": "org-1"},
	}
}

func withAuthorizations(dir *fakeDirectory, auths ...Authorization) {
	org := dir.orgs["org-1"]
	org.Authorizations = auths
	dir.orgs["org-1"] = org
}

func newTestResolver(dir Directory) *Resolver {
	return NewResolver(dir, DefaultMatrix(), WithClock(func() time.Time { return today }))
}

func TestResolveOrgRole_OwnerAndNonMember(t *testing.T) {
	r := newTestResolver(newFixture())
	ctx := context.Background()

	info, err := r.ResolveOrgRole(ctx, "owner", "org-1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, RoleOwner, info.Role)
	assert.True(t, info.Active)

	info, err = r.ResolveOrgRole(ctx, "stranger", "org-1")
	require.NoError(t, err)
	assert.Nil(t, info)

	_, err = r.ResolveOrgRole(ctx, "owner", "org-x")
	assert.ErrorIs(t, err, errMissing)
}

func TestResolveOrgRole_DelegateWithoutAuthorizationIsInactive(t *testing.T) {
	r := newTestResolver(newFixture())

	info, err := r.ResolveOrgRole(context.Background(), "delegate", "org-1")
	require.NoError(t, err)
	require.NotNil(t, info, "an unauthorized delegate is still a member")
	assert.Equal(t, RoleDelegate, info.Role)
	assert.False(t, info.Active)
	assert.Empty(t, info.Scope)
}

func TestResolveOrgRole_ExpiredDelegation(t *testing.T) {
	dir := newFixture()
	withAuthorizations(dir, Authorization{ID: "a1", UserID: "delegate", Scope: []string{"read"}, ValidUntil: today.AddDate(0, 0, -1), Status: AuthorizationActive})
	r := newTestResolver(dir)

	info, err := r.ResolveOrgRole(context.Background(), "delegate", "org-1")
	require.NoError(t, err)
	assert.False(t, info.Active)

	_, err = r.RequirePermission(context.Background(), "delegate", ResourceProject, "proj-1", "read")
	reason, ok := DenialReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonExpiredDelegation, reason)
}

func TestResolveOrgRole_ValidUntilTodayIsEffective(t *testing.T) {
	dir := newFixture()
	endOfDay := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	withAuthorizations(dir, Authorization{ID: "a1", UserID: "delegate", Scope: []string{"read"}, ValidUntil: endOfDay, Status: AuthorizationActive})
	r := newTestResolver(dir)

	info, err := r.ResolveOrgRole(context.Background(), "delegate", "org-1")
	require.NoError(t, err)
	assert.True(t, info.Active)
}

func TestResolveOrgRole_FirstMatchInListOrderWins(t *testing.T) {
	dir := newFixture()
	withAuthorizations(dir,
		Authorization{ID: "revoked", UserID: "delegate", Scope: []string{"read", "write"}, ValidUntil: today.AddDate(1, 0, 0), Status: AuthorizationRevoked},
		Authorization{ID: "other-user", UserID: "consultant", Scope: []string{"write"}, ValidUntil: today.AddDate(1, 0, 0), Status: AuthorizationActive},
		Authorization{ID: "first", UserID: "delegate", Scope: []string{"read"}, ValidUntil: today.AddDate(0, 0, 10), Status: AuthorizationActive},
		Authorization{ID: "second", UserID: "delegate", Scope: []string{"read", "write"}, ValidUntil: today.AddDate(1, 0, 0), Status: AuthorizationActive},
	)
	r := newTestResolver(dir)

	info, err := r.ResolveOrgRole(context.Background(), "delegate", "org-1")
	require.NoError(t, err)
	assert.True(t, info.Active)
	assert.Equal(t, "first", info.AuthorizationID)
	assert.Equal(t, []string{"read"}, info.Scope)
}

func TestRequirePermission_DelegateScopeLimitsMatrix(t *testing.T) {
	dir := newFixture()
	withAuthorizations(dir, Authorization{ID: "a1", UserID: "delegate", Scope: []string{"read"}, ValidUntil: today.AddDate(0, 0, 30), Status: AuthorizationActive})
	r := newTestResolver(dir)
	ctx := context.Background()

	info, err := r.RequirePermission(ctx, "delegate", ResourceProject, "proj-1", "read")
	require.NoError(t, err)
	assert.Equal(t, RoleDelegate, info.Role)
	assert.Equal(t, SourceOrg, info.Source)

	_, err = r.RequirePermission(ctx, "delegate", ResourceProject, "proj-1", "write")
	reason, ok := DenialReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonInsufficientRole, reason)
}

func TestResolveProjectRole_DirectMembershipWins(t *testing.T) {
	dir := newFixture()
	proj := dir.projects["proj-1"]
	proj.Members = append(proj.Members, Member{UserID: "owner", Role: RoleViewer})
	dir.projects["proj-1"] = proj
	r := newTestResolver(dir)

	info, err := r.ResolveProjectRole(context.Background(), "owner", "proj-1")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, info.Role, "project membership replaces the org role")
	assert.Equal(t, SourceProject, info.Source)

	_, err = r.RequirePermission(context.Background(), "owner", ResourceProject, "proj-1", "write")
	reason, _ := DenialReason(err)
	assert.Equal(t, ReasonInsufficientRole, reason)
}

func TestResolveProjectRole_InheritsActiveOrgRoleOnly(t *testing.T) {
	r := newTestResolver(newFixture())
	ctx := context.Background()

	info, err := r.ResolveProjectRole(ctx, "owner", "proj-1")
	require.NoError(t, err)
	assert.Equal(t, RoleOwner, info.Role)
	assert.Equal(t, SourceOrg, info.Source)

	info, err = r.ResolveProjectRole(ctx, "delegate", "proj-1")
	require.NoError(t, err)
	assert.Nil(t, info, "inactive org roles do not propagate")

	info, err = r.ResolveProjectRole(ctx, "outsider", "proj-1")
	require.NoError(t, err)
	assert.Equal(t, RoleConsultant, info.Role)

	_, err = r.RequirePermission(ctx, "stranger", ResourceProject, "proj-1", "read")
	reason, _ := DenialReason(err)
	assert.Equal(t, ReasonNotMember, reason)
}

func TestRequirePermission_Org(t *testing.T) {
	r := newTestResolver(newFixture())
	ctx := context.Background()

	_, err := r.RequirePermission(ctx, "owner", ResourceOrg, "org-1", "manage_members")
	require.NoError(t, err)

	_, err = r.RequirePermission(ctx, "consultant", ResourceOrg, "org-1", "read")
	reason, _ := DenialReason(err)
	assert.Equal(t, ReasonInsufficientRole, reason)

	_, err = r.RequirePermission(ctx, "delegate", ResourceOrg, "org-1", "read")
	reason, _ = DenialReason(err)
	assert.Equal(t, ReasonExpiredDelegation, reason)

	_, err = r.RequirePermission(ctx, "nobody", ResourceOrg, "org-1", "read")
	reason, _ = DenialReason(err)
	assert.Equal(t, ReasonNotMember, reason)

	_, err = r.RequirePermission(ctx, "owner", ResourceType("galaxy"), "org-1", "read")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRequirePermission_UnknownRoleIsLeastPrivilege(t *testing.T) {
	r := newTestResolver(newFixture())
	ctx := context.Background()

	info, err := r.RequirePermission(ctx, "legacy", ResourceProject, "proj-1", "read")
	require.NoError(t, err)
	assert.Equal(t, LeastPrivilegeRole, info.Role)

	_, err = r.RequirePermission(ctx, "legacy", ResourceProject, "proj-1", "write")
	reason, _ := DenialReason(err)
	assert.Equal(t, ReasonInsufficientRole, reason)
}

func TestRequirePermission_DocumentPaths(t *testing.T) {
	r := newTestResolver(newFixture())
	ctx := context.Background()

	info, err := r.RequirePermission(ctx, "owner", ResourceDocument, "doc-1", "change_status")
	require.NoError(t, err)
	assert.Equal(t, SourceOrg, info.Source)

	info, err = r.RequirePermission(ctx, "outsider", ResourceDocument, "doc-1", "upload")
	require.NoError(t, err, "project membership grants through the project path")
	assert.Equal(t, SourceProject, info.Source)

	_, err = r.RequirePermission(ctx, "outsider", ResourceDocument, "doc-1", "delete")
	reason, _ := DenialReason(err)
	assert.Equal(t, ReasonInsufficientRole, reason)

	_, err = r.RequirePermission(ctx, "outsider", ResourceDocument, "doc-2", "read")
	reason, _ = DenialReason(err)
	assert.Equal(t, ReasonNotMember, reason, "org-level documents ignore project memberships")

	_, err = r.RequirePermission(ctx, "delegate", ResourceDocument, "doc-1", "read")
	reason, _ = DenialReason(err)
	assert.Equal(t, ReasonExpiredDelegation, reason)

	got, err := r.ResolveDocumentRole(ctx, "consultant", "doc-2", "write")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRequirePermission_ApplicationUsesOrgRoleOnProjectColumn(t *testing.T) {
	r := newTestResolver(newFixture())
	ctx := context.Background()

	_, err := r.RequirePermission(ctx, "owner", ResourceApplication, "app-1", "transition")
	require.NoError(t, err)

	_, err = r.RequirePermission(ctx, "consultant", ResourceApplication, "app-1", "transition")
	reason, _ := DenialReason(err)
	assert.Equal(t, ReasonInsufficientRole, reason)

	_, err = r.RequirePermission(ctx, "owner", ResourceApplication, "app-x", "read")
	assert.ErrorIs(t, err, errMissing)
}
