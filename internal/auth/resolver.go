package auth

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"grantflow.org/internal/obs"
)

// Directory exposes the membership data role resolution reads. Lookups of
// missing entities return the directory's not-found error unchanged.
type Directory interface {
	OrgAccess(ctx context.Context, orgID string) (OrgAccess, error)
	ProjectAccess(ctx context.Context, projectID string) (ProjectAccess, error)
	DocumentAccess(ctx context.Context, documentID string) (DocumentAccess, error)
	ApplicationOrg(ctx context.Context, applicationID string) (string, error)
}

// Role sources.
const (
	SourceOrg     = "org"
	SourceProject = "project"
)

// Resolver computes effective roles over the organization / project / document hierarchy.
type Resolver struct {
	dir    Directory
	matrix *Matrix
	now    func() time.Time
}

type ResolverOption func(*Resolver)

// WithClock overrides the time source used to judge delegation expiry.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

func NewResolver(dir Directory, matrix *Matrix, opts ...ResolverOption) *Resolver {
	if matrix == nil {
		matrix = DefaultMatrix()
	}
	r := &Resolver{dir: dir, matrix: matrix, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Matrix returns the permission matrix in use.
func (r *Resolver) Matrix() *Matrix { return r.matrix }

// FirstEffectiveAuthorization scans auths in stored order and returns the first
// one held by userID that is active and not expired on today's date.
func FirstEffectiveAuthorization(auths []Authorization, userID string, today time.Time) (Authorization, bool) {
	day := dateOnly(today)
	for _, a := range auths {
		if a.UserID != userID || a.Status != AuthorizationActive {
			continue
		}
		if dateOnly(a.ValidUntil).Before(day) {
			continue
		}
		return a, true
	}
	return Authorization{}, false
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ResolveOrgRole returns the user's role in the organization, nil when the user
// is not a member. A delegate without an effective authorization is returned
// with Active=false.
func (r *Resolver) ResolveOrgRole(ctx context.Context, userID, orgID string) (*RoleInfo, error) {
	access, err := r.dir.OrgAccess(ctx, orgID)
	if err != nil {
		return nil, err
	}
	member, ok := findMember(access.Members, userID)
	if !ok {
		return nil, nil
	}
	role := r.normalizeRole(ctx, member.Role, orgID)
	if role != RoleDelegate {
		return &RoleInfo{Role: role, Active: true, Scope: []string{}, Source: SourceOrg}, nil
	}
	auth, ok := FirstEffectiveAuthorization(access.Authorizations, userID, r.now())
	if !ok {
		return &RoleInfo{Role: RoleDelegate, Active: false, Scope: []string{}, Source: SourceOrg}, nil
	}
	return &RoleInfo{
		Role:            RoleDelegate,
		Active:          true,
		Scope:           slices.Clone(auth.Scope),
		Source:          SourceOrg,
		AuthorizationID: auth.ID,
	}, nil
}

// ResolveProjectRole prefers direct project membership and otherwise inherits
// the organization role, but only while it is active.
func (r *Resolver) ResolveProjectRole(ctx context.Context, userID, projectID string) (*RoleInfo, error) {
	info, _, err := r.projectRole(ctx, userID, projectID)
	return info, err
}

func (r *Resolver) projectRole(ctx context.Context, userID, projectID string) (info, orgInfo *RoleInfo, err error) {
	access, err := r.dir.ProjectAccess(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	if member, ok := findMember(access.Members, userID); ok {
		role := r.normalizeRole(ctx, member.Role, projectID)
		return &RoleInfo{Role: role, Active: true, Scope: []string{}, Source: SourceProject}, nil, nil
	}
	orgInfo, err = r.ResolveOrgRole(ctx, userID, access.OrgID)
	if err != nil {
		return nil, nil, err
	}
	if orgInfo != nil && orgInfo.Active {
		return orgInfo, orgInfo, nil
	}
	return nil, orgInfo, nil
}

// ResolveDocumentRole returns the first role, organization path before project
// path, that grants permission on the document. Nil means neither path does.
func (r *Resolver) ResolveDocumentRole(ctx context.Context, userID, documentID, permission string) (*RoleInfo, error) {
	info, _, err := r.documentRole(ctx, userID, documentID, permission)
	return info, err
}

func (r *Resolver) documentRole(ctx context.Context, userID, documentID, permission string) (*RoleInfo, []*RoleInfo, error) {
	access, err := r.dir.DocumentAccess(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	orgInfo, err := r.ResolveOrgRole(ctx, userID, access.OrgID)
	if err != nil {
		return nil, nil, err
	}
	if r.Allows(orgInfo, ResourceDocument, permission) {
		return orgInfo, nil, nil
	}
	seen := []*RoleInfo{orgInfo}
	if access.ProjectID != "" {
		projInfo, _, err := r.projectRole(ctx, userID, access.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		if r.Allows(projInfo, ResourceDocument, permission) {
			return projInfo, nil, nil
		}
		seen = append(seen, projInfo)
	}
	return nil, seen, nil
}

// Allows evaluates info against the matrix. Roles derived from a delegation are
// further limited to the delegation's scope.
func (r *Resolver) Allows(info *RoleInfo, rt ResourceType, action string) bool {
	if info == nil || !info.Active {
		return false
	}
	if !r.matrix.Has(info.Role, rt, action) {
		return false
	}
	if info.AuthorizationID != "" {
		return slices.Contains(info.Scope, action)
	}
	return true
}

func (r *Resolver) normalizeRole(ctx context.Context, role Role, scopeID string) Role {
	parsed, ok := ParseRole(string(role))
	if !ok {
		obs.FromContext(ctx).Warn("unknown role, using least privilege",
			zap.String("role", string(role)),
			zap.String("scope_id", scopeID),
			zap.String("fallback", string(parsed)),
		)
	}
	return parsed
}

func findMember(members []Member, userID string) (Member, bool) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Member{}, false
	}
	for _, m := range members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}
