package grants

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"grantflow.org/internal/auth"
	"grantflow.org/internal/lifecycle"
)

var _ Store = (*InMemory)(nil)

// InMemory is a Store backed by maps. Values are deep-copied on the way in and
// out so callers never share slices with the store.
type InMemory struct {
	mu      sync.RWMutex
	orgs    map[string]Organization
	proj    map[string]Project
	apps    map[string]Application
	docs    map[string]Document
	reports []ComplianceReport
	now     func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		orgs: make(map[string]Organization),
		proj: make(map[string]Project),
		apps: make(map[string]Application),
		docs: make(map[string]Document),
		now:  time.Now,
	}
}

func (s *InMemory) stamp() time.Time { return s.now().UTC() }

// Organizations

func (s *InMemory) CreateOrganization(_ context.Context, org *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[org.ID]; ok {
		return fmt.Errorf("%w: organization %s", ErrAlreadyExists, org.ID)
	}
	now := s.stamp()
	org.CreatedAt, org.UpdatedAt, org.Version = now, now, 1
	s.orgs[org.ID] = cloneOrg(*org)
	return nil
}

func (s *InMemory) GetOrganization(_ context.Context, id string) (Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[id]
	if !ok {
		return Organization{}, fmt.Errorf("%w: organization %s", ErrNotFound, id)
	}
	return cloneOrg(org), nil
}

func (s *InMemory) UpdateOrganization(_ context.Context, org *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orgs[org.ID]
	if !ok {
		return fmt.Errorf("%w: organization %s", ErrNotFound, org.ID)
	}
	if cur.Version != org.Version {
		return ErrConflict
	}
	org.CreatedAt = cur.CreatedAt
	org.UpdatedAt = s.stamp()
	org.Version++
	s.orgs[org.ID] = cloneOrg(*org)
	return nil
}

func (s *InMemory) DeleteOrganization(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[id]; !ok {
		return fmt.Errorf("%w: organization %s", ErrNotFound, id)
	}
	for _, p := range s.proj {
		if p.OrgID == id && p.Status != lifecycle.ProjectArchived {
			return fmt.Errorf("%w: project %s is %s", ErrActiveDependents, p.ID, p.Status)
		}
	}
	for _, a := range s.apps {
		if a.CompanyID == id {
			return fmt.Errorf("%w: application %s", ErrActiveDependents, a.ID)
		}
	}
	delete(s.orgs, id)
	removed := make(map[string]bool)
	for pid, p := range s.proj {
		if p.OrgID == id {
			removed[pid] = true
			delete(s.proj, pid)
		}
	}
	s.reports = slices.DeleteFunc(s.reports, func(r ComplianceReport) bool {
		return r.EntityKind == lifecycle.KindProject && removed[r.EntityID]
	})
	for did, d := range s.docs {
		if d.OrgID == id {
			delete(s.docs, did)
		}
	}
	return nil
}

// Projects

func (s *InMemory) CreateProject(_ context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[p.OrgID]; !ok {
		return fmt.Errorf("%w: organization %s", ErrNotFound, p.OrgID)
	}
	if _, ok := s.proj[p.ID]; ok {
		return fmt.Errorf("%w: project %s", ErrAlreadyExists, p.ID)
	}
	now := s.stamp()
	p.CreatedAt, p.UpdatedAt, p.Version = now, now, 1
	s.proj[p.ID] = cloneProject(*p)
	return nil
}

func (s *InMemory) GetProject(_ context.Context, id string) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proj[id]
	if !ok {
		return Project{}, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	return cloneProject(p), nil
}

func (s *InMemory) UpdateProject(_ context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.proj[p.ID]
	if !ok {
		return fmt.Errorf("%w: project %s", ErrNotFound, p.ID)
	}
	if cur.Version != p.Version {
		return ErrConflict
	}
	p.OrgID = cur.OrgID
	p.Status, p.StatusLabel = cur.Status, cur.StatusLabel
	p.History = slices.Clone(cur.History)
	p.CreatedAt, p.CreatedBy = cur.CreatedAt, cur.CreatedBy
	p.UpdatedAt = s.stamp()
	p.Version++
	s.proj[p.ID] = cloneProject(*p)
	return nil
}

func (s *InMemory) ListProjects(_ context.Context, orgID string) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Project
	for _, p := range s.proj {
		if p.OrgID == orgID {
			out = append(out, cloneProject(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Applications

func (s *InMemory) CreateApplication(_ context.Context, a *Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[a.CompanyID]; !ok {
		return fmt.Errorf("%w: organization %s", ErrNotFound, a.CompanyID)
	}
	if _, ok := s.apps[a.ID]; ok {
		return fmt.Errorf("%w: application %s", ErrAlreadyExists, a.ID)
	}
	now := s.stamp()
	a.CreatedAt, a.UpdatedAt, a.Version = now, now, 1
	s.apps[a.ID] = cloneApplication(*a)
	return nil
}

func (s *InMemory) GetApplication(_ context.Context, id string) (Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.apps[id]
	if !ok {
		return Application{}, fmt.Errorf("%w: application %s", ErrNotFound, id)
	}
	return cloneApplication(a), nil
}

func (s *InMemory) UpdateApplication(_ context.Context, a *Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.apps[a.ID]
	if !ok {
		return fmt.Errorf("%w: application %s", ErrNotFound, a.ID)
	}
	if cur.Version != a.Version {
		return ErrConflict
	}
	a.CompanyID = cur.CompanyID
	a.Status, a.StatusLabel = cur.Status, cur.StatusLabel
	a.History = slices.Clone(cur.History)
	a.CreatedAt, a.CreatedBy = cur.CreatedAt, cur.CreatedBy
	a.UpdatedAt = s.stamp()
	a.Version++
	s.apps[a.ID] = cloneApplication(*a)
	return nil
}

func (s *InMemory) ListApplications(_ context.Context, companyID string) ([]Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Application
	for _, a := range s.apps {
		if a.CompanyID == companyID {
			out = append(out, cloneApplication(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Documents

func (s *InMemory) CreateDocument(_ context.Context, d *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[d.OrgID]; !ok {
		return fmt.Errorf("%w: organization %s", ErrNotFound, d.OrgID)
	}
	if d.ProjectID != "" {
		p, ok := s.proj[d.ProjectID]
		if !ok {
			return fmt.Errorf("%w: project %s", ErrNotFound, d.ProjectID)
		}
		if p.OrgID != d.OrgID {
			return fmt.Errorf("%w: project %s belongs to another organization", ErrInvalidInput, d.ProjectID)
		}
	}
	if _, ok := s.docs[d.ID]; ok {
		return fmt.Errorf("%w: document %s", ErrAlreadyExists, d.ID)
	}
	now := s.stamp()
	d.CreatedAt, d.UpdatedAt, d.Version = now, now, 1
	s.docs[d.ID] = *d
	return nil
}

func (s *InMemory) GetDocument(_ context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return Document{}, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return d, nil
}

func (s *InMemory) UpdateDocument(_ context.Context, d *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[d.ID]
	if !ok {
		return fmt.Errorf("%w: document %s", ErrNotFound, d.ID)
	}
	if cur.Version != d.Version {
		return ErrConflict
	}
	d.OrgID, d.ProjectID, d.CreatedAt = cur.OrgID, cur.ProjectID, cur.CreatedAt
	d.UpdatedAt = s.stamp()
	d.Version++
	s.docs[d.ID] = *d
	return nil
}

// Compliance reports

func (s *InMemory) AddComplianceReport(_ context.Context, r *ComplianceReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.EntityKind {
	case lifecycle.KindProject:
		if _, ok := s.proj[r.EntityID]; !ok {
			return fmt.Errorf("%w: project %s", ErrNotFound, r.EntityID)
		}
	case lifecycle.KindApplication:
		if _, ok := s.apps[r.EntityID]; !ok {
			return fmt.Errorf("%w: application %s", ErrNotFound, r.EntityID)
		}
	default:
		return fmt.Errorf("%w: %q", lifecycle.ErrUnknownKind, r.EntityKind)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.stamp()
	}
	s.reports = append(s.reports, *r)
	return nil
}

func (s *InMemory) ListComplianceReports(_ context.Context, kind lifecycle.Kind, entityID string) ([]ComplianceReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ComplianceReport
	for _, r := range s.reports {
		if r.EntityKind == kind && r.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Lifecycle

func (s *InMemory) LoadRecord(_ context.Context, kind lifecycle.Kind, id string) (lifecycle.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case lifecycle.KindProject:
		p, ok := s.proj[id]
		if !ok {
			return lifecycle.Record{}, fmt.Errorf("%w: project %s", ErrNotFound, id)
		}
		return lifecycle.Record{Kind: kind, ID: id, OrgID: p.OrgID, Status: p.Status, Version: p.Version}, nil
	case lifecycle.KindApplication:
		a, ok := s.apps[id]
		if !ok {
			return lifecycle.Record{}, fmt.Errorf("%w: application %s", ErrNotFound, id)
		}
		return lifecycle.Record{Kind: kind, ID: id, OrgID: a.CompanyID, Status: a.Status, Version: a.Version}, nil
	}
	return lifecycle.Record{}, fmt.Errorf("%w: %q", lifecycle.ErrUnknownKind, kind)
}

func (s *InMemory) AppendTransition(_ context.Context, kind lifecycle.Kind, id string, expectedVersion int64, entry lifecycle.HistoryEntry, label string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case lifecycle.KindProject:
		p, ok := s.proj[id]
		if !ok {
			return 0, fmt.Errorf("%w: project %s", ErrNotFound, id)
		}
		if p.Version != expectedVersion {
			return 0, ErrConflict
		}
		p = cloneProject(p)
		p.Status, p.StatusLabel = entry.To, label
		p.History = append(p.History, entry)
		p.UpdatedAt = s.stamp()
		p.Version++
		s.proj[id] = p
		return p.Version, nil
	case lifecycle.KindApplication:
		a, ok := s.apps[id]
		if !ok {
			return 0, fmt.Errorf("%w: application %s", ErrNotFound, id)
		}
		if a.Version != expectedVersion {
			return 0, ErrConflict
		}
		a = cloneApplication(a)
		a.Status, a.StatusLabel = entry.To, label
		a.History = append(a.History, entry)
		a.UpdatedAt = s.stamp()
		a.Version++
		s.apps[id] = a
		return a.Version, nil
	}
	return 0, fmt.Errorf("%w: %q", lifecycle.ErrUnknownKind, kind)
}

// Directory

func (s *InMemory) OrgAccess(_ context.Context, orgID string) (auth.OrgAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[orgID]
	if !ok {
		return auth.OrgAccess{}, fmt.Errorf("%w: organization %s", ErrNotFound, orgID)
	}
	org = cloneOrg(org)
	return auth.OrgAccess{OrgID: org.ID, Members: org.Members, Authorizations: org.Authorizations}, nil
}

func (s *InMemory) ProjectAccess(_ context.Context, projectID string) (auth.ProjectAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proj[projectID]
	if !ok {
		return auth.ProjectAccess{}, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	return auth.ProjectAccess{ProjectID: p.ID, OrgID: p.OrgID, Members: slices.Clone(p.Members)}, nil
}

func (s *InMemory) DocumentAccess(_ context.Context, documentID string) (auth.DocumentAccess, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[documentID]
	if !ok {
		return auth.DocumentAccess{}, fmt.Errorf("%w: document %s", ErrNotFound, documentID)
	}
	return auth.DocumentAccess{DocumentID: d.ID, OrgID: d.OrgID, ProjectID: d.ProjectID}, nil
}

func (s *InMemory) ApplicationOrg(_ context.Context, applicationID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.apps[applicationID]
	if !ok {
		return "", fmt.Errorf("%w: application %s", ErrNotFound, applicationID)
	}
	return a.CompanyID, nil
}
