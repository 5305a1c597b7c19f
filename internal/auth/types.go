package auth

import (
	"time"
)

// Authorization statuses.
const (
	AuthorizationActive  = "active"
	AuthorizationRevoked = "revoked"
)

// Member is a user's membership in an organization or project.
type Member struct {
	UserID  string    `json:"user_id"`
	Email   string    `json:"email,omitempty"`
	Role    Role      `json:"role"`
	AddedAt time.Time `json:"added_at"`
}

// Authorization is a time-bounded delegation granted by an organization to a
// delegate member. ValidUntil is a calendar date; the authorization is usable
// through the end of that day.
type Authorization struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Scope      []string  `json:"scope"`
	ValidUntil time.Time `json:"valid_until"`
	Status     string    `json:"status"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	CreatedBy  string    `json:"created_by,omitempty"`
}

// OrgAccess is the slice of an organization the resolver needs.
type OrgAccess struct {
	OrgID          string
	Members        []Member
	Authorizations []Authorization
}

// ProjectAccess is the slice of a project the resolver needs.
type ProjectAccess struct {
	ProjectID string
	OrgID     string
	Members   []Member
}

// DocumentAccess links a document to the organization and, optionally, the project owning it.
type DocumentAccess struct {
	DocumentID string
	OrgID      string
	ProjectID  string
}

// RoleInfo is the outcome of role resolution.
type RoleInfo struct {
	Role   Role     `json:"role"`
	Active bool     `json:"active"`
	Scope  []string `json:"scope"`
	// Source is "org" or "project": where the role came from.
	Source          string `json:"source"`
	AuthorizationID string `json:"authorization_id,omitempty"`
}
