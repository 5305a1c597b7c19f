package lifecycle

import "time"

// Project states.
const (
	ProjectDraft            State = "draft"
	ProjectPreEligible      State = "pre_eligible"
	ProjectBlocked          State = "blocked"
	ProjectCompliant        State = "compliant"
	ProjectSubmitted        State = "submitted"
	ProjectApproved         State = "approved"
	ProjectRejected         State = "rejected"
	ProjectInImplementation State = "in_implementation"
	ProjectSuspended        State = "suspended"
	ProjectFinalized        State = "finalized"
	ProjectPostAudit        State = "post_audit"
	ProjectArchived         State = "archived"
)

// Project governs funding projects.
var Project = NewMachine(KindProject, ProjectDraft, []StateDef{
	{ProjectDraft, "Draft", []State{ProjectPreEligible, ProjectBlocked}},
	{ProjectPreEligible, "Pre-eligible", []State{ProjectBlocked, ProjectCompliant}},
	{ProjectBlocked, "Blocked", []State{ProjectDraft, ProjectPreEligible}},
	{ProjectCompliant, "Compliant", []State{ProjectSubmitted, ProjectBlocked}},
	{ProjectSubmitted, "Submitted", []State{ProjectApproved, ProjectRejected}},
	{ProjectApproved, "Approved", []State{ProjectInImplementation}},
	{ProjectRejected, "Rejected", []State{ProjectArchived, ProjectDraft}},
	{ProjectInImplementation, "In implementation", []State{ProjectSuspended, ProjectFinalized}},
	{ProjectSuspended, "Suspended", []State{ProjectInImplementation, ProjectArchived}},
	{ProjectFinalized, "Finalized", []State{ProjectPostAudit, ProjectArchived}},
	{ProjectPostAudit, "Post-implementation audit", []State{ProjectArchived}},
	{ProjectArchived, "Archived", nil},
})

// ProjectGenesis is the history a new project starts with.
func ProjectGenesis(by string, at time.Time) []HistoryEntry {
	return []HistoryEntry{{To: ProjectDraft, At: at.UTC(), By: by, Reason: "project created"}}
}
