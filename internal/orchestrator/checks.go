package orchestrator

import (
	"fmt"
	"slices"

	"grantflow.org/internal/lifecycle"
)

// Status grades one check.
type Status string

const (
	StatusOK           Status = "ok"
	StatusWarning      Status = "warning"
	StatusActionNeeded Status = "action_needed"
)

// Check names, in evaluation order.
const (
	CheckConfiguration     = "configuration"
	CheckGuideMaterial     = "guide_material"
	CheckRequiredDocuments = "required_documents"
	CheckDrafts            = "drafts"
	CheckEligibility       = "eligibility"
	CheckValidation        = "validation"
)

// Check is the outcome of one readiness check.
type Check struct {
	Name   string   `json:"name"`
	Status Status   `json:"status"`
	Detail string   `json:"detail,omitempty"`
	Issues []string `json:"issues"`
}

// RequiredItem is one element of the required-document checklist.
type RequiredItem struct {
	Name     string `json:"name"`
	Uploaded bool   `json:"uploaded"`
}

// Snapshot is the committed state the checks read. Fields of related entities
// may be read at slightly different times.
type Snapshot struct {
	Kind                 lifecycle.Kind
	ID                   string
	OrgID                string
	Title                string
	Status               lifecycle.State
	StatusLabel          string
	MissingConfiguration []string
	GuideAssets          int
	RequiredDocuments    []RequiredItem
	Drafts               int
	ReportTypes          []string
}

var (
	eligibilityReports = []string{"eligibility", "evaluation"}
	validationReports  = []string{"validation", "conformity_grid"}
)

// Evaluate runs every check against s in a fixed order. It is pure: the same
// snapshot always yields the same checks.
func Evaluate(s Snapshot, minDrafts int) []Check {
	return []Check{
		checkConfiguration(s),
		checkGuideMaterial(s),
		checkRequiredDocuments(s),
		checkDrafts(s, minDrafts),
		checkReport(CheckEligibility, s.ReportTypes, eligibilityReports, "Eligibility check not performed"),
		checkReport(CheckValidation, s.ReportTypes, validationReports, "Coherence validation not performed"),
	}
}

// Tally computes needs_action and total_issues over checks.
func Tally(checks []Check) (needsAction bool, totalIssues int) {
	for _, c := range checks {
		if c.Status == StatusActionNeeded {
			needsAction = true
		}
		totalIssues += len(c.Issues)
	}
	return needsAction, totalIssues
}

func checkConfiguration(s Snapshot) Check {
	c := Check{Name: CheckConfiguration, Status: StatusOK, Detail: "configuration complete", Issues: []string{}}
	if len(s.MissingConfiguration) > 0 {
		c.Status = StatusActionNeeded
		c.Detail = fmt.Sprintf("%d configuration fields missing", len(s.MissingConfiguration))
		c.Issues = slices.Clone(s.MissingConfiguration)
	}
	return c
}

func checkGuideMaterial(s Snapshot) Check {
	if s.GuideAssets == 0 {
		return Check{
			Name:   CheckGuideMaterial,
			Status: StatusWarning,
			Detail: "no reference material",
			Issues: []string{"No guide or procedure uploaded"},
		}
	}
	return Check{
		Name:   CheckGuideMaterial,
		Status: StatusOK,
		Detail: fmt.Sprintf("%d reference documents", s.GuideAssets),
		Issues: []string{},
	}
}

func checkRequiredDocuments(s Snapshot) Check {
	total := len(s.RequiredDocuments)
	if total == 0 {
		return Check{
			Name:   CheckRequiredDocuments,
			Status: StatusWarning,
			Detail: "no required documents defined",
			Issues: []string{"Required document checklist is empty"},
		}
	}
	issues := []string{}
	uploaded := 0
	for _, d := range s.RequiredDocuments {
		if d.Uploaded {
			uploaded++
			continue
		}
		issues = append(issues, "Missing required document: "+d.Name)
	}
	c := Check{
		Name:   CheckRequiredDocuments,
		Status: StatusOK,
		Detail: fmt.Sprintf("uploaded %d/%d required documents", uploaded, total),
		Issues: issues,
	}
	if uploaded < total {
		c.Status = StatusActionNeeded
	}
	return c
}

func checkDrafts(s Snapshot, minDrafts int) Check {
	if s.Drafts < minDrafts {
		return Check{
			Name:   CheckDrafts,
			Status: StatusActionNeeded,
			Detail: fmt.Sprintf("%d of %d drafts", s.Drafts, minDrafts),
			Issues: []string{fmt.Sprintf("Only %d drafts generated (recommended minimum: %d)", s.Drafts, minDrafts)},
		}
	}
	return Check{Name: CheckDrafts, Status: StatusOK, Detail: fmt.Sprintf("%d drafts", s.Drafts), Issues: []string{}}
}

func checkReport(name string, have, accepted []string, missing string) Check {
	for _, t := range have {
		if slices.Contains(accepted, t) {
			return Check{Name: name, Status: StatusOK, Detail: t + " report on file", Issues: []string{}}
		}
	}
	return Check{Name: name, Status: StatusActionNeeded, Issues: []string{missing}}
}
