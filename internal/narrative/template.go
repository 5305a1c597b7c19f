package narrative

import (
	"context"
	"fmt"
	"strings"

	"grantflow.org/internal/orchestrator"
)

// Template renders a narrative locally from the check results.
type Template struct{}

func (Template) Narrate(_ context.Context, s orchestrator.Summary) (string, error) {
	var b strings.Builder
	title := s.Title
	if title == "" {
		title = s.EntityID
	}
	if s.NeedsAction {
		fmt.Fprintf(&b, "%s (%s) needs action: %d open issues.", title, s.Status, s.TotalIssues)
	} else {
		fmt.Fprintf(&b, "%s (%s) has no blocking issues.", title, s.Status)
	}
	for _, c := range s.Checks {
		if c.Status == orchestrator.StatusOK {
			continue
		}
		fmt.Fprintf(&b, "\n- %s [%s]", c.Name, c.Status)
		if len(c.Issues) > 0 {
			b.WriteString(": ")
			b.WriteString(strings.Join(c.Issues, "; "))
		}
	}
	return b.String(), nil
}
