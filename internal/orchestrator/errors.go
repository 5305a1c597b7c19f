package orchestrator

import "fmt"

// CollaboratorTimeoutError reports that an external collaborator failed or
// did not answer in time. It only ever degrades the affected field.
type CollaboratorTimeoutError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorTimeoutError) Error() string {
	return fmt.Sprintf("collaborator %s unavailable: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorTimeoutError) Unwrap() error { return e.Err }
