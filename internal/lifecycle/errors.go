package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict means the entity changed between read and write. Retrying is safe.
	ErrConflict = errors.New("lifecycle: concurrent modification")

	ErrUnknownKind  = errors.New("lifecycle: unknown entity kind")
	ErrMissingActor = errors.New("lifecycle: actor is required")
)

// IllegalTransitionError reports a transition absent from the machine's table.
type IllegalTransitionError struct {
	Kind Kind
	From State
	To   State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition from %q to %q", e.Kind, e.From, e.To)
}
