package grants

import (
	"errors"

	"grantflow.org/internal/lifecycle"
)

var (
	ErrNotFound         = errors.New("grants: not found")
	ErrInvalidInput     = errors.New("grants: invalid input")
	ErrAlreadyExists    = errors.New("grants: already exists")
	ErrActiveDependents = errors.New("grants: organization has active projects")
	ErrChecklistFrozen  = errors.New("grants: required document checklist is frozen")

	// ErrConflict is the version-guard failure shared with lifecycle transitions.
	ErrConflict = lifecycle.ErrConflict
)
