package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

var ErrVersionNotFound = errors.New("game version not found")

// InvalidTransitionError is returned when an action is not legal from the
// version's current status, including when a concurrent transition won.
type InvalidTransitionError struct {
	VersionID string
	Current   Status
	Attempted Action
	Allowed   []Action
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, 0, len(e.Allowed))
	for _, a := range e.Allowed {
		allowed = append(allowed, string(a))
	}
	list := strings.Join(allowed, ", ")
	if list == "" {
		list = "none"
	}
	return fmt.Sprintf("cannot %s a version in status %s (allowed: %s)", e.Attempted, e.Current, list)
}

type PermissionDeniedError struct {
	ActorID    string
	Action     Action
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("%s requires permission %s", e.Action, e.Permission)
}

// EvidenceMissingError is returned for QC verdicts made before QA ran.
type EvidenceMissingError struct {
	VersionID string
	Action    Action
}

func (e *EvidenceMissingError) Error() string {
	return fmt.Sprintf("no QA results for version %s: run QA before %s", e.VersionID, e.Action)
}
