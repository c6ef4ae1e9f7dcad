package release

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSpec marks caller errors in a release spec. Never retried.
	ErrInvalidSpec = errors.New("invalid release spec")

	// ErrReleaseInProgress indicates the namespace already has a
	// non-terminal release.
	ErrReleaseInProgress = errors.New("release in progress")

	// ErrRollbackImpossible indicates there is no last known good release
	// to restore, or restoring it failed. Requires operator action.
	ErrRollbackImpossible = errors.New("rollback impossible")

	// ErrNotFound indicates that a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRecord indicates a record violates a store invariant.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrRecordFinalized indicates an attempt to modify a terminal record.
	ErrRecordFinalized = errors.New("record already finalized")
)

// InvalidSpecError lists every problem found while validating a spec.
type InvalidSpecError struct {
	Problems []string
}

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidSpec, strings.Join(e.Problems, "; "))
}

func (e *InvalidSpecError) Is(target error) bool {
	return target == ErrInvalidSpec
}

// PrerequisiteError is fatal to a release: no release proceeds without its
// prerequisites.
type PrerequisiteError struct {
	Name  string
	Cause error
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("prerequisite %s: %v", e.Name, e.Cause)
}

func (e *PrerequisiteError) Unwrap() error {
	return e.Cause
}

// ApplyError reports a failed submission of a service's objects.
type ApplyError struct {
	Service string
	Cause   error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply %s: %v", e.Service, e.Cause)
}

func (e *ApplyError) Unwrap() error {
	return e.Cause
}
