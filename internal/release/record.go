package release

import (
	"context"
	"time"
)

// State is a step of the release state machine.
type State string

const (
	StatePending            State = "Pending"
	StatePrerequisitesReady State = "PrerequisitesReady"
	StateApplying           State = "Applying"
	StateHealthChecking     State = "HealthChecking"
	StateRollingBack        State = "RollingBack"
	StateSucceeded          State = "Succeeded"
	StateRolledBack         State = "RolledBack"
	StateFailed             State = "Failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateRolledBack, StateFailed:
		return true
	}
	return false
}

var transitions = map[State][]State{
	StatePending:            {StatePrerequisitesReady, StateFailed},
	StatePrerequisitesReady: {StateApplying, StateFailed},
	StateApplying:           {StateHealthChecking, StateRollingBack, StateFailed},
	StateHealthChecking:     {StateApplying, StateSucceeded, StateRollingBack, StateFailed},
	StateRollingBack:        {StateRolledBack, StateFailed},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Outcome is the terminal result of a release.
type Outcome string

const (
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeFailed     Outcome = "failed"
	OutcomeRolledBack Outcome = "rolledBack"
)

// OutcomeFor maps a terminal state to its outcome.
func OutcomeFor(s State) Outcome {
	switch s {
	case StateSucceeded:
		return OutcomeSucceeded
	case StateRolledBack:
		return OutcomeRolledBack
	case StateFailed:
		return OutcomeFailed
	}
	return ""
}

// ErrorKind classifies the cause recorded on a failed or rolled back record.
type ErrorKind string

const (
	KindPrerequisite       ErrorKind = "PrerequisiteError"
	KindApply              ErrorKind = "ApplyError"
	KindUnhealthy          ErrorKind = "Unhealthy"
	KindCancelled          ErrorKind = "Cancelled"
	KindRollbackImpossible ErrorKind = "RollbackImpossible"
	KindAbandoned          ErrorKind = "Abandoned"
	// KindPersistence marks a release whose success could not be committed
	// to the record store.
	KindPersistence ErrorKind = "PersistenceError"
)

// Record is the persisted outcome of one orchestration attempt.
type Record struct {
	ID             string      `json:"id" yaml:"id"`
	Namespace      string      `json:"namespace" yaml:"namespace"`
	Environment    Environment `json:"environment" yaml:"environment"`
	Spec           Spec        `json:"spec" yaml:"spec"`
	State          State       `json:"state" yaml:"state"`
	Outcome        Outcome     `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	StartedAt      time.Time   `json:"startedAt" yaml:"startedAt"`
	FinishedAt     time.Time   `json:"finishedAt" yaml:"finishedAt"`
	PreviousGoodID string      `json:"previousGoodId,omitempty" yaml:"previousGoodId,omitempty"`
	ErrorKind      ErrorKind   `json:"errorKind,omitempty" yaml:"errorKind,omitempty"`
	Error          string      `json:"error,omitempty" yaml:"error,omitempty"`
	// RollbackError holds the cause when restoring the previous release
	// failed as well.
	RollbackError string `json:"rollbackError,omitempty" yaml:"rollbackError,omitempty"`
}

// Terminal reports whether the record reached a terminal state.
func (r Record) Terminal() bool {
	return r.State.Terminal()
}

// RecordStore persists release records as an append-only log per namespace
// plus a single current pointer per namespace.
type RecordStore interface {
	// Begin appends rec as the namespace's in-flight release and returns the
	// stored record. PreviousGoodID is taken from the namespace's current
	// pointer in the same atomic step; any value set by the caller is
	// ignored. It fails with ErrReleaseInProgress, creating nothing, when
	// another non-terminal record exists for the namespace.
	Begin(ctx context.Context, rec Record) (Record, error)

	// Update persists progress of a record that has not been finalized.
	Update(ctx context.Context, rec Record) error

	// Promote finalizes a succeeded record and moves the namespace's
	// current pointer to it in one atomic step.
	Promote(ctx context.Context, rec Record) error

	Get(ctx context.Context, id string) (Record, error)

	// Current returns the namespace's last succeeded record.
	Current(ctx context.Context, namespace string) (Record, error)

	// InFlight returns the namespace's non-terminal record, if any.
	InFlight(ctx context.Context, namespace string) (Record, error)

	// List returns every record of the namespace, oldest first.
	List(ctx context.Context, namespace string) ([]Record, error)
}
