package status

import (
	"fmt"
	"time"
)

// Status types, stored as strings inside the status entity content.
const (
	Pending               = "pending"
	Accepted              = "accepted"
	Rejected              = "rejected"
	SuspendedTemporarily  = "suspended temporarily"
	SuspendedIndefinitely = "suspended indefinitely"
	Archived              = "archived"
)

// Status is the side-entity recording an entity's lifecycle state. It is
// versioned like any entity; the parent points at the current revision via a
// single current-status edge.
type Status struct {
	StatusType     string `json:"status_type"`
	Reason         string `json:"reason,omitempty"`
	SuspendedUntil string `json:"suspended_until,omitempty" format:"date-time"`
}

func NewPending() Status  { return Status{StatusType: Pending} }
func NewAccepted() Status { return Status{StatusType: Accepted} }

func NewRejected(reason string) Status {
	return Status{StatusType: Rejected, Reason: reason}
}

func NewArchived() Status { return Status{StatusType: Archived} }

// NewSuspended builds a temporary suspension when until is non-nil, an
// indefinite one otherwise.
func NewSuspended(reason string, until *time.Time) Status {
	if until == nil {
		return Status{StatusType: SuspendedIndefinitely, Reason: reason}
	}
	return Status{
		StatusType:     SuspendedTemporarily,
		Reason:         reason,
		SuspendedUntil: until.UTC().Format(time.RFC3339),
	}
}

func (s Status) IsAccepted() bool { return s.StatusType == Accepted }

func (s Status) IsSuspended() bool {
	return s.StatusType == SuspendedTemporarily || s.StatusType == SuspendedIndefinitely
}

// SuspensionExpired reports whether a temporary suspension has run out.
func (s Status) SuspensionExpired(now time.Time) bool {
	if s.StatusType != SuspendedTemporarily || s.SuspendedUntil == "" {
		return false
	}
	until, err := time.Parse(time.RFC3339, s.SuspendedUntil)
	if err != nil {
		return false
	}
	return !now.Before(until)
}

var transitions = map[string][]string{
	Pending:               {Pending, Accepted, Rejected, Archived},
	Accepted:              {Accepted, SuspendedTemporarily, SuspendedIndefinitely, Archived},
	SuspendedTemporarily:  {Accepted, SuspendedTemporarily, SuspendedIndefinitely, Archived},
	SuspendedIndefinitely: {Accepted, SuspendedIndefinitely, Archived},
	// No transition is defined away from rejected or archived.
	Rejected: {},
	Archived: {},
}

// ValidateTransition guards the lifecycle state machine.
func ValidateTransition(from, to string) error {
	allowed, ok := transitions[from]
	if !ok {
		return InvalidStatusChangeError{From: from, To: to}
	}
	for _, next := range allowed {
		if next == to {
			return nil
		}
	}
	return InvalidStatusChangeError{From: from, To: to}
}

// KnownType reports whether t names a defined status type.
func KnownType(t string) bool {
	_, ok := transitions[t]
	return ok
}

// AlreadyStatusError indicates the entity already has a status tracker.
type AlreadyStatusError struct {
	Kind     string
	EntityID string
}

func (e AlreadyStatusError) Error() string {
	return fmt.Sprintf("%s %s already has a status", e.Kind, e.EntityID)
}

// InvalidStatusChangeError indicates a transition the machine does not define.
type InvalidStatusChangeError struct {
	From string
	To   string
}

func (e InvalidStatusChangeError) Error() string {
	return fmt.Sprintf("invalid status change %s -> %s", e.From, e.To)
}

// DurationInDaysNotProvidedError indicates a temporary suspension without a
// duration.
type DurationInDaysNotProvidedError struct{}

func (e DurationInDaysNotProvidedError) Error() string {
	return "duration in days not provided"
}

// RevisionConflictError indicates the caller's expected status revision is no
// longer current; the transition was not applied.
type RevisionConflictError struct {
	Expected string
	Actual   string
}

func (e RevisionConflictError) Error() string {
	return fmt.Sprintf("status revision conflict: expected %s, current %s", e.Expected, e.Actual)
}

// InvariantViolationError indicates more than one current-status edge.
type InvariantViolationError struct {
	Kind     string
	EntityID string
	Edges    int
}

func (e InvariantViolationError) Error() string {
	return fmt.Sprintf("%s %s has %d current-status edges, want 1", e.Kind, e.EntityID, e.Edges)
}
