package errdefs

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Typed errors shared by every service. The HTTP boundary maps these to
// status codes; services propagate them unchanged and never wrap them in a
// generic error that would hide the type from errors.As.

// Conflict reports a uniqueness or at-most-one-in-flight violation, such as
// a duplicate tag name or a second pending derivation for the same document
// and artifact type.
type Conflict struct {
	Resource string
	Detail   string
}

func (e *Conflict) Error() string {
	if e == nil {
		return "conflict"
	}
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Detail)
}

// PermissionDenied carries the offending tag so a client can self-correct
// without a support request.
type PermissionDenied struct {
	TagID    uuid.UUID
	TagName  string
	UserID   uuid.UUID
	Required string
}

func (e *PermissionDenied) Error() string {
	if e == nil {
		return "permission denied"
	}
	if e.TagName != "" {
		return fmt.Sprintf("permission denied: requires %s on tag %q", e.Required, e.TagName)
	}
	return fmt.Sprintf("permission denied: requires %s on tag %s", e.Required, e.TagID)
}

type NotFound struct {
	Resource string
	ID       string
}

func (e *NotFound) Error() string {
	if e == nil {
		return "not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// InvariantViolation reports an operation that would break a structural
// rule, such as revoking the last admin of a tag.
type InvariantViolation struct {
	Rule   string
	Detail string
}

func (e *InvariantViolation) Error() string {
	if e == nil {
		return "invariant violation"
	}
	return fmt.Sprintf("invariant violation (%s): %s", e.Rule, e.Detail)
}

// EmptyScope reports a scope resolution that produced zero documents, so an
// agent is never silently run against no context.
type EmptyScope struct {
	RequestedTagIDs []uuid.UUID
}

func (e *EmptyScope) Error() string {
	if e == nil {
		return "empty scope"
	}
	return fmt.Sprintf("empty scope: no readable documents for %d requested tag(s)", len(e.RequestedTagIDs))
}

// TokenBudgetExceeded carries limit and actual so clients can trim their
// selection without guessing.
type TokenBudgetExceeded struct {
	Limit  int
	Actual int
}

func (e *TokenBudgetExceeded) Error() string {
	if e == nil {
		return "token budget exceeded"
	}
	return fmt.Sprintf("token budget exceeded: limit=%d actual=%d", e.Limit, e.Actual)
}

func IsConflict(err error) bool {
	var t *Conflict
	return errors.As(err, &t)
}

func IsPermissionDenied(err error) bool {
	var t *PermissionDenied
	return errors.As(err, &t)
}

func IsNotFound(err error) bool {
	var t *NotFound
	return errors.As(err, &t)
}

func IsInvariantViolation(err error) bool {
	var t *InvariantViolation
	return errors.As(err, &t)
}

func IsEmptyScope(err error) bool {
	var t *EmptyScope
	return errors.As(err, &t)
}

func IsTokenBudgetExceeded(err error) bool {
	var t *TokenBudgetExceeded
	return errors.As(err, &t)
}
