package apierr

import (
	"net/http"

	"github.com/docscope/docscope-backend/internal/errdefs"
)

// Error is the JSON shape returned by handlers for any failed request.
type Error struct {
	Status int    `json:"-"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Detail
}

// FromDomain maps the service error taxonomy onto HTTP statuses. Store and
// other internal failures become a generic 500; the full cause is logged by
// the handler, never sent to the client.
func FromDomain(err error) *Error {
	switch {
	case err == nil:
		return nil
	case errdefs.IsConflict(err):
		return &Error{Status: http.StatusConflict, Code: "conflict", Detail: err.Error()}
	case errdefs.IsPermissionDenied(err):
		return &Error{Status: http.StatusForbidden, Code: "permission_denied", Detail: err.Error()}
	case errdefs.IsNotFound(err):
		return &Error{Status: http.StatusNotFound, Code: "not_found", Detail: err.Error()}
	case errdefs.IsInvariantViolation(err):
		return &Error{Status: http.StatusUnprocessableEntity, Code: "invariant_violation", Detail: err.Error()}
	case errdefs.IsEmptyScope(err):
		return &Error{Status: http.StatusUnprocessableEntity, Code: "empty_scope", Detail: err.Error()}
	case errdefs.IsTokenBudgetExceeded(err):
		return &Error{Status: http.StatusRequestEntityTooLarge, Code: "token_budget_exceeded", Detail: err.Error()}
	default:
		return &Error{Status: http.StatusInternalServerError, Code: "internal", Detail: "internal error"}
	}
}
