package approval

import (
	"errors"
	"fmt"

	"github.com/example/reqflow/internal/models"
)

var (
	// ErrNotAuthorized is returned when the actor holds neither the step's
	// gating role nor the admin override.
	ErrNotAuthorized = errors.New("you are not allowed to perform this approval")

	// ErrUnknownAction is returned for actions absent from the transition table.
	ErrUnknownAction = errors.New("unknown approval action")
)

// StateMismatchError reports that a requisition is not in the state a
// transition requires. The required state is carried so callers can tell the
// user exactly what was expected.
type StateMismatchError struct {
	Required models.State
}

func (e *StateMismatchError) Error() string {
	return fmt.Sprintf("action not allowed: requisition must be in state %q to perform this action", e.Required.DisplayName())
}

// IncompleteLineItemError reports a requisition whose lines are missing a
// product reference at conversion time.
type IncompleteLineItemError struct {
	Reference string
}

func (e *IncompleteLineItemError) Error() string {
	return fmt.Sprintf("all lines of requisition %s should have a product to create an RFQ", e.Reference)
}

// CollaboratorError wraps a failure raised by one of the external
// collaborators (directory, numbering, purchasing). The underlying error is
// preserved for unwrapping.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}
