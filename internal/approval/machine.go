// Package approval holds the pure transition logic of the requisition
// workflow: which action moves a requisition from which state to which, and
// which role gates it. It performs no I/O; authorization lookups and
// persistence belong to the caller.
package approval

import (
	"github.com/example/reqflow/internal/models"
)

// Role names a departmental group an actor may belong to. RoleAdmin is the
// universal override accepted by every step.
type Role string

const (
	RoleAdmin      Role = "admin"
	RolePreparing  Role = "requisition.preparing"
	RoleStore      Role = "requisition.store"
	RoleProduction Role = "requisition.production"
	RoleGM         Role = "requisition.gm"
	RolePurchase   Role = "requisition.purchase"
)

// Action identifies one workflow transition.
type Action string

const (
	ActionApproveByStore        Action = "approve_by_store"
	ActionApproveByProduction   Action = "approve_by_production"
	ActionApproveByGM           Action = "approve_by_gm"
	ActionApproveByPurchaseDept Action = "approve_by_purchase_dept"
	ActionConvertToRFQ          Action = "convert_to_rfq"
)

// Step describes a single legal transition: the exact state a requisition
// must currently be in, the state it moves to, and the role allowed to
// trigger it.
type Step struct {
	From models.State
	To   models.State
	Role Role
}

// steps is the complete transition table. Any (state, action) pair absent
// from it is illegal; there is no path backwards and no skipping.
var steps = map[Action]Step{
	ActionApproveByStore:        {From: models.StateDraft, To: models.StateStoreApproved, Role: RolePreparing},
	ActionApproveByProduction:   {From: models.StateStoreApproved, To: models.StateProductionApproved, Role: RoleStore},
	ActionApproveByGM:           {From: models.StateProductionApproved, To: models.StateGmApproved, Role: RoleProduction},
	ActionApproveByPurchaseDept: {From: models.StateGmApproved, To: models.StatePurchaseApproved, Role: RoleGM},
	ActionConvertToRFQ:          {From: models.StatePurchaseApproved, To: models.StateConvertedToRFQ, Role: RolePurchase},
}

// Lookup resolves an action to its transition step.
func Lookup(action Action) (Step, error) {
	step, ok := steps[action]
	if !ok {
		return Step{}, ErrUnknownAction
	}
	return step, nil
}

// CheckState verifies that a requisition currently in state current may take
// this step.
func (s Step) CheckState(current models.State) error {
	if current != s.From {
		return &StateMismatchError{Required: s.From}
	}
	return nil
}
