package inspectflow

// Transition is one row of the workflow's transition table
type Transition struct {
	From   Status
	Role   Role
	Action Action
	To     Status
	// Effect describes the side effect in the table; it is informational and
	// used when rendering the workflow.
	Effect string
}

// NewTransition creates a new transition
func NewTransition(from Status, role Role, action Action, to Status) Transition {
	return Transition{
		From:   from,
		Role:   role,
		Action: action,
		To:     to,
	}
}

// WithEffect annotates the transition with its side effect
func (t Transition) WithEffect(effect string) Transition {
	t.Effect = effect
	return t
}

// SelfLoop reports whether the transition leaves the status unchanged
func (t Transition) SelfLoop() bool {
	return t.From == t.To
}

// TransitionTable is the complete set of legal status changes
type TransitionTable []Transition

// DefaultTransitions builds the inspection-report workflow table, including
// the same-state rows taken by re-signs and the first joint-stage signer.
func DefaultTransitions() TransitionTable {
	table := TransitionTable{
		NewTransition(StatusSubmitted, RoleSupervisor, ActionApprove, StatusOperationsManagerReview).
			WithEffect("sets creator signature"),
		NewTransition(StatusOperationsManagerReview, RoleOperationsManager, ActionApprove, StatusBDProcurementReview).
			WithEffect("sets OM signature, clears earlier BD/Procurement signatures"),
		NewTransition(StatusBDProcurementReview, RoleBusinessDevelopment, ActionApprove, StatusBDProcurementReview).
			WithEffect("first joint signer"),
		NewTransition(StatusBDProcurementReview, RoleBusinessDevelopment, ActionApprove, StatusGeneralManagerReview).
			WithEffect("second joint signer"),
		NewTransition(StatusBDProcurementReview, RoleProcurement, ActionApprove, StatusBDProcurementReview).
			WithEffect("first joint signer"),
		NewTransition(StatusBDProcurementReview, RoleProcurement, ActionApprove, StatusGeneralManagerReview).
			WithEffect("second joint signer"),
		NewTransition(StatusGeneralManagerReview, RoleGeneralManager, ActionApprove, StatusCompleted).
			WithEffect("sets GM signature"),
		// re-signs inside an open edit window
		NewTransition(StatusBDProcurementReview, RoleOperationsManager, ActionApprove, StatusBDProcurementReview).
			WithEffect("re-sign"),
		NewTransition(StatusGeneralManagerReview, RoleBusinessDevelopment, ActionApprove, StatusGeneralManagerReview).
			WithEffect("re-sign"),
		NewTransition(StatusGeneralManagerReview, RoleProcurement, ActionApprove, StatusGeneralManagerReview).
			WithEffect("re-sign"),
		NewTransition(StatusCompleted, RoleGeneralManager, ActionApprove, StatusCompleted).
			WithEffect("re-sign"),
		NewTransition(StatusRejected, RoleSupervisor, ActionResubmit, StatusOperationsManagerReview).
			WithEffect("clears rejection and downstream signatures"),
	}

	for _, from := range []Status{StatusOperationsManagerReview, StatusBDProcurementReview, StatusGeneralManagerReview} {
		for _, role := range []Role{RoleOperationsManager, RoleBusinessDevelopment, RoleProcurement, RoleGeneralManager} {
			table = append(table, NewTransition(from, role, ActionReject, StatusRejected).
				WithEffect("records rejection"))
		}
	}
	return table
}

// Allows reports whether the table contains the exact row
func (tt TransitionTable) Allows(from Status, role Role, action Action, to Status) bool {
	for _, t := range tt {
		if t.From == from && t.Role == role && t.Action == action && t.To == to {
			return true
		}
	}
	return false
}

// From returns the rows leaving a status
func (tt TransitionTable) From(status Status) []Transition {
	var out []Transition
	for _, t := range tt {
		if t.From == status {
			out = append(out, t)
		}
	}
	return out
}

// Targets returns the distinct statuses reachable from status
func (tt TransitionTable) Targets(status Status) []Status {
	seen := make(map[Status]bool)
	var out []Status
	for _, t := range tt.From(status) {
		if !seen[t.To] {
			seen[t.To] = true
			out = append(out, t.To)
		}
	}
	return out
}
