package inspectflow

import "fmt"

// Status is the workflow state of a submission
type Status string

const (
	StatusSubmitted               Status = "submitted"
	StatusOperationsManagerReview Status = "operations_manager_review"
	StatusBDProcurementReview     Status = "bd_procurement_review"
	StatusGeneralManagerReview    Status = "general_manager_review"
	StatusCompleted               Status = "completed"
	StatusRejected                Status = "rejected"
)

// AllStatuses lists every state in chain order.
var AllStatuses = []Status{
	StatusSubmitted,
	StatusOperationsManagerReview,
	StatusBDProcurementReview,
	StatusGeneralManagerReview,
	StatusCompleted,
	StatusRejected,
}

// ParseStatus validates a stored status string
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", NewInvalidInputError(fmt.Sprintf("unknown workflow status %q", s))
	}
	return st, nil
}

// Valid reports whether s is one of the enumerated states
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusOperationsManagerReview, StatusBDProcurementReview,
		StatusGeneralManagerReview, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// IsReview reports whether the state is one a reviewer may reject from
func (s Status) IsReview() bool {
	switch s {
	case StatusOperationsManagerReview, StatusBDProcurementReview, StatusGeneralManagerReview:
		return true
	}
	return false
}

// IsTerminal reports whether no further approval is expected
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Rank orders the chain states. Completed ranks above every stage; rejected
// has no rank (-1).
func (s Status) Rank() int {
	switch s {
	case StatusSubmitted:
		return 0
	case StatusOperationsManagerReview:
		return 1
	case StatusBDProcurementReview:
		return 2
	case StatusGeneralManagerReview:
		return 3
	case StatusCompleted:
		return 4
	default:
		return -1
	}
}

// ExpectedRoles returns the roles whose action the state is waiting on.
func (s Status) ExpectedRoles() []Role {
	switch s {
	case StatusSubmitted:
		return []Role{RoleSupervisor}
	case StatusOperationsManagerReview:
		return []Role{RoleOperationsManager}
	case StatusBDProcurementReview:
		return []Role{RoleBusinessDevelopment, RoleProcurement}
	case StatusGeneralManagerReview:
		return []Role{RoleGeneralManager}
	case StatusRejected:
		return []Role{RoleSupervisor}
	default:
		return nil
	}
}

// Expects reports whether the state is waiting on the given role
func (s Status) Expects(role Role) bool {
	for _, r := range s.ExpectedRoles() {
		if r == role {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
