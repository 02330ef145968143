package inspectflow

// SignatureView is the input of the permission resolver: the workflow status
// plus which signature blocks are committed.
type SignatureView struct {
	Status              Status
	Supervisor          bool
	OperationsManager   bool
	BusinessDevelopment bool
	Procurement         bool
	GeneralManager      bool
}

// Signed reports whether the role's block is committed in the view
func (v SignatureView) Signed(role Role) bool {
	switch role {
	case RoleSupervisor:
		return v.Supervisor
	case RoleOperationsManager:
		return v.OperationsManager
	case RoleBusinessDevelopment:
		return v.BusinessDevelopment
	case RoleProcurement:
		return v.Procurement
	case RoleGeneralManager:
		return v.GeneralManager
	}
	return false
}

// Permissions is what a role may do with a submission right now
type Permissions struct {
	CanView     bool `json:"can_view"`
	CanEditBody bool `json:"can_edit_body"`
	CanSign     bool `json:"can_sign"`
}

// Resolve decides view/edit/sign eligibility for a role. It is a pure function
// of the view: edit windows close as soon as a later role commits its first
// signature, which the joint stage cannot express through Status alone.
func Resolve(v SignatureView, role Role) Permissions {
	if !role.Valid() {
		return Permissions{}
	}
	open := editWindowOpen(v, role)
	return Permissions{
		CanView:     canView(v, role),
		CanEditBody: open,
		CanSign:     open,
	}
}

func editWindowOpen(v SignatureView, role Role) bool {
	switch role {
	case RoleSupervisor:
		return v.Status == StatusSubmitted
	case RoleOperationsManager:
		return (v.Status == StatusOperationsManagerReview || v.Status == StatusBDProcurementReview) &&
			!v.BusinessDevelopment && !v.Procurement
	case RoleBusinessDevelopment, RoleProcurement:
		return (v.Status == StatusBDProcurementReview || v.Status == StatusGeneralManagerReview) &&
			!v.GeneralManager
	case RoleGeneralManager:
		return v.Status == StatusGeneralManagerReview || v.Status == StatusCompleted
	}
	return false
}

// canView grants read access to roles whose turn has arrived. Visibility for
// roles further down the chain is left to the caller's own policy.
func canView(v SignatureView, role Role) bool {
	if role == RoleAdmin {
		return true
	}
	switch v.Status {
	case StatusCompleted, StatusRejected:
		return true
	}
	return role.Rank() <= v.Status.Rank()
}

// WindowClosed reports whether the role had its turn and has since been
// superseded by a later signature or stage.
func WindowClosed(v SignatureView, role Role) bool {
	if !role.IsChainRole() || editWindowOpen(v, role) {
		return false
	}
	if v.Status == StatusRejected {
		return false
	}
	return role.Rank() < v.Status.Rank() || (role.Rank() == v.Status.Rank() && v.Signed(role))
}
