package inspectflow

import (
	"fmt"
	"strings"
)

// Role is a workflow role. The set is closed; ParseRole rejects anything else.
type Role string

const (
	RoleSupervisor          Role = "supervisor"
	RoleOperationsManager   Role = "operations_manager"
	RoleBusinessDevelopment Role = "business_development"
	RoleProcurement         Role = "procurement"
	RoleGeneralManager      Role = "general_manager"
	RoleAdmin               Role = "admin"
)

// ChainRoles lists the roles that sign a submission, in chain order.
var ChainRoles = []Role{
	RoleSupervisor,
	RoleOperationsManager,
	RoleBusinessDevelopment,
	RoleProcurement,
	RoleGeneralManager,
}

var roleAliases = map[string]Role{
	"supervisor":           RoleSupervisor,
	"operations_manager":   RoleOperationsManager,
	"operations manager":   RoleOperationsManager,
	"om":                   RoleOperationsManager,
	"business_development": RoleBusinessDevelopment,
	"business development": RoleBusinessDevelopment,
	"bd":                   RoleBusinessDevelopment,
	"procurement":          RoleProcurement,
	"general_manager":      RoleGeneralManager,
	"general manager":      RoleGeneralManager,
	"gm":                   RoleGeneralManager,
	"admin":                RoleAdmin,
}

// ParseRole converts a designation string into a Role. Unknown designations
// are an error rather than a role without permissions.
func ParseRole(s string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	if role, ok := roleAliases[key]; ok {
		return role, nil
	}
	if role, ok := roleAliases[strings.ReplaceAll(key, "_", " ")]; ok {
		return role, nil
	}
	return "", NewInvalidInputError(fmt.Sprintf("unknown role %q", s))
}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSupervisor, RoleOperationsManager, RoleBusinessDevelopment,
		RoleProcurement, RoleGeneralManager, RoleAdmin:
		return true
	}
	return false
}

// IsChainRole reports whether the role signs a signature block.
func (r Role) IsChainRole() bool {
	return r.Valid() && r != RoleAdmin
}

// IsReviewer reports whether the role reviews (and may reject) submissions.
func (r Role) IsReviewer() bool {
	return r.IsChainRole() && r != RoleSupervisor
}

// Rank is the role's position in the chain. Business Development and
// Procurement share a rank. Admin has no rank (-1).
func (r Role) Rank() int {
	switch r {
	case RoleSupervisor:
		return 0
	case RoleOperationsManager:
		return 1
	case RoleBusinessDevelopment, RoleProcurement:
		return 2
	case RoleGeneralManager:
		return 3
	default:
		return -1
	}
}

// Stage returns the review status a role is responsible for.
func (r Role) Stage() Status {
	switch r {
	case RoleSupervisor:
		return StatusSubmitted
	case RoleOperationsManager:
		return StatusOperationsManagerReview
	case RoleBusinessDevelopment, RoleProcurement:
		return StatusBDProcurementReview
	case RoleGeneralManager:
		return StatusGeneralManagerReview
	default:
		return ""
	}
}

// Partner returns the other joint-stage role for Business Development and
// Procurement, and "" for every other role.
func (r Role) Partner() Role {
	switch r {
	case RoleBusinessDevelopment:
		return RoleProcurement
	case RoleProcurement:
		return RoleBusinessDevelopment
	default:
		return ""
	}
}

// DisplayName is the human readable role name used in messages.
func (r Role) DisplayName() string {
	switch r {
	case RoleSupervisor:
		return "Supervisor"
	case RoleOperationsManager:
		return "Operations Manager"
	case RoleBusinessDevelopment:
		return "Business Development"
	case RoleProcurement:
		return "Procurement"
	case RoleGeneralManager:
		return "General Manager"
	case RoleAdmin:
		return "Admin"
	default:
		return string(r)
	}
}

func (r Role) String() string {
	return string(r)
}
