package inspectflow

import "testing"

func TestParseRole(t *testing.T) {
	tests := map[string]Role{
		"supervisor":           RoleSupervisor,
		"Operations Manager":   RoleOperationsManager,
		"operations-manager":   RoleOperationsManager,
		"OM":                   RoleOperationsManager,
		"business_development": RoleBusinessDevelopment,
		"bd":                   RoleBusinessDevelopment,
		" Procurement ":        RoleProcurement,
		"general manager":      RoleGeneralManager,
		"admin":                RoleAdmin,
	}
	for in, want := range tests {
		got, err := ParseRole(in)
		if err != nil {
			t.Errorf("ParseRole(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseRole(%q) = %s, expected %s", in, got, want)
		}
	}

	if _, err := ParseRole("auditor"); GetErrorCode(err) != ErrCodeInvalidInput {
		t.Errorf("Expected unknown role to be invalid input, got %v", err)
	}
}

func TestRole_Properties(t *testing.T) {
	if RoleAdmin.IsChainRole() || RoleAdmin.IsReviewer() {
		t.Error("Expected admin outside the chain")
	}
	if RoleSupervisor.IsReviewer() {
		t.Error("Expected supervisor not to be a reviewer")
	}
	if RoleBusinessDevelopment.Partner() != RoleProcurement || RoleProcurement.Partner() != RoleBusinessDevelopment {
		t.Error("Expected joint roles to partner each other")
	}
	if RoleOperationsManager.Partner() != "" {
		t.Error("Expected no partner outside the joint stage")
	}
	for _, role := range ChainRoles {
		if role.Stage().Rank() != role.Rank() {
			t.Errorf("%s: stage rank %d differs from role rank %d", role, role.Stage().Rank(), role.Rank())
		}
	}
}

func TestStatus_ExpectedRoles(t *testing.T) {
	tests := []struct {
		status Status
		role   Role
		expect bool
	}{
		{StatusSubmitted, RoleSupervisor, true},
		{StatusOperationsManagerReview, RoleOperationsManager, true},
		{StatusBDProcurementReview, RoleBusinessDevelopment, true},
		{StatusBDProcurementReview, RoleProcurement, true},
		{StatusBDProcurementReview, RoleGeneralManager, false},
		{StatusGeneralManagerReview, RoleGeneralManager, true},
		{StatusCompleted, RoleGeneralManager, false},
		{StatusRejected, RoleSupervisor, true},
		{StatusRejected, RoleOperationsManager, false},
	}
	for _, tt := range tests {
		if got := tt.status.Expects(tt.role); got != tt.expect {
			t.Errorf("%s.Expects(%s) = %v, expected %v", tt.status, tt.role, got, tt.expect)
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, st := range AllStatuses {
		got, err := ParseStatus(string(st))
		if err != nil || got != st {
			t.Errorf("ParseStatus(%q) = %s, %v", st, got, err)
		}
	}
	if _, err := ParseStatus("approved"); err == nil {
		t.Error("Expected unknown status to fail")
	}
	if !StatusCompleted.IsTerminal() || !StatusRejected.IsTerminal() || StatusSubmitted.IsTerminal() {
		t.Error("unexpected terminal states")
	}
}
