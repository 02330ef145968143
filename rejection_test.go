package inspectflow

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestReject_FromEachReviewStage(t *testing.T) {
	tests := []struct {
		status Status
		actor  Actor
	}{
		{StatusOperationsManagerReview, TestOperationsManager},
		{StatusBDProcurementReview, TestBusinessDevelopment},
		{StatusBDProcurementReview, TestProcurement},
		{StatusBDProcurementReview, TestOperationsManager},
		{StatusGeneralManagerReview, TestGeneralManager},
		{StatusGeneralManagerReview, TestProcurement},
	}
	for _, tt := range tests {
		t.Run(string(tt.status)+"/"+string(tt.actor.Role), func(t *testing.T) {
			m := NewMachine(DefaultPolicy())
			sub := CreateSubmissionAt(tt.status)

			out, err := m.Apply(sub, NewRejectCommand(tt.actor, "photos are blurry"), testNow)
			if err != nil {
				t.Fatalf("reject: %v", err)
			}
			if sub.Status != StatusRejected || out.From != tt.status {
				t.Errorf("Expected %s -> rejected, got %s -> %s", tt.status, out.From, sub.Status)
			}
			if sub.Rejection == nil || sub.Rejection.Role != tt.actor.Role || sub.Rejection.Stage != tt.actor.Role.Stage() {
				t.Errorf("unexpected rejection %+v", sub.Rejection)
			}
			if sub.Rejection.Reason != "photos are blurry" || sub.Rejection.By != tt.actor.ID {
				t.Errorf("unexpected rejection %+v", sub.Rejection)
			}
			if len(out.Notify) != 1 || out.Notify[0] != RoleSupervisor {
				t.Errorf("Expected supervisor notified, got %v", out.Notify)
			}
		})
	}
}

func TestReject_Errors(t *testing.T) {
	tests := []struct {
		name   string
		policy RejectPolicy
		status Status
		actor  Actor
		reason string
		code   ErrorCode
	}{
		{"empty reason", RejectByEditRights, StatusOperationsManagerReview, TestOperationsManager, "  ", ErrCodeInvalidInput},
		{"already rejected", RejectByEditRights, StatusRejected, TestOperationsManager, "again", ErrCodeAlreadyRejected},
		{"completed", RejectByEditRights, StatusCompleted, TestGeneralManager, "late", ErrCodeInvalidTransition},
		{"submitted", RejectByEditRights, StatusSubmitted, TestOperationsManager, "early", ErrCodeInvalidTransition},
		{"supervisor cannot reject", RejectByEditRights, StatusOperationsManagerReview, TestSupervisor, "no", ErrCodePermissionDenied},
		{"admin cannot reject", RejectByEditRights, StatusOperationsManagerReview, TestAdmin, "no", ErrCodePermissionDenied},
		{"future role under edit rights", RejectByEditRights, StatusOperationsManagerReview, TestGeneralManager, "no", ErrCodeInvalidTransition},
		{"closed window", RejectByEditRights, StatusGeneralManagerReview, TestOperationsManager, "no", ErrCodePermissionDenied},
		{"earlier role under stage policy", RejectAtOrAfterStage, StatusGeneralManagerReview, TestOperationsManager, "no", ErrCodePermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(Policy{RejectPolicy: tt.policy, AllowResign: true})
			sub := CreateSubmissionAt(tt.status)

			_, err := m.Apply(sub, NewRejectCommand(tt.actor, tt.reason), testNow)
			AssertErrorCode(t, err, tt.code)
			if sub.Status != tt.status {
				t.Errorf("status changed on error: %s", sub.Status)
			}
		})
	}
}

func TestReject_FutureRoleUnderStagePolicy(t *testing.T) {
	m := NewMachine(Policy{RejectPolicy: RejectAtOrAfterStage, AllowResign: true})
	sub := CreateSubmissionAt(StatusOperationsManagerReview)

	if _, err := m.Apply(sub, NewRejectCommand(TestGeneralManager, "wrong site"), testNow); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if sub.Rejection.Stage != StatusGeneralManagerReview {
		t.Errorf("Expected rejection stage to be the rejecting role's stage, got %s", sub.Rejection.Stage)
	}
}

func TestResubmit(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	sub := CreateSubmissionAt(StatusGeneralManagerReview)
	if _, err := m.Apply(sub, NewRejectCommand(TestGeneralManager, "recheck"), testNow); err != nil {
		t.Fatalf("reject: %v", err)
	}

	body := json.RawMessage(`{"site":"north-yard","photos":3}`)
	out, err := m.Apply(sub, NewResubmitCommand(TestSupervisor, "sig:sup-v2", body), testNow)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if sub.Status != StatusOperationsManagerReview || out.To != StatusOperationsManagerReview {
		t.Errorf("Expected resubmit to land in om review, got %s", sub.Status)
	}
	if sub.Rejection != nil {
		t.Error("Expected rejection cleared")
	}
	AssertSigned(t, sub, RoleSupervisor)
	if sub.Supervisor.Signature != "sig:sup-v2" {
		t.Errorf("Expected fresh supervisor signature, got %q", sub.Supervisor.Signature)
	}
	if string(sub.FormBody) != string(body) || sub.Revision != 1 {
		t.Errorf("Expected corrected body and revision 1, got %s rev %d", sub.FormBody, sub.Revision)
	}
	wantCleared := []Role{RoleOperationsManager, RoleBusinessDevelopment, RoleProcurement}
	if !reflect.DeepEqual(out.Cleared, wantCleared) {
		t.Errorf("Expected %v cleared, got %v", wantCleared, out.Cleared)
	}
	for _, role := range []Role{RoleOperationsManager, RoleBusinessDevelopment, RoleProcurement, RoleGeneralManager} {
		if *sub.Block(role) != (SignatureBlock{}) {
			t.Errorf("Expected %s block zeroed, got %+v", role, *sub.Block(role))
		}
	}
}

func TestResubmit_ClearsPartialJointStage(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	sub := CreateSubmissionAt(StatusBDProcurementReview)
	SignBlock(sub, RoleBusinessDevelopment)

	if _, err := m.Apply(sub, NewRejectCommand(TestProcurement, "price list outdated"), testNow); err != nil {
		t.Fatalf("reject: %v", err)
	}
	out, err := m.Apply(sub, NewResubmitCommand(TestSupervisor, "", nil), testNow)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	wantCleared := []Role{RoleOperationsManager, RoleBusinessDevelopment}
	if !reflect.DeepEqual(out.Cleared, wantCleared) {
		t.Errorf("Expected %v cleared, got %v", wantCleared, out.Cleared)
	}
	if sub.IsSigned(RoleBusinessDevelopment) || sub.IsSigned(RoleProcurement) {
		t.Error("Expected no joint stage signature after resubmit")
	}
	if JointStageSatisfied(sub) || len(PendingJointRoles(sub)) != 2 {
		t.Errorf("Expected both joint roles pending, got %v", PendingJointRoles(sub))
	}
	AssertSigned(t, sub, RoleSupervisor)
}

func TestResubmit_Errors(t *testing.T) {
	t.Run("not rejected", func(t *testing.T) {
		m := NewMachine(DefaultPolicy())
		sub := CreateSubmissionAt(StatusOperationsManagerReview)
		_, err := m.Apply(sub, NewResubmitCommand(TestSupervisor, "sig", nil), testNow)
		AssertErrorCode(t, err, ErrCodeInvalidTransition)
	})

	t.Run("other supervisor", func(t *testing.T) {
		m := NewMachine(DefaultPolicy())
		sub := CreateSubmissionAt(StatusRejected)
		_, err := m.Apply(sub, NewResubmitCommand(Actor{ID: "sup-2", Role: RoleSupervisor}, "sig", nil), testNow)
		AssertErrorCode(t, err, ErrCodePermissionDenied)
	})

	t.Run("reviewer", func(t *testing.T) {
		m := NewMachine(DefaultPolicy())
		sub := CreateSubmissionAt(StatusRejected)
		_, err := m.Apply(sub, NewResubmitCommand(TestOperationsManager, "sig", nil), testNow)
		AssertErrorCode(t, err, ErrCodePermissionDenied)
	})

	t.Run("fresh signature required", func(t *testing.T) {
		m := NewMachine(Policy{RejectPolicy: RejectByEditRights, RequireSupervisorResign: true})
		sub := CreateSubmissionAt(StatusRejected)
		_, err := m.Apply(sub, NewResubmitCommand(TestSupervisor, "", nil), testNow)
		AssertErrorCode(t, err, ErrCodeInvalidInput)
	})

	t.Run("keeps existing signature when optional", func(t *testing.T) {
		m := NewMachine(DefaultPolicy())
		sub := CreateSubmissionAt(StatusRejected)
		if _, err := m.Apply(sub, NewResubmitCommand(TestSupervisor, "", nil), testNow); err != nil {
			t.Fatalf("resubmit: %v", err)
		}
		if sub.Supervisor.Signature != "sig:"+TestSupervisor.ID {
			t.Errorf("Expected original signature kept, got %q", sub.Supervisor.Signature)
		}
	})
}
