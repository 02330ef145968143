package inspectflow

import (
	"testing"
	"time"
)

var testNow = time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

func approve(actor Actor) Command {
	return NewApproveCommand(actor, "sig:"+actor.ID, "")
}

func TestMachine_MainChain(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	sub := CreateSubmissionAt(StatusSubmitted)

	steps := []struct {
		actor Actor
		to    Status
	}{
		{TestSupervisor, StatusOperationsManagerReview},
		{TestOperationsManager, StatusBDProcurementReview},
		{TestBusinessDevelopment, StatusBDProcurementReview},
		{TestProcurement, StatusGeneralManagerReview},
		{TestGeneralManager, StatusCompleted},
	}
	for _, step := range steps {
		out, err := m.Apply(sub, approve(step.actor), testNow)
		if err != nil {
			t.Fatalf("%s approve: %v", step.actor.Role, err)
		}
		if out.To != step.to || sub.Status != step.to {
			t.Fatalf("%s approve: expected %s, got outcome %s status %s", step.actor.Role, step.to, out.To, sub.Status)
		}
	}
	AssertSigned(t, sub, ChainRoles...)

	if len(sub.Audit) != len(steps) {
		t.Errorf("Expected %d audit entries, got %d", len(steps), len(sub.Audit))
	}
}

func TestMachine_OutcomeMessages(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	sub := CreateSubmissionAt(StatusSubmitted)

	out, _ := m.Apply(sub, approve(TestSupervisor), testNow)
	if out.Message != "Submitted to Operations Manager for review" {
		t.Errorf("unexpected message %q", out.Message)
	}
	out, _ = m.Apply(sub, approve(TestOperationsManager), testNow)
	if out.Message != "Forwarded to Business Development and Procurement" {
		t.Errorf("unexpected message %q", out.Message)
	}
	if len(out.Notify) != 2 {
		t.Errorf("Expected both joint roles to be notified, got %v", out.Notify)
	}
	out, _ = m.Apply(sub, approve(TestProcurement), testNow)
	if out.Message != "Waiting for Business Development approval" {
		t.Errorf("unexpected message %q", out.Message)
	}
	out, _ = m.Apply(sub, approve(TestBusinessDevelopment), testNow)
	if out.Message != "Forwarded to General Manager" || !out.Joined {
		t.Errorf("unexpected join outcome %+v", out)
	}
	out, _ = m.Apply(sub, approve(TestGeneralManager), testNow)
	if out.Message != "Inspection report completed" {
		t.Errorf("unexpected message %q", out.Message)
	}
}

func TestMachine_ApproveErrors(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		actor  Actor
		code   ErrorCode
	}{
		{"om before supervisor signs", StatusSubmitted, TestOperationsManager, ErrCodeInvalidTransition},
		{"bd before om signs", StatusOperationsManagerReview, TestBusinessDevelopment, ErrCodeInvalidTransition},
		{"gm during joint stage", StatusBDProcurementReview, TestGeneralManager, ErrCodeInvalidTransition},
		{"supervisor after submitting", StatusOperationsManagerReview, TestSupervisor, ErrCodeAlreadySigned},
		{"om after joint signer", StatusGeneralManagerReview, TestOperationsManager, ErrCodePermissionDenied},
		{"bd after gm signed", StatusCompleted, TestBusinessDevelopment, ErrCodePermissionDenied},
		{"supervisor on completed", StatusCompleted, TestSupervisor, ErrCodePermissionDenied},
		{"approve rejected", StatusRejected, TestOperationsManager, ErrCodeAlreadyRejected},
		{"admin cannot sign", StatusOperationsManagerReview, TestAdmin, ErrCodePermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(DefaultPolicy())
			sub := CreateSubmissionAt(tt.status)
			before := sub.Clone()

			_, err := m.Apply(sub, approve(tt.actor), testNow)
			AssertErrorCode(t, err, tt.code)
			if sub.Status != before.Status {
				t.Errorf("status changed on error: %s -> %s", before.Status, sub.Status)
			}
		})
	}
}

func TestMachine_ApproveRequiresSignature(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	sub := CreateSubmissionAt(StatusOperationsManagerReview)

	_, err := m.Apply(sub, NewApproveCommand(TestOperationsManager, "  ", ""), testNow)
	AssertErrorCode(t, err, ErrCodeInvalidInput)
	if sub.OperationsManager.Signed() {
		t.Error("Expected no partial signature after a failed approve")
	}
}

func TestMachine_OnlyCreatorSigns(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	sub := CreateSubmissionAt(StatusSubmitted)
	other := Actor{ID: "sup-2", Role: RoleSupervisor}

	_, err := m.Apply(sub, approve(other), testNow)
	AssertErrorCode(t, err, ErrCodePermissionDenied)
}

func TestMachine_Resign(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	sub := CreateSubmissionAt(StatusBDProcurementReview)

	out, err := m.Apply(sub, NewApproveCommand(TestOperationsManager, "sig:new", "second look"), testNow)
	if err != nil {
		t.Fatalf("re-sign: %v", err)
	}
	if !out.Resigned || out.StateChanged() {
		t.Errorf("Expected a re-sign without status change, got %+v", out)
	}
	if sub.OperationsManager.Signature != "sig:new" || sub.OperationsManager.Comments != "second look" {
		t.Errorf("Expected signature block overwritten, got %+v", sub.OperationsManager)
	}
	if !sub.Audit[len(sub.Audit)-1].Resigned {
		t.Error("Expected audit entry to be marked as re-sign")
	}
}

func TestMachine_ResignDisabled(t *testing.T) {
	policy := DefaultPolicy()
	policy.AllowResign = false
	m := NewMachine(policy)
	sub := CreateSubmissionAt(StatusGeneralManagerReview)

	_, err := m.Apply(sub, approve(TestProcurement), testNow)
	AssertErrorCode(t, err, ErrCodeAlreadySigned)
}

func TestMachine_GeneralManagerResignsCompleted(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	sub := CreateSubmissionAt(StatusCompleted)

	out, err := m.Apply(sub, NewApproveCommand(TestGeneralManager, "sig:gm-v2", ""), testNow)
	if err != nil {
		t.Fatalf("re-sign: %v", err)
	}
	if out.To != StatusCompleted || sub.GeneralManager.Signature != "sig:gm-v2" {
		t.Errorf("unexpected re-sign result %+v", out)
	}
}

func TestMachine_OperationsManagerClearsJointBlocks(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	sub := CreateSubmissionAt(StatusOperationsManagerReview)
	// unsigned leftover from an earlier cycle
	sub.Procurement.Actor = "proc-old"
	sub.Procurement.Comments = "draft"

	out, err := m.Apply(sub, approve(TestOperationsManager), testNow)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if sub.Procurement != (SignatureBlock{}) {
		t.Error("Expected joint block to be reset on a fresh OM approval")
	}
	if len(out.Cleared) != 1 || out.Cleared[0] != RoleProcurement {
		t.Errorf("Expected procurement reported cleared, got %v", out.Cleared)
	}
	AssertSigned(t, sub, RoleSupervisor, RoleOperationsManager)
}

func TestMachine_EditForm(t *testing.T) {
	m := NewMachine(DefaultPolicy())

	t.Run("om edits during its window", func(t *testing.T) {
		sub := CreateSubmissionAt(StatusOperationsManagerReview)
		out, err := m.EditForm(sub, TestOperationsManager, []byte(`{"site":"south"}`), testNow)
		if err != nil {
			t.Fatalf("edit: %v", err)
		}
		if string(sub.FormBody) != `{"site":"south"}` || out.StateChanged() {
			t.Errorf("unexpected edit result %+v body %s", out, sub.FormBody)
		}
	})

	t.Run("supervisor window closed", func(t *testing.T) {
		sub := CreateSubmissionAt(StatusOperationsManagerReview)
		_, err := m.EditForm(sub, TestSupervisor, []byte(`{}`), testNow)
		AssertErrorCode(t, err, ErrCodePermissionDenied)
	})

	t.Run("not yet arrived", func(t *testing.T) {
		sub := CreateSubmissionAt(StatusOperationsManagerReview)
		_, err := m.EditForm(sub, TestGeneralManager, []byte(`{}`), testNow)
		AssertErrorCode(t, err, ErrCodeInvalidTransition)
	})

	t.Run("rejected", func(t *testing.T) {
		sub := CreateSubmissionAt(StatusRejected)
		_, err := m.EditForm(sub, TestSupervisor, []byte(`{}`), testNow)
		AssertErrorCode(t, err, ErrCodeAlreadyRejected)
	})
}

func TestMachine_UnsupportedAction(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	sub := CreateSubmissionAt(StatusSubmitted)

	_, err := m.Apply(sub, Command{Action: ActionEditForm, Actor: TestSupervisor}, testNow)
	AssertErrorCode(t, err, ErrCodeInvalidInput)
}

func TestCheckInvariants(t *testing.T) {
	sub := CreateSubmissionAt(StatusBDProcurementReview)
	SignBlock(sub, RoleBusinessDevelopment)
	sub.Status = StatusGeneralManagerReview

	if err := checkInvariants(sub); !IsInvalidTransition(err) {
		t.Errorf("Expected join invariant violation, got %v", err)
	}

	sub = CreateSubmissionAt(StatusOperationsManagerReview)
	sub.Supervisor.Signature = ""
	if err := checkInvariants(sub); !IsInvalidTransition(err) {
		t.Errorf("Expected partial block violation, got %v", err)
	}

	sub = CreateSubmissionAt(StatusRejected)
	sub.Rejection = nil
	if err := checkInvariants(sub); !IsInvalidTransition(err) {
		t.Errorf("Expected rejection invariant violation, got %v", err)
	}
}
