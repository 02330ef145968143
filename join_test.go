package inspectflow

import "testing"

func TestJoin_OrderIndependent(t *testing.T) {
	orders := [][]Actor{
		{TestBusinessDevelopment, TestProcurement},
		{TestProcurement, TestBusinessDevelopment},
	}
	for _, order := range orders {
		m := NewMachine(DefaultPolicy())
		sub := CreateSubmissionAt(StatusBDProcurementReview)

		first, err := m.Apply(sub, approve(order[0]), testNow)
		if err != nil {
			t.Fatalf("first joint approve: %v", err)
		}
		if first.To != StatusBDProcurementReview || first.Joined {
			t.Errorf("%s first: expected to wait, got %+v", order[0].Role, first)
		}
		if pending := PendingJointRoles(sub); len(pending) != 1 || pending[0] != order[1].Role {
			t.Errorf("Expected %s pending, got %v", order[1].Role, pending)
		}

		second, err := m.Apply(sub, approve(order[1]), testNow)
		if err != nil {
			t.Fatalf("second joint approve: %v", err)
		}
		if second.To != StatusGeneralManagerReview || !second.Joined {
			t.Errorf("%s second: expected join, got %+v", order[1].Role, second)
		}
		if !JointStageSatisfied(sub) {
			t.Error("Expected joint stage satisfied")
		}
	}
}

func TestJoin_FirstSignerResignDoesNotAdvance(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	sub := CreateSubmissionAt(StatusBDProcurementReview)

	if _, err := m.Apply(sub, approve(TestBusinessDevelopment), testNow); err != nil {
		t.Fatalf("approve: %v", err)
	}
	out, err := m.Apply(sub, NewApproveCommand(TestBusinessDevelopment, "sig:bd-v2", ""), testNow)
	if err != nil {
		t.Fatalf("re-sign: %v", err)
	}
	if out.To != StatusBDProcurementReview || out.Joined {
		t.Errorf("Expected re-sign to leave the join pending, got %+v", out)
	}
	if out.Message != "Signature updated; waiting for Procurement approval" {
		t.Errorf("unexpected message %q", out.Message)
	}
}

func TestJoin_SecondSignerSeesCommittedPartner(t *testing.T) {
	// Two writers computed against the same version: both see "first signer".
	m := NewMachine(DefaultPolicy())
	base := CreateSubmissionAt(StatusBDProcurementReview)

	a, b := base.Clone(), base.Clone()
	outA, _ := m.Apply(a, approve(TestBusinessDevelopment), testNow)
	outB, _ := m.Apply(b, approve(TestProcurement), testNow)
	if outA.Joined || outB.Joined {
		t.Fatal("Expected neither stale computation to join")
	}

	// The loser recomputes on the winner's committed state and joins.
	retry := a.Clone()
	out, err := m.Apply(retry, approve(TestProcurement), testNow)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !out.Joined || retry.Status != StatusGeneralManagerReview {
		t.Errorf("Expected the retried approval to join, got %+v", out)
	}
}

func TestPendingJointRoles(t *testing.T) {
	sub := CreateSubmissionAt(StatusBDProcurementReview)
	if got := PendingJointRoles(sub); len(got) != 2 {
		t.Errorf("Expected both joint roles pending, got %v", got)
	}
	sub = CreateSubmissionAt(StatusGeneralManagerReview)
	if got := PendingJointRoles(sub); len(got) != 0 {
		t.Errorf("Expected no joint roles pending, got %v", got)
	}
}
