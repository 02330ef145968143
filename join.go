package inspectflow

import (
	"fmt"
	"time"
)

// joinApprove records a Business Development or Procurement signature and
// advances to General Manager review when the partner has already signed.
//
// It runs inside the Engine's read-modify-write cycle against a freshly
// loaded submission, so the partner check sees every committed signature. If
// two approvals race, both may compute "first signer" here, but only one can
// commit against the version they read; the other is retried on fresh state
// and then observes the partner signature and performs the advance.
func (m *Machine) joinApprove(sub *Submission, cmd Command, now time.Time) *Outcome {
	role := cmd.Actor.Role
	partner := role.Partner()

	out := &Outcome{
		From:   sub.Status,
		Action: ActionApprove,
		Role:   role,
	}
	sub.Block(role).sign(cmd.Actor.ID, cmd.Signature, cmd.Comments, now)

	if JointStageSatisfied(sub) {
		sub.Status = StatusGeneralManagerReview
		out.Joined = true
		out.Notify = []Role{RoleGeneralManager}
		out.Message = "Forwarded to General Manager"
	} else {
		out.Message = fmt.Sprintf("Waiting for %s approval", partner.DisplayName())
	}
	out.To = sub.Status
	return out
}

// JointStageSatisfied reports whether both joint-stage roles have signed
func JointStageSatisfied(sub *Submission) bool {
	return sub.BusinessDevelopment.Signed() && sub.Procurement.Signed()
}

// PendingJointRoles returns the joint-stage roles that have not signed yet
func PendingJointRoles(sub *Submission) []Role {
	var out []Role
	for _, r := range []Role{RoleBusinessDevelopment, RoleProcurement} {
		if !sub.IsSigned(r) {
			out = append(out, r)
		}
	}
	return out
}
