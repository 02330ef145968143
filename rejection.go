package inspectflow

import (
	"fmt"
	"strings"
	"time"
)

func (m *Machine) reject(sub *Submission, cmd Command, now time.Time) (*Outcome, error) {
	role := cmd.Actor.Role
	if sub.Status == StatusRejected {
		return nil, NewAlreadyRejectedError(role, ActionReject)
	}
	if !sub.Status.IsReview() {
		return nil, NewInvalidTransitionError(sub.Status, role, ActionReject)
	}
	if !role.IsReviewer() {
		return nil, NewPermissionDeniedError(sub.Status, role, role.DisplayName()+" cannot reject submissions")
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return nil, NewInvalidInputError("rejection reason is required")
	}
	if !m.policy.MayReject(sub.View(), role) {
		if role.Rank() > sub.Status.Rank() {
			return nil, NewInvalidTransitionError(sub.Status, role, ActionReject)
		}
		return nil, NewPermissionDeniedError(sub.Status, role,
			fmt.Sprintf("%s does not currently hold edit rights", role.DisplayName()))
	}

	from := sub.Status
	sub.Rejection = &Rejection{
		Stage:  role.Stage(),
		Role:   role,
		Reason: reason,
		At:     now,
		By:     cmd.Actor.ID,
	}
	sub.Status = StatusRejected

	return &Outcome{
		From:    from,
		To:      StatusRejected,
		Action:  ActionReject,
		Role:    role,
		Notify:  []Role{RoleSupervisor},
		Message: fmt.Sprintf("Rejected by %s; returned to Supervisor for correction", role.DisplayName()),
	}, nil
}

// resubmit rewinds a rejected submission to the first review stage. Every
// signature from Operations Manager onward is discarded, whichever stage
// rejected it.
func (m *Machine) resubmit(sub *Submission, cmd Command, now time.Time) (*Outcome, error) {
	role := cmd.Actor.Role
	if role != RoleSupervisor || cmd.Actor.ID != sub.CreatorID {
		return nil, NewPermissionDeniedError(sub.Status, role, "only the creating supervisor may resubmit")
	}
	if sub.Status != StatusRejected {
		return nil, NewInvalidTransitionError(sub.Status, role, ActionResubmit)
	}
	signature := strings.TrimSpace(cmd.Signature)
	if signature == "" && (m.policy.RequireSupervisorResign || !sub.Supervisor.Signed()) {
		return nil, NewInvalidInputError("a new supervisor signature is required to resubmit")
	}

	out := &Outcome{
		From:   sub.Status,
		Action: ActionResubmit,
		Role:   role,
	}
	sub.Rejection = nil
	for _, r := range []Role{RoleOperationsManager, RoleBusinessDevelopment, RoleProcurement, RoleGeneralManager} {
		if b := sub.Block(r); b.Signed() || b.Actor != "" {
			out.Cleared = append(out.Cleared, r)
		}
		sub.Block(r).clear()
	}
	if signature != "" {
		sub.Supervisor.sign(cmd.Actor.ID, signature, cmd.Comments, now)
	}
	if cmd.FormBody != nil {
		sub.FormBody = append(sub.FormBody[:0:0], cmd.FormBody...)
	}
	sub.Revision++
	sub.Status = StatusOperationsManagerReview

	out.To = sub.Status
	out.Notify = []Role{RoleOperationsManager}
	out.Message = "Resubmitted to Operations Manager for review"
	return out, nil
}
