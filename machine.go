package inspectflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Machine computes the next state of a submission for a command. It performs
// no I/O: the Engine loads, clones and persists around it.
type Machine struct {
	table  TransitionTable
	policy Policy
}

// NewMachine creates a machine over the default transition table
func NewMachine(policy Policy) *Machine {
	return &Machine{
		table:  DefaultTransitions(),
		policy: policy,
	}
}

// Table returns the machine's transition table
func (m *Machine) Table() TransitionTable {
	return m.table
}

// Policy returns the machine's policy
func (m *Machine) Policy() Policy {
	return m.policy
}

// Apply mutates sub according to cmd and returns the outcome. On error sub
// must be discarded by the caller.
func (m *Machine) Apply(sub *Submission, cmd Command, now time.Time) (*Outcome, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return nil, err
	}

	var (
		out *Outcome
		err error
	)
	switch cmd.Action {
	case ActionApprove:
		out, err = m.approve(sub, cmd, now)
	case ActionReject:
		out, err = m.reject(sub, cmd, now)
	case ActionResubmit:
		out, err = m.resubmit(sub, cmd, now)
	default:
		return nil, NewInvalidInputError(fmt.Sprintf("unsupported action %q", cmd.Action))
	}
	if err != nil {
		return nil, err
	}

	if !m.table.Allows(out.From, out.Role, out.Action, out.To) {
		return nil, &WorkflowError{
			Code:    ErrCodeInvalidTransition,
			Role:    out.Role,
			Status:  out.From,
			Message: fmt.Sprintf("%s -> %s on %s is not in the transition table", out.From, out.To, out.Action),
		}
	}
	if err := checkInvariants(sub); err != nil {
		return nil, err
	}

	sub.Audit = append(sub.Audit, AuditEntry{
		ID:       uuid.NewString(),
		At:       now,
		Actor:    cmd.Actor.ID,
		Role:     out.Role,
		Action:   out.Action,
		From:     out.From,
		To:       out.To,
		Resigned: out.Resigned,
		Note:     auditNote(cmd),
	})
	sub.UpdatedAt = now
	return out, nil
}

// EditForm replaces the form body if the actor currently holds edit rights.
// The status never changes.
func (m *Machine) EditForm(sub *Submission, actor Actor, body []byte, now time.Time) (*Outcome, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if sub.Status == StatusRejected {
		return nil, NewAlreadyRejectedError(actor.Role, ActionEditForm)
	}
	if actor.Role == RoleSupervisor && actor.ID != sub.CreatorID {
		return nil, NewPermissionDeniedError(sub.Status, actor.Role, "only the creating supervisor may edit")
	}
	view := sub.View()
	if !Resolve(view, actor.Role).CanEditBody {
		if !actor.Role.IsChainRole() {
			return nil, NewPermissionDeniedError(sub.Status, actor.Role, actor.Role.DisplayName()+" cannot edit submissions")
		}
		if err := closedWindowError(view, actor.Role); !IsAlreadySigned(err) {
			return nil, err
		}
		return nil, NewPermissionDeniedError(sub.Status, actor.Role,
			fmt.Sprintf("%s edit window is closed", actor.Role.DisplayName()))
	}

	sub.FormBody = append(sub.FormBody[:0:0], body...)
	sub.Audit = append(sub.Audit, AuditEntry{
		ID:     uuid.NewString(),
		At:     now,
		Actor:  actor.ID,
		Role:   actor.Role,
		Action: ActionEditForm,
		From:   sub.Status,
		To:     sub.Status,
	})
	sub.UpdatedAt = now
	return &Outcome{
		From:    sub.Status,
		To:      sub.Status,
		Action:  ActionEditForm,
		Role:    actor.Role,
		Message: "Form updated",
	}, nil
}

func (m *Machine) approve(sub *Submission, cmd Command, now time.Time) (*Outcome, error) {
	role := cmd.Actor.Role
	if sub.Status == StatusRejected {
		return nil, NewAlreadyRejectedError(role, ActionApprove)
	}
	if !role.IsChainRole() {
		return nil, NewPermissionDeniedError(sub.Status, role, role.DisplayName()+" cannot sign submissions")
	}
	if role == RoleSupervisor && cmd.Actor.ID != sub.CreatorID {
		return nil, NewPermissionDeniedError(sub.Status, role, "only the creating supervisor may sign")
	}
	if strings.TrimSpace(cmd.Signature) == "" {
		return nil, NewInvalidInputError("signature is required")
	}

	view := sub.View()
	block := sub.Block(role)
	if !Resolve(view, role).CanSign {
		return nil, closedWindowError(view, role)
	}
	if block.Signed() {
		if !m.policy.AllowResign {
			return nil, NewAlreadySignedError(sub.Status, role)
		}
		return m.resign(sub, cmd, now), nil
	}
	if !sub.Status.Expects(role) {
		return nil, NewInvalidTransitionError(sub.Status, role, ActionApprove)
	}

	if role.Partner() != "" {
		return m.joinApprove(sub, cmd, now), nil
	}

	out := &Outcome{From: sub.Status, Action: ActionApprove, Role: role}
	block.sign(cmd.Actor.ID, cmd.Signature, cmd.Comments, now)
	switch role {
	case RoleSupervisor:
		sub.Status = StatusOperationsManagerReview
		out.Notify = []Role{RoleOperationsManager}
		out.Message = "Submitted to Operations Manager for review"
	case RoleOperationsManager:
		// a fresh OM approval starts a new joint stage
		for _, r := range []Role{RoleBusinessDevelopment, RoleProcurement} {
			if b := sub.Block(r); b.Signed() || b.Actor != "" {
				b.clear()
				out.Cleared = append(out.Cleared, r)
			}
		}
		sub.Status = StatusBDProcurementReview
		out.Notify = []Role{RoleBusinessDevelopment, RoleProcurement}
		out.Message = "Forwarded to Business Development and Procurement"
	case RoleGeneralManager:
		sub.Status = StatusCompleted
		out.Message = "Inspection report completed"
	}
	out.To = sub.Status
	return out, nil
}

// resign overwrites the caller's signature inside its open edit window
func (m *Machine) resign(sub *Submission, cmd Command, now time.Time) *Outcome {
	role := cmd.Actor.Role
	sub.Block(role).sign(cmd.Actor.ID, cmd.Signature, cmd.Comments, now)

	msg := "Signature updated"
	if partner := role.Partner(); partner != "" && sub.Status == StatusBDProcurementReview && !sub.IsSigned(partner) {
		msg = fmt.Sprintf("Signature updated; waiting for %s approval", partner.DisplayName())
	}
	return &Outcome{
		From:     sub.Status,
		To:       sub.Status,
		Action:   ActionApprove,
		Role:     role,
		Resigned: true,
		Message:  msg,
	}
}

// closedWindowError explains why a role cannot sign: a later role already
// signed (PermissionDenied), the role signed and has been passed by the
// workflow (AlreadySigned), or its turn has not come (InvalidTransition).
func closedWindowError(v SignatureView, role Role) error {
	if laterSigned(v, role) {
		return NewPermissionDeniedError(v.Status, role,
			fmt.Sprintf("%s can no longer sign: a later stage has already signed", role.DisplayName()))
	}
	if v.Signed(role) && WindowClosed(v, role) {
		return NewAlreadySignedError(v.Status, role)
	}
	return NewInvalidTransitionError(v.Status, role, ActionApprove)
}

func laterSigned(v SignatureView, role Role) bool {
	for _, r := range ChainRoles {
		if r.Rank() > role.Rank() && v.Signed(r) {
			return true
		}
	}
	return false
}

// checkInvariants verifies the signing and join invariants on a computed state
func checkInvariants(sub *Submission) error {
	for _, role := range ChainRoles {
		if !sub.Block(role).Consistent() {
			return &WorkflowError{
				Code:    ErrCodeInvalidTransition,
				Role:    role,
				Status:  sub.Status,
				Message: "signature block is partially written",
			}
		}
	}
	if sub.Status == StatusGeneralManagerReview || sub.Status == StatusCompleted {
		if !sub.BusinessDevelopment.Signed() || !sub.Procurement.Signed() {
			return &WorkflowError{
				Code:    ErrCodeInvalidTransition,
				Status:  sub.Status,
				Message: "joint stage advanced without both signatures",
			}
		}
	}
	if (sub.Status == StatusRejected) != (sub.Rejection != nil) {
		return &WorkflowError{
			Code:    ErrCodeInvalidTransition,
			Status:  sub.Status,
			Message: "rejection fields do not match workflow status",
		}
	}
	return nil
}

func auditNote(cmd Command) string {
	switch cmd.Action {
	case ActionReject:
		return cmd.Reason
	default:
		return cmd.Comments
	}
}
