package inspectflow

import (
	"encoding/json"
	"time"
)

// Action is what an actor asks the workflow to do
type Action string

const (
	// ActionApprove signs the caller's block; for the Supervisor in the
	// submitted state this is the initial sign-off.
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionResubmit Action = "resubmit"
	// ActionCreate and ActionEditForm only appear in the audit trail.
	ActionCreate   Action = "create"
	ActionEditForm Action = "edit_form"
)

// Command is a single request against a submission
type Command struct {
	Action    Action
	Actor     Actor
	Comments  string
	Signature string
	Reason    string
	FormBody  json.RawMessage
	IssuedAt  time.Time
}

// NewApproveCommand creates an approve command
func NewApproveCommand(actor Actor, signature, comments string) Command {
	return Command{
		Action:    ActionApprove,
		Actor:     actor,
		Signature: signature,
		Comments:  comments,
		IssuedAt:  time.Now(),
	}
}

// NewRejectCommand creates a reject command
func NewRejectCommand(actor Actor, reason string) Command {
	return Command{
		Action:   ActionReject,
		Actor:    actor,
		Reason:   reason,
		IssuedAt: time.Now(),
	}
}

// NewResubmitCommand creates a resubmit command. Signature and body are optional.
func NewResubmitCommand(actor Actor, signature string, body json.RawMessage) Command {
	return Command{
		Action:    ActionResubmit,
		Actor:     actor,
		Signature: signature,
		FormBody:  body,
		IssuedAt:  time.Now(),
	}
}

// Outcome is what the machine decided for a command. It is computed before
// the write is committed and describes the side effects to perform after.
type Outcome struct {
	From     Status
	To       Status
	Action   Action
	Role     Role
	Resigned bool
	// Joined is set on the joint-stage approval that completed the join.
	Joined bool
	// Notify lists the roles that should be told the submission now awaits them.
	Notify []Role
	// Cleared lists the roles whose signature blocks were reset.
	Cleared []Role
	Message string
}

// StateChanged reports whether the workflow status moved
func (o *Outcome) StateChanged() bool {
	return o.From != o.To
}

// Result is returned to Workflow API callers
type Result struct {
	SubmissionID   string
	PreviousStatus Status
	NewStatus      Status
	Message        string
	Version        int64
	// Attempts is how many compute-and-write cycles the call needed.
	Attempts int
}

// Change is delivered to observers after a mutation commits
type Change struct {
	Submission *Submission
	Command    Command
	Outcome    Outcome
	Attempts   int
}
