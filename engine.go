package inspectflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxAttempts bounds the optimistic compute-and-write cycle.
	DefaultMaxAttempts = 5
	// DefaultRetryBackoff is the base delay between conflicting attempts.
	DefaultRetryBackoff = 5 * time.Millisecond
)

// Engine is the Workflow API. It is safe for concurrent use; every mutating
// call is one optimistic read-modify-write against the Store.
type Engine struct {
	store        Store
	blobs        BlobStore
	machine      *Machine
	observers    *ObserverManager
	logger       *slog.Logger
	maxAttempts  int
	retryBackoff time.Duration
	clock        func() time.Time
	newID        func() string
}

// CreateInput describes a new submission. When Signature or SignatureData is
// set the Supervisor's sign-off is recorded in the same write and the
// submission goes straight to Operations Manager review.
type CreateInput struct {
	FormBody      json.RawMessage
	Comments      string
	Signature     string
	SignatureData []byte
	ContentType   string
}

// SignInput carries a signature. Signature is an opaque reference; when
// SignatureData is given instead it is uploaded to the BlobStore first.
type SignInput struct {
	Comments      string
	Signature     string
	SignatureData []byte
	ContentType   string
}

// ResubmitInput carries the corrected form body and an optional new
// Supervisor signature.
type ResubmitInput struct {
	FormBody      json.RawMessage
	Comments      string
	Signature     string
	SignatureData []byte
	ContentType   string
}

type mutation func(sub *Submission, now time.Time) (*Outcome, error)

// Machine returns the engine's state machine
func (e *Engine) Machine() *Machine {
	return e.machine
}

// AddObserver registers an observer for committed changes
func (e *Engine) AddObserver(observer Observer) {
	e.observers.AddObserver(observer)
}

// RemoveObserver unregisters an observer
func (e *Engine) RemoveObserver(observer Observer) {
	e.observers.RemoveObserver(observer)
}

// Create stores a new submission owned by the calling Supervisor
func (e *Engine) Create(ctx context.Context, actor Actor, in CreateInput) (*Submission, error) {
	const op = "create"
	if err := actor.Validate(); err != nil {
		return nil, annotate(err, op, "")
	}
	if actor.Role != RoleSupervisor {
		return nil, annotate(NewPermissionDeniedError(StatusSubmitted, actor.Role, "only a supervisor may create submissions"), op, "")
	}

	now := e.clock()
	sub := &Submission{
		ID:        e.newID(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    StatusSubmitted,
		CreatorID: actor.ID,
		FormBody:  in.FormBody,
	}
	sub.Audit = append(sub.Audit, AuditEntry{
		ID:     uuid.NewString(),
		At:     now,
		Actor:  actor.ID,
		Role:   actor.Role,
		Action: ActionCreate,
		From:   StatusSubmitted,
		To:     StatusSubmitted,
	})

	var (
		cmd Command
		out *Outcome
	)
	signed := in.Signature != "" || len(in.SignatureData) > 0
	if signed {
		var err error
		ref := in.Signature
		if len(in.SignatureData) > 0 {
			ref, err = e.uploadSignature(ctx, sub.ID, actor.Role, in.SignatureData, in.ContentType)
			if err != nil {
				return nil, annotate(err, op, sub.ID)
			}
		}
		cmd = NewApproveCommand(actor, ref, in.Comments)
		out, err = e.machine.Apply(sub, cmd, now)
		if err != nil {
			return nil, annotate(err, op, sub.ID)
		}
	}

	if err := e.store.Create(ctx, sub); err != nil {
		e.observers.NotifyError(ctx, err)
		return nil, fmt.Errorf("%s: store submission %s: %w", op, sub.ID, err)
	}
	e.logger.Info("submission created",
		slog.String("submission_id", sub.ID),
		slog.String("creator", actor.ID),
		slog.String("status", string(sub.Status)))

	e.observers.NotifyCreated(ctx, sub.Clone())
	if signed {
		e.observers.NotifyTransition(ctx, Change{Submission: sub.Clone(), Command: cmd, Outcome: *out, Attempts: 1})
	}
	return sub.Clone(), nil
}

// Approve signs the actor's block and advances the workflow as far as the
// transition table allows.
func (e *Engine) Approve(ctx context.Context, id string, actor Actor, in SignInput) (*Result, error) {
	const op = "approve"
	if err := actor.Validate(); err != nil {
		return nil, annotate(err, op, id)
	}
	cmd := NewApproveCommand(actor, in.Signature, in.Comments)
	cmd.IssuedAt = e.clock()
	if err := e.attachSignature(ctx, op, id, &cmd, in.SignatureData, in.ContentType); err != nil {
		return nil, err
	}
	return e.execute(ctx, op, id, cmd, func(sub *Submission, now time.Time) (*Outcome, error) {
		return e.machine.Apply(sub, cmd, now)
	})
}

// ApproveAsSupervisor records the Supervisor's initial sign-off
func (e *Engine) ApproveAsSupervisor(ctx context.Context, id string, actor Actor, in SignInput) (*Result, error) {
	return e.approveAs(ctx, RoleSupervisor, id, actor, in)
}

// ApproveAsOperationsManager records the Operations Manager approval
func (e *Engine) ApproveAsOperationsManager(ctx context.Context, id string, actor Actor, in SignInput) (*Result, error) {
	return e.approveAs(ctx, RoleOperationsManager, id, actor, in)
}

// ApproveAsBusinessDevelopment records the Business Development approval
func (e *Engine) ApproveAsBusinessDevelopment(ctx context.Context, id string, actor Actor, in SignInput) (*Result, error) {
	return e.approveAs(ctx, RoleBusinessDevelopment, id, actor, in)
}

// ApproveAsProcurement records the Procurement approval
func (e *Engine) ApproveAsProcurement(ctx context.Context, id string, actor Actor, in SignInput) (*Result, error) {
	return e.approveAs(ctx, RoleProcurement, id, actor, in)
}

// ApproveAsGeneralManager records the General Manager approval
func (e *Engine) ApproveAsGeneralManager(ctx context.Context, id string, actor Actor, in SignInput) (*Result, error) {
	return e.approveAs(ctx, RoleGeneralManager, id, actor, in)
}

func (e *Engine) approveAs(ctx context.Context, role Role, id string, actor Actor, in SignInput) (*Result, error) {
	if actor.Role != role {
		return nil, annotate(&WorkflowError{
			Code:    ErrCodePermissionDenied,
			Role:    actor.Role,
			Message: fmt.Sprintf("%s cannot approve as %s", actor.Role.DisplayName(), role.DisplayName()),
		}, "approve", id)
	}
	return e.Approve(ctx, id, actor, in)
}

// Reject sends the submission back to the Supervisor with a reason
func (e *Engine) Reject(ctx context.Context, id string, actor Actor, reason string) (*Result, error) {
	const op = "reject"
	cmd := NewRejectCommand(actor, reason)
	cmd.IssuedAt = e.clock()
	return e.execute(ctx, op, id, cmd, func(sub *Submission, now time.Time) (*Outcome, error) {
		return e.machine.Apply(sub, cmd, now)
	})
}

// Resubmit rewinds a rejected submission to Operations Manager review
func (e *Engine) Resubmit(ctx context.Context, id string, actor Actor, in ResubmitInput) (*Result, error) {
	const op = "resubmit"
	if err := actor.Validate(); err != nil {
		return nil, annotate(err, op, id)
	}
	cmd := NewResubmitCommand(actor, in.Signature, in.FormBody)
	cmd.Comments = in.Comments
	cmd.IssuedAt = e.clock()
	if err := e.attachSignature(ctx, op, id, &cmd, in.SignatureData, in.ContentType); err != nil {
		return nil, err
	}
	return e.execute(ctx, op, id, cmd, func(sub *Submission, now time.Time) (*Outcome, error) {
		return e.machine.Apply(sub, cmd, now)
	})
}

// UpdateForm replaces the form body while the actor holds edit rights
func (e *Engine) UpdateForm(ctx context.Context, id string, actor Actor, body json.RawMessage) (*Result, error) {
	const op = "update_form"
	cmd := Command{Action: ActionEditForm, Actor: actor, FormBody: body, IssuedAt: e.clock()}
	return e.execute(ctx, op, id, cmd, func(sub *Submission, now time.Time) (*Outcome, error) {
		return e.machine.EditForm(sub, actor, body, now)
	})
}

// Get returns the submission if the actor may view it
func (e *Engine) Get(ctx context.Context, id string, actor Actor) (*Submission, error) {
	const op = "get"
	if err := actor.Validate(); err != nil {
		return nil, annotate(err, op, id)
	}
	sub, err := e.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if !Resolve(sub.View(), actor.Role).CanView {
		return nil, annotate(NewPermissionDeniedError(sub.Status, actor.Role,
			fmt.Sprintf("%s cannot view this submission yet", actor.Role.DisplayName())), op, id)
	}
	return sub, nil
}

// Permissions resolves the actor's current rights on a submission
func (e *Engine) Permissions(ctx context.Context, id string, actor Actor) (Permissions, error) {
	const op = "permissions"
	if err := actor.Validate(); err != nil {
		return Permissions{}, annotate(err, op, id)
	}
	sub, err := e.load(ctx, op, id)
	if err != nil {
		return Permissions{}, err
	}
	perms := Resolve(sub.View(), actor.Role)
	if actor.Role == RoleSupervisor && actor.ID != sub.CreatorID {
		perms.CanEditBody = false
		perms.CanSign = false
	}
	return perms, nil
}

// ListPendingFor returns the ids of submissions waiting on the role. A joint
// stage submission is pending for a role only until that role has signed.
func (e *Engine) ListPendingFor(ctx context.Context, role Role) ([]string, error) {
	if !role.Valid() {
		return nil, annotate(NewInvalidInputError("unknown role "+string(role)), "list_pending", "")
	}
	var statuses []Status
	for _, st := range AllStatuses {
		if st.Expects(role) {
			statuses = append(statuses, st)
		}
	}
	if len(statuses) == 0 {
		return []string{}, nil
	}

	subs, err := e.store.ListByStatus(ctx, statuses...)
	if err != nil {
		return nil, fmt.Errorf("list_pending: %w", err)
	}
	pending := make([]*Submission, 0, len(subs))
	for _, sub := range subs {
		if sub.Status == StatusBDProcurementReview && sub.IsSigned(role) {
			continue
		}
		pending = append(pending, sub)
	}
	return sortedIDs(pending), nil
}

// ListHistoryFor returns the ids of submissions the actor has ever signed
func (e *Engine) ListHistoryFor(ctx context.Context, actorID string) ([]string, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, annotate(NewInvalidInputError("actor id is required"), "list_history", "")
	}
	subs, err := e.store.ListBySigner(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list_history: %w", err)
	}
	signed := make([]*Submission, 0, len(subs))
	for _, sub := range subs {
		if sub.SignedBy(actorID) {
			signed = append(signed, sub)
		}
	}
	return sortedIDs(signed), nil
}

// execute runs one optimistic read-modify-write cycle, retrying on version
// conflicts up to maxAttempts times.
func (e *Engine) execute(ctx context.Context, op, id string, cmd Command, mutate mutation) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		current, err := e.load(ctx, op, id)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		out, err := mutate(next, e.clock())
		if err != nil {
			e.observers.NotifyCommandRejected(ctx, id, cmd, err)
			return nil, annotate(err, op, id)
		}

		err = e.store.Update(ctx, next, current.Version)
		if errors.Is(err, ErrVersionConflict) {
			lastErr = err
			e.observers.NotifyConflict(ctx, id, attempt)
			e.logger.Debug("optimistic write lost, retrying",
				slog.String("op", op),
				slog.String("submission_id", id),
				slog.Int("attempt", attempt))
			if werr := e.wait(ctx, attempt); werr != nil {
				return nil, fmt.Errorf("%s: %w", op, werr)
			}
			continue
		}
		if err != nil {
			e.observers.NotifyError(ctx, err)
			return nil, fmt.Errorf("%s: store submission %s: %w", op, id, err)
		}

		e.observers.NotifyTransition(ctx, Change{
			Submission: next.Clone(),
			Command:    cmd,
			Outcome:    *out,
			Attempts:   attempt,
		})
		return &Result{
			SubmissionID:   id,
			PreviousStatus: out.From,
			NewStatus:      out.To,
			Message:        out.Message,
			Version:        next.Version,
			Attempts:       attempt,
		}, nil
	}

	e.logger.Warn("optimistic retries exhausted",
		slog.String("op", op),
		slog.String("submission_id", id),
		slog.Int("attempts", e.maxAttempts))
	return nil, annotate(NewConcurrentModificationError(id, e.maxAttempts, lastErr), op, id)
}

func (e *Engine) load(ctx context.Context, op, id string) (*Submission, error) {
	sub, err := e.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, annotate(NewNotFoundError(id), op, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: load submission %s: %w", op, id, err)
	}
	return sub, nil
}

func (e *Engine) wait(ctx context.Context, attempt int) error {
	if e.retryBackoff <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(e.retryBackoff * time.Duration(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pendingSignature stands in for a signature reference while a command is
// checked ahead of its upload.
const pendingSignature = "pending-upload"

// attachSignature uploads raw signature data and points cmd at the stored
// reference. The command is first applied to a copy of the current state, so
// a refused command never writes to the BlobStore.
func (e *Engine) attachSignature(ctx context.Context, op, id string, cmd *Command, data []byte, contentType string) error {
	if len(data) == 0 {
		return nil
	}
	if e.blobs == nil {
		return annotate(NewInvalidInputError("signature data given but no signature store is configured"), op, id)
	}

	current, err := e.load(ctx, op, id)
	if err != nil {
		return err
	}
	trial := *cmd
	trial.Signature = pendingSignature
	if _, err := e.machine.Apply(current.Clone(), trial, e.clock()); err != nil {
		e.observers.NotifyCommandRejected(ctx, id, *cmd, err)
		return annotate(err, op, id)
	}

	ref, err := e.uploadSignature(ctx, id, cmd.Actor.Role, data, contentType)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	cmd.Signature = ref
	return nil
}

// uploadSignature stores raw signature data and returns its reference
func (e *Engine) uploadSignature(ctx context.Context, id string, role Role, data []byte, contentType string) (string, error) {
	if e.blobs == nil {
		return "", NewInvalidInputError("signature data given but no signature store is configured")
	}
	if contentType == "" {
		contentType = "image/png"
	}
	key := fmt.Sprintf("signatures/%s/%s/%s", id, role, uuid.NewString())
	stored, err := e.blobs.Put(ctx, key, data, contentType)
	if err != nil {
		return "", fmt.Errorf("upload signature: %w", err)
	}
	return stored, nil
}

func annotate(err error, op, id string) error {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.withOp(op, id)
	}
	return err
}

func sortedIDs(subs []*Submission) []string {
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.Before(subs[j].CreatedAt)
		}
		return subs[i].ID < subs[j].ID
	})
	ids := make([]string, len(subs))
	for i, sub := range subs {
		ids[i] = sub.ID
	}
	return ids
}
