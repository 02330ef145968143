package inspectflow

import (
	"context"
	"testing"
)

type panicObserver struct {
	BaseObserver
	errors []error
}

func (o *panicObserver) OnTransition(ctx context.Context, change Change) {
	panic("observer exploded")
}

func (o *panicObserver) OnError(ctx context.Context, err error) {
	o.errors = append(o.errors, err)
}

type transitionOnly struct {
	count int
}

func (o *transitionOnly) OnTransition(ctx context.Context, change Change) {
	o.count++
}

func TestObserver_BasicInterface(t *testing.T) {
	observer := NewTestObserver()

	var _ Observer = observer

	var _ ExtendedObserver = observer

	var _ ExtendedObserver = &BaseObserver{}
}

func TestObserverManager_Dispatch(t *testing.T) {
	om := NewObserverManager()
	recorder := NewTestObserver()
	plain := &transitionOnly{}
	om.AddObserver(recorder)
	om.AddObserver(plain)

	ctx := context.Background()
	sub := CreateSubmissionAt(StatusOperationsManagerReview)
	om.NotifyCreated(ctx, sub)
	om.NotifyTransition(ctx, Change{Submission: sub, Outcome: Outcome{From: StatusSubmitted, To: StatusOperationsManagerReview}})
	om.NotifyConflict(ctx, sub.ID, 1)
	om.NotifyCommandRejected(ctx, sub.ID, approve(TestSupervisor), NewAlreadySignedError(sub.Status, RoleSupervisor))

	if recorder.ChangeCount() != 1 || plain.count != 1 {
		t.Errorf("Expected one transition for each observer, got %d and %d", recorder.ChangeCount(), plain.count)
	}
	if len(recorder.Created) != 1 || recorder.ConflictCount() != 1 || len(recorder.Rejected) != 1 {
		t.Errorf("unexpected recorded events %+v", recorder)
	}

	om.RemoveObserver(plain)
	om.NotifyTransition(ctx, Change{Submission: sub})
	if plain.count != 1 {
		t.Error("Expected removed observer not to be notified")
	}
}

func TestObserverManager_PanicIsolated(t *testing.T) {
	om := NewObserverManager()
	bad := &panicObserver{}
	recorder := NewTestObserver()
	om.AddObserver(bad)
	om.AddObserver(recorder)

	om.NotifyTransition(context.Background(), Change{Submission: CreateSubmissionAt(StatusSubmitted)})

	if len(bad.errors) != 1 {
		t.Errorf("Expected panic reported to OnError, got %v", bad.errors)
	}
	if recorder.ChangeCount() != 1 {
		t.Error("Expected later observers to still be notified")
	}
}
