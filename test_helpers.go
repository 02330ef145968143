package inspectflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestObserver is a mock observer for testing that captures all observer events
type TestObserver struct {
	mutex     sync.RWMutex
	Changes   []Change
	Created   []*Submission
	Rejected  []CommandRejectEvent
	Conflicts []ConflictEvent
	Errors    []error
}

type CommandRejectEvent struct {
	SubmissionID string
	Command      Command
	Err          error
}

type ConflictEvent struct {
	SubmissionID string
	Attempt      int
}

// NewTestObserver creates an empty recording observer
func NewTestObserver() *TestObserver {
	return &TestObserver{}
}

func (o *TestObserver) OnTransition(ctx context.Context, change Change) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Changes = append(o.Changes, change)
}

func (o *TestObserver) OnCreated(ctx context.Context, sub *Submission) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Created = append(o.Created, sub)
}

func (o *TestObserver) OnCommandRejected(ctx context.Context, submissionID string, cmd Command, err error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Rejected = append(o.Rejected, CommandRejectEvent{SubmissionID: submissionID, Command: cmd, Err: err})
}

func (o *TestObserver) OnConflict(ctx context.Context, submissionID string, attempt int) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Conflicts = append(o.Conflicts, ConflictEvent{SubmissionID: submissionID, Attempt: attempt})
}

func (o *TestObserver) OnError(ctx context.Context, err error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Errors = append(o.Errors, err)
}

// Reset clears all recorded events
func (o *TestObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Changes = nil
	o.Created = nil
	o.Rejected = nil
	o.Conflicts = nil
	o.Errors = nil
}

func (o *TestObserver) ChangeCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.Changes)
}

func (o *TestObserver) ConflictCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.Conflicts)
}

func (o *TestObserver) LastChange() *Change {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	if len(o.Changes) == 0 {
		return nil
	}
	c := o.Changes[len(o.Changes)-1]
	return &c
}

// JoinCount returns how many committed changes completed the joint stage
func (o *TestObserver) JoinCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	n := 0
	for _, c := range o.Changes {
		if c.Outcome.Joined {
			n++
		}
	}
	return n
}

// Test actors, one per role

var (
	TestSupervisor          = Actor{ID: "sup-1", Role: RoleSupervisor}
	TestOperationsManager   = Actor{ID: "om-1", Role: RoleOperationsManager}
	TestBusinessDevelopment = Actor{ID: "bd-1", Role: RoleBusinessDevelopment}
	TestProcurement         = Actor{ID: "proc-1", Role: RoleProcurement}
	TestGeneralManager      = Actor{ID: "gm-1", Role: RoleGeneralManager}
	TestAdmin               = Actor{ID: "admin-1", Role: RoleAdmin}
)

// TestActor returns the fixture actor for a role
func TestActor(role Role) Actor {
	switch role {
	case RoleSupervisor:
		return TestSupervisor
	case RoleOperationsManager:
		return TestOperationsManager
	case RoleBusinessDevelopment:
		return TestBusinessDevelopment
	case RoleProcurement:
		return TestProcurement
	case RoleGeneralManager:
		return TestGeneralManager
	default:
		return TestAdmin
	}
}

// TestSignature returns a signature reference for an actor
func TestSignature(actor Actor) SignInput {
	return SignInput{Signature: "sig:" + actor.ID}
}

// NewTestClock returns a clock that advances one second per call
func NewTestClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

// Submission fixtures

// CreateSubmissionAt builds a submission that reached status through the
// normal chain, with the signatures that status implies. For
// StatusBDProcurementReview the joint blocks are left empty.
func CreateSubmissionAt(status Status) *Submission {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	sub := &Submission{
		ID:        "sub-" + string(status),
		Version:   1,
		CreatedAt: start,
		UpdatedAt: start,
		Status:    StatusSubmitted,
		CreatorID: TestSupervisor.ID,
		FormBody:  []byte(`{"site":"north-yard"}`),
	}
	sign := func(role Role) {
		actor := TestActor(role)
		at := start.Add(time.Duration(role.Rank()+1) * time.Hour)
		sub.Block(role).sign(actor.ID, "sig:"+actor.ID, "", at)
	}

	switch status {
	case StatusSubmitted:
	case StatusOperationsManagerReview:
		sign(RoleSupervisor)
	case StatusBDProcurementReview:
		sign(RoleSupervisor)
		sign(RoleOperationsManager)
	case StatusGeneralManagerReview:
		sign(RoleSupervisor)
		sign(RoleOperationsManager)
		sign(RoleBusinessDevelopment)
		sign(RoleProcurement)
	case StatusCompleted:
		for _, role := range ChainRoles {
			sign(role)
		}
	case StatusRejected:
		sign(RoleSupervisor)
		sub.Rejection = &Rejection{
			Stage:  StatusOperationsManagerReview,
			Role:   RoleOperationsManager,
			Reason: "missing photos",
			At:     start.Add(2 * time.Hour),
			By:     TestOperationsManager.ID,
		}
	}
	sub.Status = status
	return sub
}

// SignBlock signs the role's block with the fixture actor
func SignBlock(sub *Submission, role Role) {
	actor := TestActor(role)
	sub.Block(role).sign(actor.ID, "sig:"+actor.ID, "", sub.UpdatedAt.Add(time.Minute))
}

// Test assertions and utilities

// AssertResult checks the status change reported by an Engine call
func AssertResult(t *testing.T, result *Result, expectedPrevious, expectedCurrent Status) {
	t.Helper()
	if result == nil {
		t.Fatalf("Expected result %s -> %s, got nil", expectedPrevious, expectedCurrent)
	}
	if result.PreviousStatus != expectedPrevious {
		t.Errorf("Expected previous status %s, got %s", expectedPrevious, result.PreviousStatus)
	}
	if result.NewStatus != expectedCurrent {
		t.Errorf("Expected new status %s, got %s", expectedCurrent, result.NewStatus)
	}
}

// AssertErrorCode checks that err carries the expected workflow error code
func AssertErrorCode(t *testing.T, err error, expected ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %s error, got nil", expected)
	}
	if code := GetErrorCode(err); code != expected {
		t.Errorf("Expected %s error, got %s (%v)", expected, code, err)
	}
}

// AssertSigned checks which chain roles hold a signature
func AssertSigned(t *testing.T, sub *Submission, roles ...Role) {
	t.Helper()
	want := make(map[Role]bool, len(roles))
	for _, r := range roles {
		want[r] = true
	}
	for _, r := range ChainRoles {
		if got := sub.IsSigned(r); got != want[r] {
			t.Errorf("%s signed = %v, expected %v", r, got, want[r])
		}
	}
}

// DriveTo walks a submission forward through the chain until it reaches
// status, signing with the fixture actor of each role the workflow waits on.
func DriveTo(ctx context.Context, engine *Engine, id string, status Status) error {
	for step := 0; step <= len(ChainRoles); step++ {
		sub, err := engine.Get(ctx, id, TestAdmin)
		if err != nil {
			return err
		}
		if sub.Status == status {
			return nil
		}
		var next Role
		for _, role := range sub.Status.ExpectedRoles() {
			if !sub.IsSigned(role) {
				next = role
				break
			}
		}
		if next == "" || sub.Status == StatusRejected {
			return fmt.Errorf("drive %s: stuck at %s, wanted %s", id, sub.Status, status)
		}
		actor := TestActor(next)
		if _, err := engine.Approve(ctx, id, actor, TestSignature(actor)); err != nil {
			return fmt.Errorf("drive %s as %s: %w", id, actor.Role, err)
		}
	}
	return fmt.Errorf("drive %s: did not reach %s", id, status)
}
