package observers

import (
	"context"
	"fmt"
	"sync"

	"github.com/anggasct/inspectflow"
)

// ValidationObserver checks committed changes against a transition table
// and the submission invariants. It is meant for tests and staging runs.
type ValidationObserver struct {
	inspectflow.BaseObserver
	table          inspectflow.TransitionTable
	expectedStates map[inspectflow.Status]bool
	visitedStates  map[inspectflow.Status]bool
	violations     []string
	mutex          sync.RWMutex
}

// NewValidationObserver creates a new validation observer. A nil table
// means the default workflow table.
func NewValidationObserver(table inspectflow.TransitionTable) *ValidationObserver {
	if table == nil {
		table = inspectflow.DefaultTransitions()
	}
	return &ValidationObserver{
		table:          table,
		expectedStates: make(map[inspectflow.Status]bool),
		visitedStates:  make(map[inspectflow.Status]bool),
		violations:     make([]string, 0),
	}
}

// AddExpectedState adds a status the run is expected to visit
func (o *ValidationObserver) AddExpectedState(status inspectflow.Status) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.expectedStates[status] = true
}

func (o *ValidationObserver) addViolation(message string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.violations = append(o.violations, message)
}

// OnCreated marks the initial status as visited
func (o *ValidationObserver) OnCreated(ctx context.Context, sub *inspectflow.Submission) {
	o.mutex.Lock()
	o.visitedStates[sub.Status] = true
	o.mutex.Unlock()

	if sub.Status != inspectflow.StatusSubmitted && sub.Status != inspectflow.StatusOperationsManagerReview {
		o.addViolation(fmt.Sprintf("Submission '%s' created in status '%s'", sub.ID, sub.Status))
	}
}

// OnTransition validates the change
func (o *ValidationObserver) OnTransition(ctx context.Context, change inspectflow.Change) {
	out := change.Outcome
	sub := change.Submission

	o.mutex.Lock()
	o.visitedStates[out.To] = true
	o.mutex.Unlock()

	if sub.Status != out.To {
		o.addViolation(fmt.Sprintf("Submission '%s' stored in '%s' but outcome moved to '%s'",
			sub.ID, sub.Status, out.To))
	}

	// form edits do not move the workflow and have no table row
	if out.Action == inspectflow.ActionEditForm {
		if out.StateChanged() {
			o.addViolation(fmt.Sprintf("Form edit on '%s' changed status from '%s' to '%s'",
				sub.ID, out.From, out.To))
		}
	} else if !o.table.Allows(out.From, out.Role, out.Action, out.To) {
		o.addViolation(fmt.Sprintf("Invalid transition from '%s' to '%s' on '%s' by '%s'",
			out.From, out.To, out.Action, out.Role))
	}

	if err := sub.Validate(); err != nil {
		o.addViolation(fmt.Sprintf("Submission '%s' violates invariant: %v", sub.ID, err))
	}
}

// OnError records errors as violations
func (o *ValidationObserver) OnError(ctx context.Context, err error) {
	o.addViolation(fmt.Sprintf("Error occurred: %v", err))
}

// GetViolations returns all validation violations
func (o *ValidationObserver) GetViolations() []string {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make([]string, len(o.violations))
	copy(result, o.violations)
	return result
}

// GetUnvisitedStates returns states that were expected but not visited
func (o *ValidationObserver) GetUnvisitedStates() []inspectflow.Status {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	var unvisited []inspectflow.Status
	for status := range o.expectedStates {
		if !o.visitedStates[status] {
			unvisited = append(unvisited, status)
		}
	}

	return unvisited
}

// HasViolations returns whether any violations occurred
func (o *ValidationObserver) HasViolations() bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.violations) > 0
}

// Reset resets the validation state
func (o *ValidationObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.visitedStates = make(map[inspectflow.Status]bool)
	o.violations = make([]string, 0)
}
