package inspectflow

import (
	"context"
	"fmt"
	"sync"
)

// Observer is notified after a workflow mutation commits
type Observer interface {
	// OnTransition is called for every committed command, including re-signs
	// and first joint-stage signatures that leave the status unchanged.
	OnTransition(ctx context.Context, change Change)
}

// ExtendedObserver provides additional optional observation methods
type ExtendedObserver interface {
	Observer

	// OnCreated is called when a new submission is stored
	OnCreated(ctx context.Context, sub *Submission)

	// OnCommandRejected is called when a command fails a business rule
	OnCommandRejected(ctx context.Context, submissionID string, cmd Command, err error)

	// OnConflict is called when an optimistic write loses and is retried
	OnConflict(ctx context.Context, submissionID string, attempt int)

	// OnError is called when an observer panics or storage fails
	OnError(ctx context.Context, err error)
}

// BaseObserver provides a default implementation with no-op methods
type BaseObserver struct{}

// OnTransition implements Observer
func (o *BaseObserver) OnTransition(ctx context.Context, change Change) {}

// OnCreated implements ExtendedObserver
func (o *BaseObserver) OnCreated(ctx context.Context, sub *Submission) {}

// OnCommandRejected implements ExtendedObserver
func (o *BaseObserver) OnCommandRejected(ctx context.Context, submissionID string, cmd Command, err error) {
}

// OnConflict implements ExtendedObserver
func (o *BaseObserver) OnConflict(ctx context.Context, submissionID string, attempt int) {}

// OnError implements ExtendedObserver
func (o *BaseObserver) OnError(ctx context.Context, err error) {}

// ObserverManager manages a collection of observers
type ObserverManager struct {
	mutex     sync.RWMutex
	observers []Observer
}

// NewObserverManager creates a new observer manager
func NewObserverManager() *ObserverManager {
	return &ObserverManager{
		observers: make([]Observer, 0),
	}
}

// AddObserver adds an observer to the manager
func (om *ObserverManager) AddObserver(observer Observer) {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	om.observers = append(om.observers, observer)
}

// RemoveObserver removes an observer from the manager
func (om *ObserverManager) RemoveObserver(observer Observer) {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	for i, obs := range om.observers {
		if obs == observer {
			om.observers = append(om.observers[:i], om.observers[i+1:]...)
			break
		}
	}
}

func (om *ObserverManager) snapshot() []Observer {
	om.mutex.RLock()
	defer om.mutex.RUnlock()
	observers := make([]Observer, len(om.observers))
	copy(observers, om.observers)
	return observers
}

// safely runs fn and reports a panic to the observer's OnError, if it has one.
// A panic inside OnError itself is swallowed.
func safely(ctx context.Context, observer Observer, method string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if extObs, ok := observer.(ExtendedObserver); ok {
				func() {
					defer func() { _ = recover() }()
					extObs.OnError(ctx, fmt.Errorf("observer panic in %s: %v", method, r))
				}()
			}
		}
	}()
	fn()
}

// NotifyTransition notifies all observers of a committed change
func (om *ObserverManager) NotifyTransition(ctx context.Context, change Change) {
	for _, observer := range om.snapshot() {
		observer := observer
		safely(ctx, observer, "OnTransition", func() {
			observer.OnTransition(ctx, change)
		})
	}
}

// NotifyCreated notifies all observers of a new submission
func (om *ObserverManager) NotifyCreated(ctx context.Context, sub *Submission) {
	for _, observer := range om.snapshot() {
		if extObs, ok := observer.(ExtendedObserver); ok {
			safely(ctx, observer, "OnCreated", func() {
				extObs.OnCreated(ctx, sub)
			})
		}
	}
}

// NotifyCommandRejected notifies all observers of a failed command
func (om *ObserverManager) NotifyCommandRejected(ctx context.Context, submissionID string, cmd Command, err error) {
	for _, observer := range om.snapshot() {
		if extObs, ok := observer.(ExtendedObserver); ok {
			safely(ctx, observer, "OnCommandRejected", func() {
				extObs.OnCommandRejected(ctx, submissionID, cmd, err)
			})
		}
	}
}

// NotifyConflict notifies all observers of a lost optimistic write
func (om *ObserverManager) NotifyConflict(ctx context.Context, submissionID string, attempt int) {
	for _, observer := range om.snapshot() {
		if extObs, ok := observer.(ExtendedObserver); ok {
			safely(ctx, observer, "OnConflict", func() {
				extObs.OnConflict(ctx, submissionID, attempt)
			})
		}
	}
}

// NotifyError notifies all observers of an error
func (om *ObserverManager) NotifyError(ctx context.Context, err error) {
	for _, observer := range om.snapshot() {
		if extObs, ok := observer.(ExtendedObserver); ok {
			safely(ctx, observer, "OnError", func() {
				extObs.OnError(ctx, err)
			})
		}
	}
}
