// Package inspectflow implements the approval workflow for field inspection
// reports.
//
// A report is created and signed by a Supervisor, reviewed by the Operations
// Manager, then reviewed in parallel by Business Development and Procurement,
// and finally approved by the General Manager. Any reviewer holding edit
// rights may reject it back to the Supervisor, who corrects and resubmits it
// into Operations Manager review.
//
// The package is split into a pure state machine (Machine, Resolve,
// TransitionTable) and the Engine, which runs every command as one
// optimistic read-modify-write against a Store:
//
//	engine, err := inspectflow.NewBuilder().
//		Store(memory.New()).
//		Observer(observers.NewLoggingObserver(observers.LogInfo, logger)).
//		Build()
//
//	res, err := engine.ApproveAsOperationsManager(ctx, id, actor, inspectflow.SignInput{Signature: ref})
//
// Store implementations live under pkg/store, signature blob stores under
// pkg/blob, and observers for logging, metrics and event publishing under
// pkg/observers and pkg/notify.
package inspectflow
