package inspectflow

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Builder provides a fluent interface for assembling an Engine
type Builder struct {
	store        Store
	blobs        BlobStore
	policy       Policy
	observers    []Observer
	logger       *slog.Logger
	maxAttempts  int
	retryBackoff time.Duration
	clock        func() time.Time
	newID        func() string
}

// NewBuilder creates a builder with the default policy and retry settings
func NewBuilder() *Builder {
	return &Builder{
		policy:       DefaultPolicy(),
		maxAttempts:  DefaultMaxAttempts,
		retryBackoff: DefaultRetryBackoff,
	}
}

// Store sets the submission store. Required.
func (b *Builder) Store(store Store) *Builder {
	b.store = store
	return b
}

// Blobs sets the signature blob store
func (b *Builder) Blobs(blobs BlobStore) *Builder {
	b.blobs = blobs
	return b
}

// Policy sets the workflow policy
func (b *Builder) Policy(policy Policy) *Builder {
	b.policy = policy
	return b
}

// Observer adds an observer
func (b *Builder) Observer(observer Observer) *Builder {
	if observer != nil {
		b.observers = append(b.observers, observer)
	}
	return b
}

// Logger sets the structured logger
func (b *Builder) Logger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Retry sets the optimistic concurrency retry bound and base backoff
func (b *Builder) Retry(maxAttempts int, backoff time.Duration) *Builder {
	b.maxAttempts = maxAttempts
	b.retryBackoff = backoff
	return b
}

// Clock overrides time.Now, mostly for tests
func (b *Builder) Clock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// IDGenerator overrides the submission id generator
func (b *Builder) IDGenerator(newID func() string) *Builder {
	b.newID = newID
	return b
}

// Build validates the configuration and returns the Engine
func (b *Builder) Build() (*Engine, error) {
	if b.store == nil {
		return nil, NewConfigurationError("Engine", "a submission store is required")
	}
	if b.maxAttempts < 1 {
		return nil, NewConfigurationError("Engine", "max attempts must be at least 1")
	}
	if b.retryBackoff < 0 {
		return nil, NewConfigurationError("Engine", "retry backoff cannot be negative")
	}
	if _, err := ParseRejectPolicy(string(b.policy.RejectPolicy)); err != nil {
		return nil, NewConfigurationError("Engine", err.Error())
	}
	if b.policy.RejectPolicy == "" {
		b.policy.RejectPolicy = RejectByEditRights
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := b.clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	newID := b.newID
	if newID == nil {
		newID = uuid.NewString
	}

	e := &Engine{
		store:        b.store,
		blobs:        b.blobs,
		machine:      NewMachine(b.policy),
		observers:    NewObserverManager(),
		logger:       logger.With("component", "inspectflow"),
		maxAttempts:  b.maxAttempts,
		retryBackoff: b.retryBackoff,
		clock:        clock,
		newID:        newID,
	}
	for _, o := range b.observers {
		e.observers.AddObserver(o)
	}
	return e, nil
}
