// Package memory provides an in-process Store with optimistic concurrency,
// used by tests and the CLI simulator.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/anggasct/inspectflow"
)

// Store keeps submissions in a map guarded by a RWMutex. Values are cloned on
// the way in and out so callers never share memory with the store.
type Store struct {
	mutex       sync.RWMutex
	submissions map[string]*inspectflow.Submission
}

// New creates an empty store
func New() *Store {
	return &Store{
		submissions: make(map[string]*inspectflow.Submission),
	}
}

// Create implements inspectflow.Store
func (s *Store) Create(ctx context.Context, sub *inspectflow.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.submissions[sub.ID]; exists {
		return fmt.Errorf("create %s: %w", sub.ID, inspectflow.ErrAlreadyExists)
	}
	if sub.Version == 0 {
		sub.Version = 1
	}
	s.submissions[sub.ID] = sub.Clone()
	return nil
}

// Get implements inspectflow.Store
func (s *Store) Get(ctx context.Context, id string) (*inspectflow.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sub, ok := s.submissions[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, inspectflow.ErrNotFound)
	}
	return sub.Clone(), nil
}

// Update implements inspectflow.Store. The version check and the write happen
// under one lock, so exactly one of several writers holding the same version
// succeeds.
func (s *Store) Update(ctx context.Context, sub *inspectflow.Submission, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, ok := s.submissions[sub.ID]
	if !ok {
		return fmt.Errorf("update %s: %w", sub.ID, inspectflow.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("update %s: stored version %d, expected %d: %w",
			sub.ID, current.Version, expectedVersion, inspectflow.ErrVersionConflict)
	}
	sub.Version = expectedVersion + 1
	s.submissions[sub.ID] = sub.Clone()
	return nil
}

// ListByStatus implements inspectflow.Store
func (s *Store) ListByStatus(ctx context.Context, statuses ...inspectflow.Status) ([]*inspectflow.Submission, error) {
	want := make(map[inspectflow.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	return s.filter(ctx, func(sub *inspectflow.Submission) bool {
		return want[sub.Status]
	})
}

// ListBySigner implements inspectflow.Store
func (s *Store) ListBySigner(ctx context.Context, actorID string) ([]*inspectflow.Submission, error) {
	return s.filter(ctx, func(sub *inspectflow.Submission) bool {
		return sub.SignedBy(actorID)
	})
}

// Len returns the number of stored submissions
func (s *Store) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.submissions)
}

func (s *Store) filter(ctx context.Context, keep func(*inspectflow.Submission) bool) ([]*inspectflow.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]*inspectflow.Submission, 0)
	for _, sub := range s.submissions {
		if keep(sub) {
			out = append(out, sub.Clone())
		}
	}
	return out, nil
}

var _ inspectflow.Store = (*Store)(nil)
