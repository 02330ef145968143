package inspectflow

import "context"

// Store persists submissions with optimistic concurrency control.
//
// Implementations return ErrNotFound for unknown ids, ErrAlreadyExists from
// Create for a duplicate id, and ErrVersionConflict from Update when the
// stored version differs from expectedVersion. On success Update sets
// sub.Version to expectedVersion+1 and stores it.
type Store interface {
	Create(ctx context.Context, sub *Submission) error
	Get(ctx context.Context, id string) (*Submission, error)
	Update(ctx context.Context, sub *Submission, expectedVersion int64) error
	// ListByStatus returns the submissions currently in any of the statuses.
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Submission, error)
	// ListBySigner returns the submissions the actor has ever signed.
	ListBySigner(ctx context.Context, actorID string) ([]*Submission, error)
}

// BlobStore holds opaque signature data and returns a reference to it. The
// engine never inspects the content.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}
