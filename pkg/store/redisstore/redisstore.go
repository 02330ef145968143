// Package redisstore persists submissions in Redis. Writes use WATCH/MULTI so
// a version check and the write commit atomically; status and signer sets
// back the pending and history queries.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/anggasct/inspectflow"
)

// DefaultPrefix namespaces every key the store writes
const DefaultPrefix = "inspectflow:"

// Store implements inspectflow.Store on a Redis client
type Store struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used for index maintenance warnings
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store on client. An empty prefix uses DefaultPrefix.
func New(client redis.UniversalClient, prefix string, opts ...Option) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	s := &Store{
		client: client,
		prefix: prefix,
		logger: slog.Default().With("component", "redisstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens a client for addr and checks it answers PING
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (s *Store) submissionKey(id string) string {
	return s.prefix + "submission:" + id
}

func (s *Store) statusKey(status inspectflow.Status) string {
	return s.prefix + "status:" + string(status)
}

func (s *Store) signerKey(actorID string) string {
	return s.prefix + "signer:" + actorID
}

// Create implements inspectflow.Store
func (s *Store) Create(ctx context.Context, sub *inspectflow.Submission) error {
	if sub.Version == 0 {
		sub.Version = 1
	}
	data, err := encode(sub)
	if err != nil {
		return err
	}
	key := s.submissionKey(sub.ID)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("create %s: %w", sub.ID, inspectflow.ErrAlreadyExists)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			s.index(ctx, pipe, nil, sub)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("create %s: %w", sub.ID, inspectflow.ErrAlreadyExists)
	}
	return err
}

// Get implements inspectflow.Store
func (s *Store) Get(ctx context.Context, id string) (*inspectflow.Submission, error) {
	data, err := s.client.Get(ctx, s.submissionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get %s: %w", id, inspectflow.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return decode(data)
}

// Update implements inspectflow.Store. The stored record is watched while its
// version is compared; a concurrent write between the read and EXEC aborts the
// transaction and surfaces as ErrVersionConflict.
func (s *Store) Update(ctx context.Context, sub *inspectflow.Submission, expectedVersion int64) error {
	key := s.submissionKey(sub.ID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("update %s: %w", sub.ID, inspectflow.ErrNotFound)
		}
		if err != nil {
			return err
		}
		current, err := decode(raw)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return fmt.Errorf("update %s: stored version %d, expected %d: %w",
				sub.ID, current.Version, expectedVersion, inspectflow.ErrVersionConflict)
		}

		next := sub.Clone()
		next.Version = expectedVersion + 1
		data, err := encode(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			s.index(ctx, pipe, current, next)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		s.logger.Debug("watched submission changed", slog.String("submission_id", sub.ID))
		return fmt.Errorf("update %s: %w", sub.ID, inspectflow.ErrVersionConflict)
	}
	if err != nil {
		return err
	}
	sub.Version = expectedVersion + 1
	return nil
}

// index queues the status and signer set changes for a write
func (s *Store) index(ctx context.Context, pipe redis.Pipeliner, prev, next *inspectflow.Submission) {
	if prev != nil && prev.Status != next.Status {
		pipe.SRem(ctx, s.statusKey(prev.Status), next.ID)
	}
	pipe.SAdd(ctx, s.statusKey(next.Status), next.ID)
	for _, actor := range next.Signers() {
		pipe.SAdd(ctx, s.signerKey(actor), next.ID)
	}
}

// ListByStatus implements inspectflow.Store
func (s *Store) ListByStatus(ctx context.Context, statuses ...inspectflow.Status) ([]*inspectflow.Submission, error) {
	if len(statuses) == 0 {
		return []*inspectflow.Submission{}, nil
	}
	keys := make([]string, len(statuses))
	for i, st := range statuses {
		keys[i] = s.statusKey(st)
	}
	ids, err := s.client.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}

	subs, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	// a record can move between the SUNION and the MGET
	want := make(map[inspectflow.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	out := subs[:0]
	for _, sub := range subs {
		if want[sub.Status] {
			out = append(out, sub)
		}
	}
	return out, nil
}

// ListBySigner implements inspectflow.Store
func (s *Store) ListBySigner(ctx context.Context, actorID string) ([]*inspectflow.Submission, error) {
	ids, err := s.client.SMembers(ctx, s.signerKey(actorID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list by signer: %w", err)
	}
	return s.load(ctx, ids)
}

func (s *Store) load(ctx context.Context, ids []string) ([]*inspectflow.Submission, error) {
	out := make([]*inspectflow.Submission, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.submissionKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget submissions: %w", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			s.logger.Warn("index points at missing submission", slog.String("submission_id", ids[i]))
			continue
		}
		sub, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func encode(sub *inspectflow.Submission) ([]byte, error) {
	data, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("encode submission %s: %w", sub.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*inspectflow.Submission, error) {
	var sub inspectflow.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	if _, err := inspectflow.ParseStatus(string(sub.Status)); err != nil {
		return nil, fmt.Errorf("decode submission %s: %w", sub.ID, err)
	}
	return &sub, nil
}

var _ inspectflow.Store = (*Store)(nil)
