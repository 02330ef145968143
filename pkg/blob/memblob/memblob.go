// Package memblob is an in-memory signature BlobStore.
package memblob

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

const scheme = "mem://"

type object struct {
	data        []byte
	contentType string
}

// Store keeps signature blobs in memory
type Store struct {
	mutex   sync.RWMutex
	objects map[string]object
}

// New creates an empty blob store
func New() *Store {
	return &Store{objects: make(map[string]object)}
}

// Put stores a copy of data under key and returns its reference
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if key == "" {
		return "", fmt.Errorf("memblob: empty key")
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.objects[key] = object{data: append([]byte(nil), data...), contentType: contentType}
	return scheme + key, nil
}

// Get returns the blob behind a reference returned by Put
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, ok := strings.CutPrefix(ref, scheme)
	if !ok {
		return nil, fmt.Errorf("memblob: unsupported reference %q", ref)
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("memblob: %s not found", key)
	}
	return append([]byte(nil), obj.data...), nil
}

// ContentType returns the content type recorded for a reference
func (s *Store) ContentType(ref string) string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.objects[strings.TrimPrefix(ref, scheme)].contentType
}

// Len returns the number of stored blobs
func (s *Store) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.objects)
}
