// Package database holds the in-memory entity stores owned by each subgraph.
// Records live for the lifetime of the process and are not persisted.
package database

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotFound is returned by FindByKey when no record has the key
	ErrNotFound = errors.New("record not found")
	// ErrKeyCollision is returned by Create when the key is already taken
	ErrKeyCollision = errors.New("key already exists")
)

// Store is a keyed collection of records of one entity type.
// Create is serialized; reads run concurrently with each other.
type Store[T any] struct {
	name string
	key  func(T) string

	mu      sync.RWMutex
	records []T
	index   map[string]int
}

// NewStore creates an empty store; key extracts the record's key field
func NewStore[T any](name string, key func(T) string) *Store[T] {
	return &Store[T]{
		name:  name,
		key:   key,
		index: make(map[string]int),
	}
}

// Name returns the store name used in errors and logs
func (s *Store[T]) Name() string {
	return s.name
}

// Create appends the record and returns the stored copy.
// A record whose key is already present is rejected with ErrKeyCollision.
func (s *Store[T]) Create(record T) (T, error) {
	k := s.key(record)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[k]; exists {
		var zero T
		return zero, fmt.Errorf("%s %q: %w", s.name, k, ErrKeyCollision)
	}

	s.index[k] = len(s.records)
	s.records = append(s.records, record)

	return record, nil
}

// FindAll returns a snapshot of all records in creation order
func (s *Store[T]) FindAll() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, len(s.records))
	copy(out, s.records)
	return out
}

// FindByKey returns the record with the given key or ErrNotFound
func (s *Store[T]) FindByKey(key string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[key]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %q: %w", s.name, key, ErrNotFound)
	}
	return s.records[i], nil
}

// FindByForeignKey returns every record whose field equals value, in creation
// order. The result is empty, never nil, when nothing matches.
func (s *Store[T]) FindByForeignKey(field func(T) string, value string) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, 0)
	for _, r := range s.records {
		if field(r) == value {
			out = append(out, r)
		}
	}
	return out
}

// FindByForeignKeys is the batch form of FindByForeignKey: one scan, grouped
// by value. Every requested value is present in the result.
func (s *Store[T]) FindByForeignKeys(field func(T) string, values []string) map[string][]T {
	out := make(map[string][]T, len(values))
	for _, v := range values {
		out[v] = make([]T, 0)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		v := field(r)
		if group, ok := out[v]; ok {
			out[v] = append(group, r)
		}
	}
	return out
}

// Len returns the number of stored records
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// IsNotFound reports whether err is a missing-record error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsKeyCollision reports whether err is a duplicate-key error
func IsKeyCollision(err error) bool {
	return errors.Is(err, ErrKeyCollision)
}
