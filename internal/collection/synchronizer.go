// Package collection keeps an ordered, identity-keyed list in step with the
// server: loads replace it wholesale and every mutation is followed by a reload.
package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"feedsync/internal/models"
	"feedsync/internal/observability"
	"feedsync/internal/optimistic"
)

// FetchFunc returns the authoritative list.
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// Synchronizer holds one view's copy of a server collection. Safe for concurrent use.
type Synchronizer[K comparable, T any] struct {
	name     string
	key      func(T) K
	fetch    FetchFunc[T]
	reporter optimistic.Reporter

	mu        sync.Mutex
	items     []T
	loaded    bool
	issued    uint64
	applied   uint64
	observers []func(items []T)
}

// New creates an empty synchronizer. key extracts item identity. A nil
// reporter uses optimistic.LogReporter.
func New[K comparable, T any](name string, key func(T) K, fetch func(ctx context.Context) ([]T, error), reporter optimistic.Reporter) *Synchronizer[K, T] {
	if reporter == nil {
		reporter = optimistic.LogReporter{}
	}
	return &Synchronizer[K, T]{name: name, key: key, fetch: fetch, reporter: reporter}
}

// OnChange registers fn to run with a copy of the items after every change.
func (s *Synchronizer[K, T]) OnChange(fn func(items []T)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Load fetches the collection and replaces local state wholesale. Responses
// to loads issued before the last applied one are dropped. A failed load
// leaves the current items untouched.
func (s *Synchronizer[K, T]) Load(ctx context.Context) error {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	fetched, err := s.fetch(ctx)
	if err != nil {
		return fmt.Errorf("load %s: %w", s.name, err)
	}

	s.mu.Lock()
	if seq < s.applied {
		s.mu.Unlock()
		observability.StaleResponses.WithLabelValues(s.name).Inc()
		return nil
	}
	s.items = s.dedupe(fetched)
	s.applied = seq
	s.loaded = true
	snapshot, observers := s.snapshotLocked()
	s.mu.Unlock()

	notify(observers, snapshot)
	return nil
}

// dedupe keeps the first occurrence of each key, in server order.
func (s *Synchronizer[K, T]) dedupe(in []T) []T {
	seen := make(map[K]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, item := range in {
		k := s.key(item)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Loaded reports whether a load has ever been applied.
func (s *Synchronizer[K, T]) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Items returns a copy of the current list.
func (s *Synchronizer[K, T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.items...)
}

// Len returns the number of items.
func (s *Synchronizer[K, T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Get returns the item with id.
func (s *Synchronizer[K, T]) Get(id K) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	var zero T
	return zero, false
}

// ApplyLocalInsert prepends item, replacing any item with the same key.
func (s *Synchronizer[K, T]) ApplyLocalInsert(item T) {
	s.mu.Lock()
	k := s.key(item)
	out := make([]T, 0, len(s.items)+1)
	out = append(out, item)
	for _, existing := range s.items {
		if s.key(existing) != k {
			out = append(out, existing)
		}
	}
	s.items = out
	snapshot, observers := s.snapshotLocked()
	s.mu.Unlock()

	notify(observers, snapshot)
}

// ApplyLocalRemove drops the item with id. Returns false when absent.
func (s *Synchronizer[K, T]) ApplyLocalRemove(id K) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	snapshot, observers := s.snapshotLocked()
	s.mu.Unlock()

	notify(observers, snapshot)
	return true
}

// ApplyLocalUpdate replaces the item with id by patch(item).
func (s *Synchronizer[K, T]) ApplyLocalUpdate(id K, patch func(T) T) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return models.NewNotFoundError(s.name, id)
	}
	s.items[i] = patch(s.items[i])
	snapshot, observers := s.snapshotLocked()
	s.mu.Unlock()

	notify(observers, snapshot)
	return nil
}

// ReloadError is returned by Mutate when the mutation was accepted but the
// reload after it failed.
type ReloadError struct {
	Err error
}

func (e *ReloadError) Error() string { return e.Err.Error() }

func (e *ReloadError) Unwrap() error { return e.Err }

// MutationApplied reports whether err, returned by Mutate, still means the
// server accepted the mutation.
func MutationApplied(err error) bool {
	var reloadErr *ReloadError
	return err == nil || errors.As(err, &reloadErr)
}

// Mutate runs mutation and then reloads, whether or not the mutation
// succeeded. A mutation error is reported and returned; otherwise a reload
// failure is returned as a *ReloadError.
func (s *Synchronizer[K, T]) Mutate(ctx context.Context, mutation func(ctx context.Context) error) error {
	mutErr := mutation(ctx)
	loadErr := s.Load(ctx)

	if mutErr != nil {
		s.reporter.Report(ctx, s.name, mutErr)
		return mutErr
	}
	if loadErr != nil {
		return &ReloadError{Err: loadErr}
	}
	return nil
}

func (s *Synchronizer[K, T]) indexLocked(id K) int {
	for i := range s.items {
		if s.key(s.items[i]) == id {
			return i
		}
	}
	return -1
}

func (s *Synchronizer[K, T]) snapshotLocked() ([]T, []func([]T)) {
	return append([]T(nil), s.items...), s.observers
}

func notify[T any](observers []func([]T), items []T) {
	for _, fn := range observers {
		fn(items)
	}
}
