// Package poller keeps page views fresh by re-fetching their resources on
// mount, on a fixed interval and after every mutation.
package poller

import (
	"context"
	"sync"
	"time"
)

// Resource is one remote collection a view displays
type Resource[T any] interface {
	Name() string
	Fetch(ctx context.Context) ([]T, error)
}

type resourceFunc[T any] struct {
	name string
	fn   func(ctx context.Context) ([]T, error)
}

func (r resourceFunc[T]) Name() string { return r.name }

func (r resourceFunc[T]) Fetch(ctx context.Context) ([]T, error) { return r.fn(ctx) }

// ResourceFunc adapts a plain fetch function such as api.Client.ListAlerts
func ResourceFunc[T any](name string, fn func(ctx context.Context) ([]T, error)) Resource[T] {
	return resourceFunc[T]{name: name, fn: fn}
}

// Slot holds the last snapshot applied for one resource. Writes are last
// write wins: a slow fetch that resolves after a faster, newer one still
// overwrites it.
type Slot[T any] struct {
	mu        sync.RWMutex
	items     []T
	fetchedAt time.Time
	loaded    bool
}

// Set replaces the snapshot
func (s *Slot[T]) Set(items []T, at time.Time) {
	s.mu.Lock()
	s.items = items
	s.fetchedAt = at
	s.loaded = true
	s.mu.Unlock()
}

// Get returns the snapshot and when it was fetched. The slice is a copy.
func (s *Slot[T]) Get() ([]T, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out, s.fetchedAt
}

// Items is Get without the timestamp
func (s *Slot[T]) Items() []T {
	items, _ := s.Get()
	return items
}

// Loaded reports whether any fetch has been applied yet
func (s *Slot[T]) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Patch applies a local, optimistic edit. The next applied fetch replaces
// it with whatever the server reports.
func (s *Slot[T]) Patch(fn func(items []T) []T) {
	s.mu.Lock()
	s.items = fn(s.items)
	s.mu.Unlock()
}
