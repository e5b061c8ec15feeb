// Package store holds process-owned key/value state behind a small interface
// so the saga and the collaborators can swap the backing implementation.
package store

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("not found")

// Store maps string keys to values of type V.
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, error)
	Put(ctx context.Context, key string, v V) error
	List(ctx context.Context) ([]V, error)
}

// Memory is a concurrency-safe in-memory Store. List returns values in first
// insertion order.
type Memory[V any] struct {
	mu    sync.RWMutex
	items map[string]V
	order []string
}

func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{items: make(map[string]V)}
}

func (m *Memory[V]) Get(_ context.Context, key string) (V, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	return v, nil
}

func (m *Memory[V]) Put(_ context.Context, key string, v V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[key]; !ok {
		m.order = append(m.order, key)
	}
	m.items[key] = v
	return nil
}

func (m *Memory[V]) List(_ context.Context) ([]V, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]V, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.items[key])
	}
	return out, nil
}

// Len returns the number of stored keys.
func (m *Memory[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
