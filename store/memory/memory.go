// Package memory provides an in-memory leave.Store.
package memory

import (
	"context"
	"sync"

	"github.com/warp/vacation-planner/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store keeps the collection in process memory. It implements leave.Store.
type Store struct {
	mu       sync.RWMutex
	requests leave.Collection
	version  int64
}

// New returns an empty store at version 0.
func New() *Store {
	return &Store{requests: leave.Collection{}}
}

// NewWith returns a store preloaded with requests at version 1.
func NewWith(requests leave.Collection) *Store {
	return &Store{requests: requests.Clone(), version: 1}
}

// Load returns a copy of the collection.
func (m *Store) Load(_ context.Context) (leave.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return leave.Snapshot{Requests: m.requests.Clone(), Version: m.version}, nil
}

// Replace swaps the collection if expected matches the current version.
func (m *Store) Replace(_ context.Context, expected int64, requests leave.Collection) (leave.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if expected != m.version {
		return leave.Snapshot{}, leave.ErrConcurrentModification
	}
	m.requests = requests.Clone()
	m.version++
	return leave.Snapshot{Requests: m.requests.Clone(), Version: m.version}, nil
}

// Version returns the current version.
func (m *Store) Version() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}
