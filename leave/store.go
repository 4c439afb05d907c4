/*
store.go - Collaborator interfaces for persistence and identity

STORE CONTRACT:
  The request set is one versioned blob. Load returns the collection and
  its version; Replace writes a whole new collection only if the stored
  version still equals expectedVersion, and returns the new snapshot.
  A stale version yields ErrConcurrentModification and nothing is written.

	snap, _ := store.Load(ctx)
	next := decide(snap.Requests)
	_, err := store.Replace(ctx, snap.Version, next)
	if leave.IsRetryable(err) {
	    // reload and decide again
	}

IMPLEMENTATIONS:
  - store/memory: mutex + counter, for tests and dev
  - store/sqlite: single-row table with a version column
  - store/redis:  hash guarded by WATCH/MULTI
*/
package leave

import "context"

// Store persists the request collection.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Replace(ctx context.Context, expectedVersion int64, requests Collection) (Snapshot, error)
}

// Directory resolves employees.
type Directory interface {
	// Lookup returns ErrNotFound for unknown ids.
	Lookup(ctx context.Context, id string) (Employee, error)
	Roster(ctx context.Context) (Roster, error)
}

// AdminChecker answers the binary administrator question.
// Callers treat an error as "not an administrator".
type AdminChecker interface {
	IsAdmin(ctx context.Context, employeeID string) (bool, error)
}
