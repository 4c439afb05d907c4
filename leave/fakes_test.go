package leave

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/vacation-planner/calendar"
)

// =============================================================================
// TEST FAKES
// =============================================================================

// fakeStore is a versioned in-memory store that can inject version conflicts.
type fakeStore struct {
	mu        sync.Mutex
	snap      Snapshot
	conflicts int // Replace calls that fail as if another writer won
	replaces  int
}

func (f *fakeStore) Load(context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{Requests: f.snap.Requests.Clone(), Version: f.snap.Version}, nil
}

func (f *fakeStore) Replace(_ context.Context, expected int64, reqs Collection) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaces++
	if f.conflicts > 0 {
		f.conflicts--
		f.snap.Version++
		return Snapshot{}, ErrConcurrentModification
	}
	if expected != f.snap.Version {
		return Snapshot{}, ErrConcurrentModification
	}
	f.snap = Snapshot{Requests: reqs.Clone(), Version: expected + 1}
	return f.snap, nil
}

func (f *fakeStore) requests() Collection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.Requests.Clone()
}

type fakeDirectory struct {
	roster Roster
}

func (d fakeDirectory) Lookup(_ context.Context, id string) (Employee, error) {
	e, ok := d.roster[id]
	if !ok {
		return Employee{}, fmt.Errorf("employee %q: %w", id, ErrNotFound)
	}
	return e, nil
}

func (d fakeDirectory) Roster(context.Context) (Roster, error) {
	return d.roster, nil
}

type fakeAdmins struct {
	ids map[string]bool
	err error
}

func (a fakeAdmins) IsAdmin(_ context.Context, id string) (bool, error) {
	if a.err != nil {
		return false, a.err
	}
	return a.ids[id], nil
}

type countingRecorder struct {
	mu        sync.Mutex
	decisions map[string]int
	conflicts int
}

func (r *countingRecorder) Decision(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.decisions == nil {
		r.decisions = map[string]int{}
	}
	r.decisions[outcome]++
}

func (r *countingRecorder) StoreConflict() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts++
}

// =============================================================================
// FIXTURES
// =============================================================================

var testNow = time.Date(2026, time.February, 1, 9, 30, 0, 0, time.UTC)

func d(s string) calendar.Date { return calendar.MustParseDate(s) }

func emp(id string, role Role, allowance int) Employee {
	return Employee{ID: id, Name: "Name " + id, Greeting: id, Allowance: allowance, Role: role}
}

// standardRoster has three supervisors and four staff.
func standardRoster() Roster {
	return Roster{
		"m1": emp("m1", RoleManager, 30),
		"d1": emp("d1", RoleDeputy, 30),
		"b1": emp("b1", RoleBackupLead, 30),
		"s1": emp("s1", RoleStaff, 30),
		"s2": emp("s2", RoleStaff, 30),
		"s3": emp("s3", RoleStaff, 30),
		"s4": emp("s4", RoleStaff, 28),
	}
}

func req(id int64, owner string, start, end string, status Status) Request {
	return Request{
		ID:        id,
		OwnerID:   owner,
		OwnerName: "Name " + owner,
		Start:     d(start),
		End:       d(end),
		Status:    status,
	}
}

func newTestCalendar(t *testing.T) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.NewCalendar("BW")
	require.NoError(t, err)
	return cal
}

type testEnv struct {
	svc     *Service
	store   *fakeStore
	roster  Roster
	metrics *countingRecorder
}

func newTestService(t *testing.T, roster Roster, existing ...Request) *testEnv {
	t.Helper()
	cal := newTestCalendar(t)
	for i := range existing {
		existing[i].ChargeableDays = cal.ChargeableDays(existing[i].Period())
	}
	store := &fakeStore{snap: Snapshot{Requests: Collection(existing).Clone()}}
	metrics := &countingRecorder{}
	svc, err := NewService(Config{
		Calendar:    cal,
		Policy:      DefaultPolicy,
		Store:       store,
		Directory:   fakeDirectory{roster: roster},
		Admins:      fakeAdmins{ids: map[string]bool{"m1": true}},
		Metrics:     metrics,
		DisplayYear: 2026,
		Now:         func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return &testEnv{svc: svc, store: store, roster: roster, metrics: metrics}
}

func (e *testEnv) caller(t *testing.T, id string) Caller {
	t.Helper()
	c, err := e.svc.ResolveCaller(context.Background(), id)
	require.NoError(t, err)
	return c
}
