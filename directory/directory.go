// Package directory provides a static employee directory and the
// configured administrator list.
package directory

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/vacation-planner/leave"
)

// Static is an immutable roster. It implements leave.Directory.
type Static struct {
	roster leave.Roster
	order  []string
}

// NewStatic validates employees and builds a directory.
func NewStatic(employees []leave.Employee) (*Static, error) {
	s := &Static{roster: make(leave.Roster, len(employees))}
	for _, e := range employees {
		if e.ID == "" {
			return nil, fmt.Errorf("employee %q: empty id", e.Name)
		}
		if _, dup := s.roster[e.ID]; dup {
			return nil, fmt.Errorf("employee %s: duplicate id", e.ID)
		}
		if e.Allowance <= 0 {
			return nil, fmt.Errorf("employee %s: allowance must be positive, got %d", e.ID, e.Allowance)
		}
		if e.Greeting == "" {
			e.Greeting = e.Name
		}
		s.roster[e.ID] = e
		s.order = append(s.order, e.ID)
	}
	return s, nil
}

// Lookup returns the employee with id or leave.ErrNotFound.
func (s *Static) Lookup(_ context.Context, id string) (leave.Employee, error) {
	e, ok := s.roster[id]
	if !ok {
		return leave.Employee{}, fmt.Errorf("employee %q: %w", id, leave.ErrNotFound)
	}
	return e, nil
}

// Roster returns a copy of the roster.
func (s *Static) Roster(context.Context) (leave.Roster, error) {
	out := make(leave.Roster, len(s.roster))
	for id, e := range s.roster {
		out[id] = e
	}
	return out, nil
}

// Employees returns the roster in configuration order.
func (s *Static) Employees() []leave.Employee {
	out := make([]leave.Employee, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.roster[id])
	}
	return out
}

// Admins is a fixed set of administrator ids. It implements leave.AdminChecker.
type Admins map[string]struct{}

// NewAdmins builds the set.
func NewAdmins(ids ...string) Admins {
	a := make(Admins, len(ids))
	for _, id := range ids {
		a[id] = struct{}{}
	}
	return a
}

// IsAdmin reports whether id is in the set.
func (a Admins) IsAdmin(_ context.Context, id string) (bool, error) {
	_, ok := a[id]
	return ok, nil
}

// IDs returns the administrator ids sorted.
func (a Admins) IDs() []string {
	ids := make([]string, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DefaultEmployees is the demo roster.
func DefaultEmployees() []leave.Employee {
	return []leave.Employee{
		{ID: "1001", Name: "Mustermann Max", Greeting: "Max", Allowance: 30, Role: leave.RoleManager},
		{ID: "1002", Name: "Musterfrau Erika", Greeting: "Erika", Allowance: 30, Role: leave.RoleDeputy},
		{ID: "1003", Name: "Doe John", Greeting: "John", Allowance: 30, Role: leave.RoleBackupLead},
		{ID: "2001", Name: "Schmidt Lisa", Greeting: "Lisa", Allowance: 28, Role: leave.RoleStaff},
		{ID: "2002", Name: "Müller Hans", Greeting: "Hans", Allowance: 30, Role: leave.RoleStaff},
		{ID: "2003", Name: "Weber Sarah", Greeting: "Sarah", Allowance: 25, Role: leave.RoleStaff},
		{ID: "2004", Name: "Klein Peter", Greeting: "Peter", Allowance: 28, Role: leave.RoleStaff},
		{ID: "2005", Name: "Wagner Julia", Greeting: "Julia", Allowance: 30, Role: leave.RoleStaff},
	}
}
