/*
Package leave is the leave-request admission engine.

KEY CONCEPTS:
  - Employee: a roster entry with an annual allowance and a role
  - Request: one absence interval with a cached chargeable-day count
  - Collection: the whole persisted request set, replaced atomically
  - Evaluator: the per-day capacity and coverage rules
  - Service: quota check, evaluation, force override and persistence

REQUEST LIFECYCLE:

	submit ──▶ pending ──approve──▶ approved
	   │
	   └─force──▶ waitlist ──approve──▶ approved

	delete removes a record in any status. There is no rejected status:
	an administrator rejects a request by deleting it.

SEE ALSO:
  - capacity.go: Evaluator
  - service.go: Service (the admission controller)
  - errors.go: error taxonomy
*/
package leave

import (
	"fmt"
	"strings"

	"github.com/warp/vacation-planner/calendar"
)

// =============================================================================
// ROLE - Closed set of role categories
// =============================================================================

// Role categorizes an employee for the coverage rule.
type Role string

const (
	RoleManager    Role = "manager"
	RoleDeputy     Role = "deputy"
	RoleBackupLead Role = "backup_lead"
	RoleStaff      Role = "staff"
)

var roleAliases = map[string]Role{
	"manager":         RoleManager,
	"deputy":          RoleDeputy,
	"backup_lead":     RoleBackupLead,
	"backup-lead":     RoleBackupLead,
	"tagesvertretung": RoleBackupLead,
	"staff":           RoleStaff,
}

// ParseRole maps a role label to a Role.
func ParseRole(s string) (Role, error) {
	r, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// IsSupervisory reports whether the role counts toward on-site coverage.
func (r Role) IsSupervisory() bool {
	switch r {
	case RoleManager, RoleDeputy, RoleBackupLead:
		return true
	}
	return false
}

// =============================================================================
// EMPLOYEE
// =============================================================================

// Employee is a roster entry. Allowance is in chargeable days per year.
type Employee struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Greeting  string `json:"greeting"`
	Allowance int    `json:"allowance"`
	Role      Role   `json:"role"`
}

// Roster maps employee ids to employees.
type Roster map[string]Employee

// Supervisors returns the ids of supervisory roster members.
func (r Roster) Supervisors() []string {
	var ids []string
	for id, e := range r {
		if e.Role.IsSupervisory() {
			ids = append(ids, id)
		}
	}
	return ids
}

// =============================================================================
// REQUEST
// =============================================================================

// Status is the lifecycle state of a stored request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusWaitlist Status = "waitlist"
)

// Committed reports whether the status takes a slot and counts against quota.
func (s Status) Committed() bool {
	return s == StatusPending || s == StatusApproved
}

// CreatedAtLayout is the display format of Request.CreatedAt.
const CreatedAtLayout = "02.01. 15:04"

// Request is one persisted leave request.
type Request struct {
	ID             int64         `json:"id"`
	OwnerID        string        `json:"owner_id"`
	OwnerName      string        `json:"owner_name"`
	Start          calendar.Date `json:"start"`
	End            calendar.Date `json:"end"`
	ChargeableDays int           `json:"chargeable_days"`
	Status         Status        `json:"status"`
	CreatedAt      string        `json:"created_at"`
}

// Period returns the request's inclusive date range.
func (r Request) Period() calendar.Period {
	return calendar.Period{Start: r.Start, End: r.End}
}

// Covers reports whether the request includes d.
func (r Request) Covers(d calendar.Date) bool {
	return r.Period().Contains(d)
}

// =============================================================================
// COLLECTION
// =============================================================================

// Collection is the full ordered request set.
type Collection []Request

// Find returns the request with id.
func (c Collection) Find(id int64) (Request, bool) {
	for _, r := range c {
		if r.ID == id {
			return r, true
		}
	}
	return Request{}, false
}

// Without returns a copy of c with the request id removed.
func (c Collection) Without(id int64) Collection {
	out := make(Collection, 0, len(c))
	for _, r := range c {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

// Clone returns a copy that shares no backing array with c.
func (c Collection) Clone() Collection {
	if c == nil {
		return Collection{}
	}
	out := make(Collection, len(c))
	copy(out, c)
	return out
}

// CommittedDays sums the chargeable days of owner's pending and approved
// requests, skipping excludeID.
func (c Collection) CommittedDays(owner string, excludeID int64) int {
	total := 0
	for _, r := range c {
		if r.OwnerID == owner && r.ID != excludeID && r.Status.Committed() {
			total += r.ChargeableDays
		}
	}
	return total
}

// CountStatus counts requests in status s.
func (c Collection) CountStatus(s Status) int {
	n := 0
	for _, r := range c {
		if r.Status == s {
			n++
		}
	}
	return n
}

// MaxID returns the largest id in the collection, or 0.
func (c Collection) MaxID() int64 {
	var max int64
	for _, r := range c {
		if r.ID > max {
			max = r.ID
		}
	}
	return max
}

// Snapshot is a collection together with its store version.
// Version 0 means the collection has never been written.
type Snapshot struct {
	Requests Collection
	Version  int64
}
