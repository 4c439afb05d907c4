package leave

import (
	"fmt"

	"github.com/warp/vacation-planner/calendar"
)

// =============================================================================
// POLICY
// =============================================================================

// Policy holds the two capacity limits.
type Policy struct {
	// MaxAbsent is the largest absentee set allowed on a chargeable day.
	MaxAbsent int
	// MinSupervisors is the smallest number of supervisory roster members
	// that must remain present on a chargeable day.
	MinSupervisors int
}

// DefaultPolicy allows three absentees and requires two supervisors on site.
var DefaultPolicy = Policy{MaxAbsent: 3, MinSupervisors: 2}

// =============================================================================
// CONFLICT
// =============================================================================

// ConflictReason identifies which rule a day violated.
type ConflictReason string

const (
	ReasonCapacityExceeded     ConflictReason = CodeCapacityExceeded
	ReasonCoverageInsufficient ConflictReason = CodeCoverageInsufficient
)

// Conflict describes the first chargeable day that violates a rule.
type Conflict struct {
	Reason             ConflictReason `json:"reason"`
	Day                calendar.Date  `json:"day"`
	Absent             int            `json:"absent"`
	SupervisorsPresent int            `json:"supervisors_present"`
	Policy             Policy         `json:"-"`
}

// Message returns the user-facing sentence for the conflict.
func (c *Conflict) Message() string {
	if c.Reason == ReasonCapacityExceeded {
		return fmt.Sprintf("Maximum capacity reached (Max %d).", c.Policy.MaxAbsent)
	}
	return fmt.Sprintf("Minimum management coverage not met (%d present).", c.SupervisorsPresent)
}

func (c *Conflict) Error() string {
	return fmt.Sprintf("%s on %s: %s", c.Reason, c.Day, c.Message())
}

func (c *Conflict) Unwrap() error {
	if c.Reason == ReasonCapacityExceeded {
		return ErrCapacityExceeded
	}
	return ErrCoverageInsufficient
}

// =============================================================================
// EVALUATOR
// =============================================================================

// CapacityQuery is the input of one evaluation.
type CapacityQuery struct {
	Period      calendar.Period
	RequesterID string
	Requests    Collection
	// ExcludeID skips one stored request, the one being edited or previewed.
	ExcludeID int64
	Roster    Roster
}

// Evaluator applies Policy day by day over a calendar.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	Calendar *calendar.Calendar
	Policy   Policy
}

// Evaluate walks the chargeable days of q.Period in order and returns the
// first conflict, or nil when every day passes both rules.
//
// On each day the absentee set is the requester plus every distinct owner of
// a pending or approved request covering that day. The capacity rule is
// checked before the coverage rule.
func (e Evaluator) Evaluate(q CapacityQuery) *Conflict {
	relevant := make([]Request, 0, len(q.Requests))
	for _, r := range q.Requests {
		if r.ID != q.ExcludeID && r.Status.Committed() && r.Period().Overlaps(q.Period) {
			relevant = append(relevant, r)
		}
	}
	supervisors := q.Roster.Supervisors()

	for _, day := range e.Calendar.ChargeableDates(q.Period) {
		absent := map[string]struct{}{q.RequesterID: {}}
		for _, r := range relevant {
			if r.Covers(day) {
				absent[r.OwnerID] = struct{}{}
			}
		}

		if len(absent) > e.Policy.MaxAbsent {
			return &Conflict{
				Reason:             ReasonCapacityExceeded,
				Day:                day,
				Absent:             len(absent),
				SupervisorsPresent: presentCount(supervisors, absent),
				Policy:             e.Policy,
			}
		}

		if present := presentCount(supervisors, absent); present < e.Policy.MinSupervisors {
			return &Conflict{
				Reason:             ReasonCoverageInsufficient,
				Day:                day,
				Absent:             len(absent),
				SupervisorsPresent: present,
				Policy:             e.Policy,
			}
		}
	}
	return nil
}

func presentCount(supervisors []string, absent map[string]struct{}) int {
	n := 0
	for _, id := range supervisors {
		if _, out := absent[id]; !out {
			n++
		}
	}
	return n
}
