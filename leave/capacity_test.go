package leave

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vacation-planner/calendar"
)

func newTestEvaluator(t *testing.T) Evaluator {
	return Evaluator{Calendar: newTestCalendar(t), Policy: DefaultPolicy}
}

func day(s string) calendar.Period {
	return calendar.Period{Start: d(s), End: d(s)}
}

func TestEvaluate_NoConflict(t *testing.T) {
	ev := newTestEvaluator(t)
	existing := Collection{
		req(1, "s1", "2026-03-04", "2026-03-04", StatusApproved),
		req(2, "s2", "2026-03-04", "2026-03-04", StatusPending),
	}

	c := ev.Evaluate(CapacityQuery{
		Period:      day("2026-03-04"),
		RequesterID: "s3",
		Requests:    existing,
		Roster:      standardRoster(),
	})
	assert.Nil(t, c)
}

func TestEvaluate_CapacityExceeded(t *testing.T) {
	// GIVEN: three staff already absent on Wednesday 2026-03-04
	ev := newTestEvaluator(t)
	existing := Collection{
		req(1, "s1", "2026-03-02", "2026-03-06", StatusApproved),
		req(2, "s2", "2026-03-04", "2026-03-04", StatusPending),
		req(3, "s3", "2026-03-03", "2026-03-05", StatusApproved),
	}

	// WHEN: a fourth employee asks for the same day
	c := ev.Evaluate(CapacityQuery{
		Period:      day("2026-03-04"),
		RequesterID: "s4",
		Requests:    existing,
		Roster:      standardRoster(),
	})

	// THEN: capacity rule fires
	require.NotNil(t, c)
	assert.Equal(t, ReasonCapacityExceeded, c.Reason)
	assert.Equal(t, d("2026-03-04"), c.Day)
	assert.Equal(t, 4, c.Absent)
	assert.True(t, errors.Is(c, ErrCapacityExceeded))
	assert.Equal(t, "Maximum capacity reached (Max 3).", c.Message())
}

func TestEvaluate_CoverageInsufficient(t *testing.T) {
	// GIVEN: only two supervisors, one of whom is already absent
	roster := Roster{
		"m1": emp("m1", RoleManager, 30),
		"d1": emp("d1", RoleDeputy, 30),
		"s1": emp("s1", RoleStaff, 30),
	}
	existing := Collection{req(1, "d1", "2026-03-04", "2026-03-04", StatusApproved)}

	// WHEN: the other supervisor asks for the same day
	c := newTestEvaluator(t).Evaluate(CapacityQuery{
		Period:      day("2026-03-04"),
		RequesterID: "m1",
		Requests:    existing,
		Roster:      roster,
	})

	// THEN
	require.NotNil(t, c)
	assert.Equal(t, ReasonCoverageInsufficient, c.Reason)
	assert.Equal(t, 0, c.SupervisorsPresent)
	assert.True(t, errors.Is(c, ErrCoverageInsufficient))
	assert.Equal(t, "Minimum management coverage not met (0 present).", c.Message())
}

func TestEvaluate_CapacityCheckedBeforeCoverage(t *testing.T) {
	// Four absentees including two supervisors: both rules are violated.
	roster := Roster{
		"m1": emp("m1", RoleManager, 30),
		"d1": emp("d1", RoleDeputy, 30),
		"s1": emp("s1", RoleStaff, 30),
		"s2": emp("s2", RoleStaff, 30),
	}
	existing := Collection{
		req(1, "m1", "2026-03-04", "2026-03-04", StatusApproved),
		req(2, "d1", "2026-03-04", "2026-03-04", StatusApproved),
		req(3, "s1", "2026-03-04", "2026-03-04", StatusApproved),
	}
	c := newTestEvaluator(t).Evaluate(CapacityQuery{
		Period: day("2026-03-04"), RequesterID: "s2", Requests: existing, Roster: roster,
	})
	require.NotNil(t, c)
	assert.Equal(t, ReasonCapacityExceeded, c.Reason)
}

func TestEvaluate_FirstConflictingDayWins(t *testing.T) {
	ev := newTestEvaluator(t)
	existing := Collection{
		req(1, "s1", "2026-03-05", "2026-03-06", StatusApproved),
		req(2, "s2", "2026-03-05", "2026-03-06", StatusApproved),
		req(3, "s3", "2026-03-05", "2026-03-06", StatusApproved),
	}
	c := ev.Evaluate(CapacityQuery{
		Period:      calendar.Period{Start: d("2026-03-02"), End: d("2026-03-07")},
		RequesterID: "s4",
		Requests:    existing,
		Roster:      standardRoster(),
	})
	require.NotNil(t, c)
	assert.Equal(t, d("2026-03-05"), c.Day)
}

func TestEvaluate_IgnoresWaitlistExcludedAndNonChargeable(t *testing.T) {
	ev := newTestEvaluator(t)
	roster := standardRoster()

	tests := []struct {
		name     string
		period   calendar.Period
		existing Collection
		exclude  int64
	}{
		{
			name:   "waitlist does not take a slot",
			period: day("2026-03-04"),
			existing: Collection{
				req(1, "s1", "2026-03-04", "2026-03-04", StatusApproved),
				req(2, "s2", "2026-03-04", "2026-03-04", StatusApproved),
				req(3, "s3", "2026-03-04", "2026-03-04", StatusWaitlist),
			},
		},
		{
			name:    "excluded request is skipped",
			period:  day("2026-03-04"),
			exclude: 3,
			existing: Collection{
				req(1, "s1", "2026-03-04", "2026-03-04", StatusApproved),
				req(2, "s2", "2026-03-04", "2026-03-04", StatusApproved),
				req(3, "s3", "2026-03-04", "2026-03-04", StatusApproved),
			},
		},
		{
			name:   "sunday is never evaluated",
			period: day("2026-03-08"),
			existing: Collection{
				req(1, "s1", "2026-03-08", "2026-03-08", StatusApproved),
				req(2, "s2", "2026-03-08", "2026-03-08", StatusApproved),
				req(3, "s3", "2026-03-08", "2026-03-08", StatusApproved),
			},
		},
		{
			name:   "same owner counted once",
			period: day("2026-03-04"),
			existing: Collection{
				req(1, "s1", "2026-03-04", "2026-03-04", StatusApproved),
				req(2, "s1", "2026-03-02", "2026-03-06", StatusPending),
				req(3, "s4", "2026-03-04", "2026-03-04", StatusPending),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ev.Evaluate(CapacityQuery{
				Period:      tt.period,
				RequesterID: "s2",
				Requests:    tt.existing,
				ExcludeID:   tt.exclude,
				Roster:      roster,
			})
			assert.Nil(t, c)
		})
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	ev := newTestEvaluator(t)
	q := CapacityQuery{
		Period:      calendar.Period{Start: d("2026-03-02"), End: d("2026-03-07")},
		RequesterID: "s4",
		Requests: Collection{
			req(1, "s1", "2026-03-04", "2026-03-04", StatusApproved),
			req(2, "s2", "2026-03-04", "2026-03-04", StatusApproved),
			req(3, "s3", "2026-03-04", "2026-03-04", StatusPending),
		},
		Roster: standardRoster(),
	}
	first := ev.Evaluate(q)
	second := ev.Evaluate(q)
	require.NotNil(t, first)
	assert.Equal(t, first, second)
}

func TestEvaluate_MonotonicInAbsentees(t *testing.T) {
	// GIVEN: a growing set of overlapping requests by distinct employees
	ev := newTestEvaluator(t)
	roster := standardRoster()
	owners := []string{"s1", "s2", "s3", "d1", "b1"}

	var existing Collection
	var seen *Conflict
	for i, owner := range owners {
		existing = append(existing, req(int64(i+1), owner, "2026-03-04", "2026-03-04", StatusApproved))

		c := ev.Evaluate(CapacityQuery{
			Period: day("2026-03-04"), RequesterID: "s4", Requests: existing, Roster: roster,
		})

		// THEN: once a violation exists, adding absentees never removes it
		if seen != nil {
			require.NotNil(t, c, fmt.Sprintf("violation vanished after adding %s", owner))
			assert.Equal(t, seen.Day, c.Day)
		}
		if c != nil {
			seen = c
		}
	}
	require.NotNil(t, seen)
}
