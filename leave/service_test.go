package leave

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submit(start, end string) Submission {
	return Submission{Start: d(start), End: d(end)}
}

// =============================================================================
// REJECTIONS
// =============================================================================

func TestSubmit_InvalidRange(t *testing.T) {
	env := newTestService(t, standardRoster())

	_, err := env.svc.Submit(context.Background(), env.caller(t, "s1"), submit("2026-03-06", "2026-03-02"))

	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.Equal(t, CodeInvalidRange, Code(err))
	assert.True(t, IsClientError(err))
	assert.Zero(t, env.store.replaces)
}

func TestSubmit_SpanTooLong(t *testing.T) {
	env := newTestService(t, standardRoster())

	tests := []struct {
		name       string
		start, end string
	}{
		{"just over a leap year", "2026-01-01", "2027-01-02"},
		{"whole calendar", "0001-01-01", "9999-12-31"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Submit(context.Background(), env.caller(t, "s1"), submit(tt.start, tt.end))

			require.ErrorIs(t, err, ErrInvalidRange)
			assert.NotErrorIs(t, err, ErrQuotaExceeded)
		})
	}
	assert.Zero(t, env.store.replaces)
}

func TestSubmit_LongestSpanReachesQuotaCheck(t *testing.T) {
	env := newTestService(t, standardRoster())

	// 2028 is a leap year: exactly MaxSpanDays calendar days
	_, err := env.svc.Submit(context.Background(), env.caller(t, "s1"), submit("2028-01-01", "2028-12-31"))

	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestSubmit_EmptyInterval(t *testing.T) {
	env := newTestService(t, standardRoster())

	// Sunday only
	_, err := env.svc.Submit(context.Background(), env.caller(t, "s1"), submit("2026-03-08", "2026-03-08"))
	assert.ErrorIs(t, err, ErrEmptyInterval)

	// Easter Sunday and Easter Monday
	_, err = env.svc.Submit(context.Background(), env.caller(t, "s1"), submit("2026-04-05", "2026-04-06"))
	assert.ErrorIs(t, err, ErrEmptyInterval)
	assert.Zero(t, env.store.replaces)
}

// Scenario C: allowance 28, 20 days approved, 10 more requested.
func TestSubmit_QuotaExceeded(t *testing.T) {
	// GIVEN
	env := newTestService(t, standardRoster(),
		req(1, "s4", "2026-07-01", "2026-07-23", StatusApproved))
	require.Equal(t, 20, env.store.requests()[0].ChargeableDays)

	// WHEN
	_, err := env.svc.Submit(context.Background(), env.caller(t, "s4"), submit("2026-03-02", "2026-03-12"))

	// THEN
	require.ErrorIs(t, err, ErrQuotaExceeded)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 28, qe.Allowance)
	assert.Equal(t, 20, qe.Committed)
	assert.Equal(t, 10, qe.Requested)
	assert.Len(t, env.store.requests(), 1)
}

func TestSubmit_QuotaIgnoresWaitlist(t *testing.T) {
	env := newTestService(t, standardRoster(),
		req(1, "s4", "2026-07-01", "2026-07-23", StatusWaitlist))

	dec, err := env.svc.Submit(context.Background(), env.caller(t, "s4"), submit("2026-03-02", "2026-03-12"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, dec.Request.Status)
}

func TestSubmit_QuotaPrecedesCapacity(t *testing.T) {
	// GIVEN: s4 is over quota and the day is also full
	env := newTestService(t, standardRoster(),
		req(1, "s4", "2026-07-01", "2026-07-23", StatusApproved),
		req(2, "s1", "2026-03-04", "2026-03-04", StatusApproved),
		req(3, "s2", "2026-03-04", "2026-03-04", StatusApproved),
		req(4, "s3", "2026-03-04", "2026-03-04", StatusApproved),
	)

	// WHEN: the request violates both
	_, err := env.svc.Submit(context.Background(), env.caller(t, "s4"),
		Submission{Start: d("2026-03-02"), End: d("2026-03-12"), Force: true})

	// THEN: quota is reported
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.NotErrorIs(t, err, ErrCapacityExceeded)
}

// =============================================================================
// ACCEPTANCE
// =============================================================================

func TestSubmit_AcceptedPending(t *testing.T) {
	env := newTestService(t, standardRoster())

	dec, err := env.svc.Submit(context.Background(), env.caller(t, "s1"), submit("2026-03-02", "2026-03-07"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeAccepted, dec.Outcome)
	assert.Nil(t, dec.Conflict)
	assert.Equal(t, "Saved successfully", dec.Toast())

	stored := env.store.requests()
	require.Len(t, stored, 1)
	got := stored[0]
	assert.Equal(t, testNow.UnixMilli(), got.ID)
	assert.Equal(t, "s1", got.OwnerID)
	assert.Equal(t, "Name s1", got.OwnerName)
	assert.Equal(t, 6, got.ChargeableDays)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "01.02. 09:30", got.CreatedAt)
	assert.Equal(t, 1, env.metrics.decisions["pending"])
}

func TestSubmit_FreshIDsStayUnique(t *testing.T) {
	env := newTestService(t, standardRoster())
	ctx := context.Background()

	a, err := env.svc.Submit(ctx, env.caller(t, "s1"), submit("2026-03-02", "2026-03-02"))
	require.NoError(t, err)
	b, err := env.svc.Submit(ctx, env.caller(t, "s2"), submit("2026-03-02", "2026-03-02"))
	require.NoError(t, err)

	// The fixed clock yields the same millisecond twice.
	assert.Equal(t, a.Request.ID+1, b.Request.ID)
}

// Scenario A: three absent, a fourth submits. Scenario D: force waitlists.
func TestSubmit_CapacityNeedsConfirmationThenForce(t *testing.T) {
	// GIVEN
	env := newTestService(t, standardRoster(),
		req(1, "s1", "2026-03-04", "2026-03-04", StatusApproved),
		req(2, "s2", "2026-03-04", "2026-03-04", StatusPending),
		req(3, "s3", "2026-03-04", "2026-03-04", StatusApproved),
	)
	ctx := context.Background()
	caller := env.caller(t, "s4")
	sub := submit("2026-03-02", "2026-03-06")

	// WHEN: no force
	dec, err := env.svc.Submit(ctx, caller, sub)

	// THEN: needs confirmation, nothing written
	require.NoError(t, err)
	assert.Equal(t, OutcomeNeedsConfirmation, dec.Outcome)
	assert.Nil(t, dec.Request)
	require.NotNil(t, dec.Conflict)
	assert.Equal(t, ReasonCapacityExceeded, dec.Conflict.Reason)
	assert.Equal(t, "Maximum capacity reached (Max 3). Join waitlist?", dec.Prompt())
	assert.Zero(t, env.store.replaces)

	// WHEN: same parameters with force
	sub.Force = true
	dec, err = env.svc.Submit(ctx, caller, sub)

	// THEN: persisted as waitlist
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, dec.Outcome)
	assert.Equal(t, StatusWaitlist, dec.Request.Status)
	assert.Equal(t, "Added to Waitlist", dec.Toast())
	stored := env.store.requests()
	require.Len(t, stored, 4)
	assert.Equal(t, StatusWaitlist, stored[3].Status)
}

// Scenario B: two supervisors, one absent, the other submits.
func TestSubmit_CoverageInsufficient(t *testing.T) {
	roster := Roster{
		"m1": emp("m1", RoleManager, 30),
		"d1": emp("d1", RoleDeputy, 30),
		"s1": emp("s1", RoleStaff, 30),
	}
	env := newTestService(t, roster, req(1, "d1", "2026-03-04", "2026-03-04", StatusApproved))

	dec, err := env.svc.Submit(context.Background(), env.caller(t, "m1"), submit("2026-03-04", "2026-03-04"))
	require.NoError(t, err)
	require.Equal(t, OutcomeNeedsConfirmation, dec.Outcome)
	assert.ErrorIs(t, dec.Conflict, ErrCoverageInsufficient)
}

// =============================================================================
// EDITING
// =============================================================================

func TestSubmit_EditReplacesRecordAndKeepsID(t *testing.T) {
	// GIVEN: s4 holds 20 days; editing that record to 10 days fits the quota
	env := newTestService(t, standardRoster(),
		req(7, "s4", "2026-07-01", "2026-07-23", StatusApproved),
		req(8, "s1", "2026-03-04", "2026-03-04", StatusApproved))

	dec, err := env.svc.Submit(context.Background(), env.caller(t, "s4"),
		Submission{Start: d("2026-03-02"), End: d("2026-03-12"), EditID: 7})

	require.NoError(t, err)
	assert.Equal(t, int64(7), dec.Request.ID)
	assert.Equal(t, StatusPending, dec.Request.Status)

	stored := env.store.requests()
	require.Len(t, stored, 2)
	assert.Equal(t, int64(8), stored[0].ID)
	assert.Equal(t, int64(7), stored[1].ID)
	assert.Equal(t, 10, stored[1].ChargeableDays)
}

func TestSubmit_EditExcludesOwnRecordFromCapacity(t *testing.T) {
	env := newTestService(t, standardRoster(),
		req(1, "s1", "2026-03-04", "2026-03-04", StatusApproved),
		req(2, "s2", "2026-03-04", "2026-03-04", StatusApproved),
		req(3, "s3", "2026-03-04", "2026-03-04", StatusApproved),
	)
	dec, err := env.svc.Submit(context.Background(), env.caller(t, "s3"),
		Submission{Start: d("2026-03-04"), End: d("2026-03-05"), EditID: 3})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, dec.Outcome)
	assert.Equal(t, StatusPending, dec.Request.Status)
}

func TestSubmit_EditRequiresOwnership(t *testing.T) {
	env := newTestService(t, standardRoster(), req(5, "s1", "2026-03-04", "2026-03-04", StatusPending))
	ctx := context.Background()

	_, err := env.svc.Submit(ctx, env.caller(t, "s2"),
		Submission{Start: d("2026-03-04"), End: d("2026-03-04"), EditID: 5})
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = env.svc.Submit(ctx, env.caller(t, "s2"),
		Submission{Start: d("2026-03-04"), End: d("2026-03-04"), EditID: 99})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
}

// =============================================================================
// APPROVE / DELETE / RESET / RESTORE
// =============================================================================

// Scenario E: approval skips capacity evaluation.
func TestApprove_OverridesCapacity(t *testing.T) {
	// GIVEN: the day is full and s4 is waitlisted
	env := newTestService(t, standardRoster(),
		req(1, "s1", "2026-03-04", "2026-03-04", StatusApproved),
		req(2, "s2", "2026-03-04", "2026-03-04", StatusApproved),
		req(3, "s3", "2026-03-04", "2026-03-04", StatusApproved),
		req(4, "s4", "2026-03-04", "2026-03-04", StatusWaitlist),
	)

	// WHEN
	approved, err := env.svc.Approve(context.Background(), env.caller(t, "m1"), 4)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	stored, _ := env.store.requests().Find(4)
	assert.Equal(t, StatusApproved, stored.Status)
}

func TestApprove_AdminOnly(t *testing.T) {
	env := newTestService(t, standardRoster(), req(4, "s4", "2026-03-04", "2026-03-04", StatusPending))
	ctx := context.Background()

	_, err := env.svc.Approve(ctx, env.caller(t, "s4"), 4)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = env.svc.Approve(ctx, env.caller(t, "m1"), 404)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, env.store.replaces)
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name    string
		caller  string
		id      int64
		wantErr error
		left    int
	}{
		{"owner cancels", "s1", 1, nil, 1},
		{"admin rejects", "m1", 1, nil, 1},
		{"other employee", "s2", 1, ErrNotAuthorized, 2},
		{"unknown id", "s1", 404, ErrNotFound, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestService(t, standardRoster(),
				req(1, "s1", "2026-03-04", "2026-03-04", StatusPending),
				req(2, "s3", "2026-03-05", "2026-03-05", StatusPending))

			err := env.svc.Delete(context.Background(), env.caller(t, tt.caller), tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, env.store.requests(), tt.left)
		})
	}
}

func TestReset(t *testing.T) {
	env := newTestService(t, standardRoster(),
		req(1, "s1", "2026-03-04", "2026-03-04", StatusPending),
		req(2, "s3", "2026-03-05", "2026-03-05", StatusApproved))
	ctx := context.Background()

	assert.ErrorIs(t, env.svc.Reset(ctx, env.caller(t, "s1")), ErrNotAuthorized)
	assert.Len(t, env.store.requests(), 2)

	require.NoError(t, env.svc.Reset(ctx, env.caller(t, "m1")))
	assert.Empty(t, env.store.requests())
}

func TestRestore_RecomputesDays(t *testing.T) {
	env := newTestService(t, standardRoster())
	seed := Collection{req(1, "s1", "2026-01-05", "2026-01-11", StatusApproved)}
	seed[0].ChargeableDays = 99

	n, err := env.svc.Restore(context.Background(), env.caller(t, "m1"), seed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 5, env.store.requests()[0].ChargeableDays)

	_, err = env.svc.Restore(context.Background(), env.caller(t, "s1"), seed)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	bad := Collection{req(2, "s1", "2026-01-11", "2026-01-05", StatusApproved)}
	_, err = env.svc.Restore(context.Background(), env.caller(t, "m1"), bad)
	assert.ErrorIs(t, err, ErrInvalidRange)

	long := Collection{req(3, "s1", "2026-01-01", "2030-01-01", StatusApproved)}
	_, err = env.svc.Restore(context.Background(), env.caller(t, "m1"), long)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestMutate_RetriesOnVersionConflict(t *testing.T) {
	env := newTestService(t, standardRoster())
	env.store.conflicts = 2

	dec, err := env.svc.Submit(context.Background(), env.caller(t, "s1"), submit("2026-03-02", "2026-03-02"))

	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, dec.Outcome)
	assert.Equal(t, 3, env.store.replaces)
	assert.Equal(t, 2, env.metrics.conflicts)
	assert.Len(t, env.store.requests(), 1)
}

func TestMutate_GivesUp(t *testing.T) {
	env := newTestService(t, standardRoster())
	env.store.conflicts = DefaultMaxRetries

	_, err := env.svc.Submit(context.Background(), env.caller(t, "s1"), submit("2026-03-02", "2026-03-02"))

	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.True(t, IsRetryable(err))
	assert.Empty(t, env.store.requests())
}

func TestSubmit_ConcurrentAdmissionsDoNotOverbook(t *testing.T) {
	// GIVEN: two slots left on the day
	env := newTestService(t, standardRoster(),
		req(1, "s1", "2026-03-04", "2026-03-04", StatusApproved))
	ctx := context.Background()

	// WHEN: three employees submit at the same time
	var wg sync.WaitGroup
	for _, id := range []string{"s2", "s3", "s4"} {
		caller := env.caller(t, id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.svc.Submit(ctx, caller, submit("2026-03-04", "2026-03-04"))
		}()
	}
	wg.Wait()

	// THEN: at most three committed absentees on the day
	committed := 0
	for _, r := range env.store.requests() {
		if r.Status.Committed() {
			committed++
		}
	}
	assert.LessOrEqual(t, committed, DefaultPolicy.MaxAbsent)
}

// =============================================================================
// IDENTITY & STATE
// =============================================================================

func TestResolveCaller_FailsClosed(t *testing.T) {
	env := newTestService(t, standardRoster())
	env.svc.admins = fakeAdmins{err: errors.New("directory down")}

	c, err := env.svc.ResolveCaller(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, c.IsAdmin)

	_, err = env.svc.Authenticate(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadState_MasksOthersForEmployees(t *testing.T) {
	env := newTestService(t, standardRoster(),
		req(1, "s1", "2026-03-02", "2026-03-07", StatusApproved),
		req(2, "s2", "2026-03-04", "2026-03-04", StatusPending),
		req(3, "s1", "2026-04-13", "2026-04-14", StatusWaitlist),
	)

	st, err := env.svc.LoadState(context.Background(), env.caller(t, "s1"))
	require.NoError(t, err)

	require.Len(t, st.Requests, 3)
	assert.False(t, st.IsAdmin)
	assert.Equal(t, "Name s1", st.Requests[0].OwnerName)
	require.NotNil(t, st.Requests[0].OwnerID)
	assert.Equal(t, MaskedName, st.Requests[1].OwnerName)
	assert.Nil(t, st.Requests[1].OwnerID)
	assert.Nil(t, st.Requests[1].Conflict)

	// waitlist does not count as used
	assert.Equal(t, 30, st.Quota.Total)
	assert.Equal(t, 6, st.Quota.Used)
	assert.Equal(t, 24, st.Quota.Remaining)
	assert.Equal(t, "20", st.Quota.Utilization.String())

	assert.Equal(t, 2026, st.Year)
	assert.Len(t, st.Holidays, 12)
}

func TestLoadState_AdminPreview(t *testing.T) {
	env := newTestService(t, standardRoster(),
		req(1, "s1", "2026-03-04", "2026-03-04", StatusApproved),
		req(2, "s2", "2026-03-04", "2026-03-04", StatusApproved),
		req(3, "s3", "2026-03-04", "2026-03-04", StatusApproved),
		req(4, "s4", "2026-03-04", "2026-03-04", StatusWaitlist),
		req(5, "b1", "2026-03-10", "2026-03-10", StatusPending),
	)

	st, err := env.svc.LoadState(context.Background(), env.caller(t, "m1"))
	require.NoError(t, err)

	assert.True(t, st.IsAdmin)
	for _, v := range st.Requests {
		require.NotNil(t, v.OwnerID)
		assert.NotEqual(t, MaskedName, v.OwnerName)
	}
	require.NotNil(t, st.Requests[3].Conflict)
	assert.Equal(t, ReasonCapacityExceeded, st.Requests[3].Conflict.Reason)
	assert.Nil(t, st.Requests[0].Conflict, "approved records get no preview")
	assert.Nil(t, st.Requests[4].Conflict)
	assert.Equal(t, 5, len(env.store.requests()), "preview never writes")
}

func TestNewQuotaView(t *testing.T) {
	q := NewQuotaView(30, 16)
	assert.Equal(t, 14, q.Remaining)
	assert.Equal(t, "53.3", q.Utilization.String())

	assert.True(t, NewQuotaView(0, 0).Utilization.IsZero())
}

func TestExportReport(t *testing.T) {
	env := newTestService(t, standardRoster(),
		req(1, "s1", "2026-03-02", "2026-03-07", StatusApproved),
		req(2, "s2", "2026-03-04", "2026-03-04", StatusPending),
		req(3, "s3", "2026-03-05", "2026-03-05", StatusPending),
	)
	ctx := context.Background()

	rep, err := env.svc.ExportReport(ctx)
	require.NoError(t, err)
	assert.Len(t, rep.Rows, 3)
	assert.Equal(t, 2, rep.Pending)
	assert.Equal(t, testNow, rep.GeneratedAt)
	assert.Equal(t, "75", rep.ApprovedShare.String())
	assert.Equal(t, "Action required: 2 pending requests.", rep.Summary())

	_, err = env.svc.ExportReportFor(ctx, env.caller(t, "s1"))
	assert.ErrorIs(t, err, ErrNotAuthorized)

	empty := &Report{}
	assert.Equal(t, "System running normal. No pending requests.", empty.Summary())
}
