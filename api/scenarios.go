/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built request collections that exercise the admission
	rules against the default roster (ids 1001-1003 supervisors, 2001-2005
	staff). Each scenario replaces the whole collection.

AVAILABLE SCENARIOS:

	empty:           No requests
	capacity-week:   Three staff approved for the same week; a fourth
	                 colleague asking for it hits the absence cap
	thin-coverage:   The manager is away; a second supervisor asking for
	                 the same week breaks management coverage
	waitlist-review: Full week plus a waitlisted request so the admin view
	                 shows a conflict preview
	year-end:        Requests spanning the new year

HOW SCENARIOS WORK:
 1. Resolve each seed owner in the directory
 2. Place dates in the current year
 3. Replace the collection via leave.Service.Restore (admin only)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "capacity-week"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Add a case to scenarioSeeds

NOTE:

	Scenarios drop every existing request. Only use in development/demo
	environments.
*/
package api

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/vacation-planner/calendar"
	"github.com/warp/vacation-planner/leave"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "empty",
		Name:        "Empty Planner",
		Description: "No requests; every submission is admitted subject to quota",
		Category:    "basics",
	},
	{
		ID:          "capacity-week",
		Name:        "Capacity Week",
		Description: "Three staff approved for one June week; a fourth hits the absence cap",
		Category:    "capacity",
	},
	{
		ID:          "thin-coverage",
		Name:        "Thin Coverage",
		Description: "Manager away in June; another supervisor asking for the same week breaks coverage",
		Category:    "coverage",
	},
	{
		ID:          "waitlist-review",
		Name:        "Waitlist Review",
		Description: "Full week plus a waitlisted and a pending request for the admin preview",
		Category:    "capacity",
	},
	{
		ID:          "year-end",
		Name:        "Year End",
		Description: "Requests spanning the new year, counted against each year's holidays",
		Category:    "calendar",
	},
}

type seed struct {
	owner  string
	start  calendar.Date
	end    calendar.Date
	status leave.Status
}

// scenarioSeeds returns the requests of a scenario placed in year.
func scenarioSeeds(id string, year int) ([]seed, bool) {
	june := firstMonday(year, time.June)
	week := func(owner string, monday calendar.Date, status leave.Status) seed {
		return seed{owner: owner, start: monday, end: monday.AddDays(4), status: status}
	}

	switch id {
	case "empty":
		return []seed{}, true
	case "capacity-week":
		return []seed{
			week("2001", june, leave.StatusApproved),
			week("2002", june, leave.StatusApproved),
			week("2003", june, leave.StatusApproved),
		}, true
	case "thin-coverage":
		return []seed{
			week("1001", june, leave.StatusApproved),
			week("2004", june.AddDays(7), leave.StatusPending),
		}, true
	case "waitlist-review":
		return []seed{
			week("2001", june, leave.StatusApproved),
			week("2002", june, leave.StatusApproved),
			week("2003", june, leave.StatusPending),
			week("2004", june, leave.StatusWaitlist),
			week("2005", june.AddDays(14), leave.StatusPending),
		}, true
	case "year-end":
		return []seed{
			{owner: "2001", start: calendar.NewDate(year, time.December, 28), end: calendar.NewDate(year+1, time.January, 8), status: leave.StatusApproved},
			{owner: "1002", start: calendar.NewDate(year, time.December, 22), end: calendar.NewDate(year, time.December, 31), status: leave.StatusPending},
		}, true
	}
	return nil, false
}

func firstMonday(year int, month time.Month) calendar.Date {
	d := calendar.NewDate(year, month, 1)
	for d.Weekday() != time.Monday {
		d = d.AddDays(1)
	}
	return d
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario replaces the collection with a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	now := h.now()
	seeds, ok := scenarioSeeds(req.ScenarioID, now.Year())
	if !ok {
		writeErrorCode(w, http.StatusBadRequest, codeBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	caller := callerFrom(ctx)
	if !caller.IsAdmin {
		writeErrorCode(w, http.StatusForbidden, leave.CodeNotAuthorized, "Administrator only", nil)
		return
	}

	requests := make(leave.Collection, 0, len(seeds))
	base := now.UnixMilli()
	for i, s := range seeds {
		emp, err := h.Service.Authenticate(ctx, s.owner)
		if err != nil {
			if leave.IsNotFound(err) {
				writeErrorCode(w, http.StatusUnprocessableEntity, codeValidation,
					fmt.Sprintf("Scenario requires employee %s", s.owner), err)
				return
			}
			h.writeServiceError(w, "Failed to load scenario", err)
			return
		}
		requests = append(requests, leave.Request{
			ID:        base + int64(i),
			OwnerID:   emp.ID,
			OwnerName: emp.Name,
			Start:     s.start,
			End:       s.end,
			Status:    s.status,
			CreatedAt: now.Format(leave.CreatedAtLayout),
		})
	}

	n, err := h.Service.Restore(ctx, caller, requests)
	if err != nil {
		h.writeServiceError(w, "Failed to load scenario", err)
		return
	}

	// Track the loaded scenario
	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID), zap.Int("requests", n))
	writeJSON(w, http.StatusOK, map[string]any{"status": "loaded", "scenario": req.ScenarioID, "requests": n})
}
