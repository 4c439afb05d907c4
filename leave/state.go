package leave

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/vacation-planner/calendar"
)

// MaskedName replaces the owner name of records hidden from the caller.
const MaskedName = "Occupied"

// ConflictPreview is the administrator's view of a pending conflict.
type ConflictPreview struct {
	Reason  ConflictReason `json:"reason"`
	Day     calendar.Date  `json:"day"`
	Message string         `json:"message"`
}

// RequestView is a request as shown to one caller. OwnerID is nil and
// OwnerName is MaskedName on records the caller may not see.
type RequestView struct {
	ID             int64            `json:"id"`
	OwnerID        *string          `json:"owner_id"`
	OwnerName      string           `json:"owner_name"`
	Start          calendar.Date    `json:"start"`
	End            calendar.Date    `json:"end"`
	ChargeableDays int              `json:"chargeable_days"`
	Status         Status           `json:"status"`
	CreatedAt      string           `json:"created_at"`
	Conflict       *ConflictPreview `json:"conflict"`
}

// QuotaView summarizes the caller's allowance.
type QuotaView struct {
	Total       int             `json:"total"`
	Used        int             `json:"used"`
	Remaining   int             `json:"remaining"`
	Utilization decimal.Decimal `json:"utilization"`
}

// NewQuotaView computes remaining days and utilization in percent,
// rounded to one decimal place.
func NewQuotaView(total, used int) QuotaView {
	q := QuotaView{Total: total, Used: used, Remaining: total - used, Utilization: decimal.Zero}
	if total > 0 {
		q.Utilization = decimal.NewFromInt(int64(used)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(total))).
			Round(1)
	}
	return q
}

// State is everything the caller's dashboard needs.
type State struct {
	Requests []RequestView      `json:"requests"`
	Employee Employee           `json:"employee"`
	Quota    QuotaView          `json:"quota"`
	Year     int                `json:"year"`
	Holidays []calendar.Holiday `json:"holidays"`
	IsAdmin  bool               `json:"is_admin"`
}

// LoadState returns the caller's view of the collection.
//
// Administrators see every record and get a conflict preview on each
// pending or waitlisted record, evaluated with that record excluded. Other
// callers see their own records in full and everyone else's masked.
// Preview evaluation reads one snapshot and never writes.
func (s *Service) LoadState(ctx context.Context, caller Caller) (*State, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}

	var roster Roster
	if caller.IsAdmin {
		roster, err = s.directory.Roster(ctx)
		if err != nil {
			return nil, fmt.Errorf("load roster: %w", err)
		}
	}

	me := caller.Employee
	views := make([]RequestView, 0, len(snap.Requests))
	for _, r := range snap.Requests {
		v := RequestView{
			ID:             r.ID,
			OwnerName:      r.OwnerName,
			Start:          r.Start,
			End:            r.End,
			ChargeableDays: r.ChargeableDays,
			Status:         r.Status,
			CreatedAt:      r.CreatedAt,
		}

		switch {
		case caller.IsAdmin:
			owner := r.OwnerID
			v.OwnerID = &owner
			if r.Status == StatusPending || r.Status == StatusWaitlist {
				v.Conflict = s.preview(r, snap.Requests, roster)
			}
		case r.OwnerID == me.ID:
			owner := r.OwnerID
			v.OwnerID = &owner
		default:
			v.OwnerName = MaskedName
		}
		views = append(views, v)
	}

	year := s.displayYear
	if year == 0 {
		year = s.now().Year()
	}

	return &State{
		Requests: views,
		Employee: me,
		Quota:    NewQuotaView(me.Allowance, snap.Requests.CommittedDays(me.ID, 0)),
		Year:     year,
		Holidays: s.calendar.Holidays(year).Sorted(),
		IsAdmin:  caller.IsAdmin,
	}, nil
}

// preview evaluates a stored request against the rest of the collection.
func (s *Service) preview(r Request, all Collection, roster Roster) *ConflictPreview {
	c := s.evaluator.Evaluate(CapacityQuery{
		Period:      r.Period(),
		RequesterID: r.OwnerID,
		Requests:    all,
		ExcludeID:   r.ID,
		Roster:      roster,
	})
	if c == nil {
		return nil
	}
	return &ConflictPreview{Reason: c.Reason, Day: c.Day, Message: c.Message()}
}

// Holidays lists the calendar's holidays for year.
func (s *Service) Holidays(year int) []calendar.Holiday {
	return s.calendar.Holidays(year).Sorted()
}
