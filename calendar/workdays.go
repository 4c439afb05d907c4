package calendar

import "sync"

// =============================================================================
// CALENDAR - Region-bound holiday lookups and chargeable-day counting
// =============================================================================

// Calendar answers holiday and chargeable-day questions for one region.
// Holiday sets are computed lazily per year and cached; a Calendar is safe
// for concurrent use.
type Calendar struct {
	region Region

	mu    sync.RWMutex
	years map[int]HolidaySet
}

// NewCalendar returns a calendar for the given region code.
func NewCalendar(code string) (*Calendar, error) {
	region, err := LookupRegion(code)
	if err != nil {
		return nil, err
	}
	return &Calendar{region: region, years: make(map[int]HolidaySet)}, nil
}

// Region returns the calendar's region.
func (c *Calendar) Region() Region { return c.region }

// Holidays returns the holiday set for year.
func (c *Calendar) Holidays(year int) HolidaySet {
	c.mu.RLock()
	set, ok := c.years[year]
	c.mu.RUnlock()
	if ok {
		return set
	}

	set = Holidays(year, c.region)
	c.mu.Lock()
	c.years[year] = set
	c.mu.Unlock()
	return set
}

// IsHoliday reports whether d is a public holiday in the calendar's region.
func (c *Calendar) IsHoliday(d Date) bool {
	return c.Holidays(d.Year).Contains(d)
}

// IsChargeable reports whether d counts against an allowance:
// Monday through Saturday and not a public holiday.
func (c *Calendar) IsChargeable(d Date) bool {
	if d.ISOWeekday() == 7 {
		return false
	}
	return !c.IsHoliday(d)
}

// ChargeableDates returns the chargeable dates of p in chronological order.
//
// Each date is checked against the holiday set of its own year, so a period
// crossing New Year uses both years' holidays. A reversed period yields no
// dates; callers validate Start <= End before counting.
func (c *Calendar) ChargeableDates(p Period) []Date {
	var out []Date
	p.Each(func(d Date) {
		if c.IsChargeable(d) {
			out = append(out, d)
		}
	})
	return out
}

// ChargeableDays counts the chargeable dates of p. Zero means the period
// consists only of Sundays and holidays.
func (c *Calendar) ChargeableDays(p Period) int {
	n := 0
	p.Each(func(d Date) {
		if c.IsChargeable(d) {
			n++
		}
	})
	return n
}
