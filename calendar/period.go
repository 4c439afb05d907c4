package calendar

import "fmt"

const secondsPerDay = 24 * 60 * 60

// Period is an inclusive date range. Both Start and End belong to the period.
type Period struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// NewPeriod builds a period, rejecting reversed ranges.
func NewPeriod(start, end Date) (Period, error) {
	p := Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate reports whether Start <= End.
func (p Period) Validate() error {
	if p.Start.After(p.End) {
		return fmt.Errorf("period start %s is after end %s", p.Start, p.End)
	}
	return nil
}

// Contains checks if a date falls within the period (inclusive).
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Overlaps checks if two periods share at least one date.
func (p Period) Overlaps(o Period) bool {
	return p.Start.BeforeOrEqual(o.End) && o.Start.BeforeOrEqual(p.End)
}

// Days returns every date in the period in order. A reversed period is empty.
func (p Period) Days() []Date {
	days := make([]Date, 0, p.Len())
	p.Each(func(d Date) { days = append(days, d) })
	return days
}

// Each calls fn for every date in the period in order without building a
// slice.
func (p Period) Each(fn func(Date)) {
	for d := p.Start; d.BeforeOrEqual(p.End); d = d.AddDays(1) {
		fn(d)
	}
}

// Len returns the number of calendar days.
func (p Period) Len() int {
	if p.Start.After(p.End) {
		return 0
	}
	// Unix seconds, since a Duration saturates after about 292 years.
	return int((p.End.Time().Unix()-p.Start.Time().Unix())/secondsPerDay) + 1
}

func (p Period) String() string {
	return fmt.Sprintf("%s..%s", p.Start, p.End)
}
