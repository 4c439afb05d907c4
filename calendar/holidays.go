package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrUnknownRegion is returned for a region code with no holiday rules.
var ErrUnknownRegion = errors.New("unknown region")

// =============================================================================
// EASTER
// =============================================================================

// Easter returns Easter Sunday of the given Gregorian year using the
// anonymous Gregorian algorithm (Meeus/Jones/Butcher).
func Easter(year int) Date {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return NewDate(year, time.Month(month), day)
}

// =============================================================================
// HOLIDAY RULES
// =============================================================================

// fixedHoliday falls on the same month/day every year.
type fixedHoliday struct {
	month time.Month
	day   int
	name  string
}

// easterHoliday is an offset in days from Easter Sunday.
type easterHoliday struct {
	offset int
	name   string
}

var nationalFixed = []fixedHoliday{
	{time.January, 1, "New Year's Day"},
	{time.May, 1, "Labour Day"},
	{time.October, 3, "German Unity Day"},
	{time.December, 25, "Christmas Day"},
	{time.December, 26, "Boxing Day"},
}

var nationalMoveable = []easterHoliday{
	{-2, "Good Friday"},
	{1, "Easter Monday"},
	{39, "Ascension Day"},
	{50, "Whit Monday"},
}

var (
	epiphany      = fixedHoliday{time.January, 6, "Epiphany"}
	allSaints     = fixedHoliday{time.November, 1, "All Saints' Day"}
	assumption    = fixedHoliday{time.August, 15, "Assumption Day"}
	corpusChristi = easterHoliday{60, "Corpus Christi"}
)

// Region is a holiday region code such as "BW".
type Region string

const (
	RegionNational          Region = "DE"
	RegionBadenWuerttemberg Region = "BW"
	RegionBavaria           Region = "BY"
	RegionNorthRhine        Region = "NW"
)

type regionRules struct {
	fixed    []fixedHoliday
	moveable []easterHoliday
}

var regions = map[Region]regionRules{
	RegionNational:          {},
	RegionBadenWuerttemberg: {fixed: []fixedHoliday{epiphany, allSaints}, moveable: []easterHoliday{corpusChristi}},
	RegionBavaria:           {fixed: []fixedHoliday{epiphany, assumption, allSaints}, moveable: []easterHoliday{corpusChristi}},
	RegionNorthRhine:        {fixed: []fixedHoliday{allSaints}, moveable: []easterHoliday{corpusChristi}},
}

// LookupRegion resolves a region code, case-insensitively.
func LookupRegion(code string) (Region, error) {
	r := Region(strings.ToUpper(strings.TrimSpace(code)))
	if _, ok := regions[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRegion, code)
	}
	return r, nil
}

// Regions lists the supported region codes in sorted order.
func Regions() []Region {
	out := make([]Region, 0, len(regions))
	for r := range regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// =============================================================================
// HOLIDAY SET
// =============================================================================

// HolidaySet maps each public holiday of one year to its name.
// Treat it as read-only; Holidays returns a fresh set on each call.
type HolidaySet map[Date]string

// Contains reports whether d is a holiday.
func (s HolidaySet) Contains(d Date) bool {
	_, ok := s[d]
	return ok
}

// Holiday is one entry of a sorted holiday listing.
type Holiday struct {
	Date Date   `json:"date"`
	Name string `json:"name"`
}

// Sorted returns the holidays in date order.
func (s HolidaySet) Sorted() []Holiday {
	out := make([]Holiday, 0, len(s))
	for d, name := range s {
		out = append(out, Holiday{Date: d, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Holidays computes the holiday set for year in region. Unknown regions
// get the national holidays only; use LookupRegion to validate codes.
func Holidays(year int, region Region) HolidaySet {
	rules := regions[region]
	easter := Easter(year)

	set := make(HolidaySet, len(nationalFixed)+len(nationalMoveable)+len(rules.fixed)+len(rules.moveable))
	for _, h := range append(append([]fixedHoliday{}, nationalFixed...), rules.fixed...) {
		set[NewDate(year, h.month, h.day)] = h.name
	}
	for _, h := range append(append([]easterHoliday{}, nationalMoveable...), rules.moveable...) {
		set[easter.AddDays(h.offset)] = h.name
	}
	return set
}
