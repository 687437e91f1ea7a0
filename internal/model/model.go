package model

import "time"

// Event is a single concrete calendar entry after parsing, recurrence
// expansion and timezone normalization. Start <= End always holds.
//
// All-day entries are anchored at midnight in the display timezone and their
// End is the last covered day (the exclusive ICS end date minus one day), so
// a single-day all-day event has Start == End.
type Event struct {
	SourceID string // calendar source ID (config source ID)
	UID      string // iCalendar UID

	Summary     string
	Description string
	Location    string

	AllDay bool

	Start time.Time
	End   time.Time
}

// Day truncates t to midnight of its calendar day, keeping the location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar date as seen in
// their own locations.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// dateKey reduces t to a comparable calendar date.
func dateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// Covers reports whether day lies within [Start.date, End.date].
func (e Event) Covers(day time.Time) bool {
	k := dateKey(day)
	return dateKey(e.Start) <= k && k <= dateKey(e.End)
}

// StartsBetween reports whether the start date lies within [from.date, to.date].
func (e Event) StartsBetween(from, to time.Time) bool {
	k := dateKey(e.Start)
	return dateKey(from) <= k && k <= dateKey(to)
}
