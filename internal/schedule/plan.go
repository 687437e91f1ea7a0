// Package schedule decides what to post on a given day and drives periodic
// runs in daemon mode.
package schedule

import (
	"time"

	"calpost/internal/model"
)

// WeekSpan is the number of days, today included, covered by the weekly summary.
const WeekSpan = 7

// Plan is what a run should post.
type Plan struct {
	Day    time.Time
	Weekly bool
}

// PlanFor returns the production plan for now: the weekly summary is due
// when now falls on weeklyDay.
func PlanFor(now time.Time, weeklyDay time.Weekday) Plan {
	return Plan{Day: model.Day(now), Weekly: now.Weekday() == weeklyDay}
}

// EventsOn returns events covering day, in input order.
func EventsOn(events []model.Event, day time.Time) []model.Event {
	var out []model.Event
	for _, ev := range events {
		if ev.Covers(day) {
			out = append(out, ev)
		}
	}
	return out
}

// EventsInWeek returns events whose start date lies within
// [day, day+WeekSpan-1], in input order.
func EventsInWeek(events []model.Event, day time.Time) []model.Event {
	last := model.Day(day).AddDate(0, 0, WeekSpan-1)
	var out []model.Event
	for _, ev := range events {
		if ev.StartsBetween(day, last) {
			out = append(out, ev)
		}
	}
	return out
}

// Window returns the range of instants a run for day must load: one day of
// slack before, and enough after to cover the weekly summary.
func Window(day time.Time) (start, end time.Time) {
	d := model.Day(day)
	return d.AddDate(0, 0, -1), d.AddDate(0, 0, WeekSpan+1)
}
