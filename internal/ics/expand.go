package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calpost/internal/log"
	"calpost/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all occurrences will be converted.
	// If nil, UTC is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the time window for occurrences. An
	// occurrence is kept when it overlaps the window.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap to avoid infinite or extremely
	// large expansions. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int

	// Rewriter, if set, is applied to every summary.
	Rewriter *Rewriter
}

// ExpandResult wraps the list of expanded events and information about
// truncation.
type ExpandResult struct {
	Events []model.Event
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// ExpandOccurrences turns ParsedEvents into concrete model.Events within the
// configured window. It handles:
//
//   - Single non-recurring events
//   - RRULE-based recurrence (DAILY/WEEKLY/MONTHLY/YEARLY, etc.)
//   - EXDATE for exception removal
//   - RECURRENCE-ID overrides
//   - All-day semantics (midnight anchoring in the display timezone)
//
// Output order follows input order; occurrences of one recurring event are
// chronological. Deduplication relies on that order.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.UTC
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Overrides are attached to the recurring base event with the same UID
	// from the same source.
	overridesByKey := make(map[string][]ParsedEvent)
	recurringKeys := make(map[string]bool)
	for _, ev := range events {
		key := ev.Source.ID + "\x00" + ev.UID
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByKey[key] = append(overridesByKey[key], ev)
		} else if ev.RawRRule != "" {
			recurringKeys[key] = true
		}
	}

	out := make([]model.Event, 0, len(events))

	for _, ev := range events {
		key := ev.Source.ID + "\x00" + ev.UID

		if ev.IsOverride && ev.Recurrence != nil {
			if recurringKeys[key] {
				continue
			}
			// Orphan override: the base event is not in this feed.
			out = append(out, expandSingleEvent(ev, cfg)...)
			continue
		}

		if ev.RawRRule == "" {
			out = append(out, expandSingleEvent(ev, cfg)...)
			continue
		}

		occ, hitCap := expandRecurringEvent(ev, overridesByKey[key], cfg)
		out = append(out, occ...)
		if hitCap {
			result.TruncatedEvents = append(result.TruncatedEvents, ev.UID)
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", ev.UID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	result.Events = out
	return result, nil
}

func expandSingleEvent(ev ParsedEvent, cfg ExpandConfig) []model.Event {
	occ := makeOccurrence(ev, ev.Start, ev.End, cfg)
	if !inRange(occ, ev.EndIsDate, cfg) {
		return nil
	}
	return []model.Event{occ}
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	out := make([]model.Event, 0)
	hitCap := false

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		// Fall back to the first instance so the event is not lost.
		return expandSingleEvent(ev, cfg), false
	}

	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)

	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the window so that multi-day occurrences starting before the
	// range, and all-day dates held in UTC, are still considered.
	dur := ev.End.Sub(ev.Start)
	if dur < 0 {
		dur = 0
	}
	rangeStart := cfg.RangeStart.Add(-dur - 24*time.Hour).In(ev.Start.Location())
	rangeEnd := cfg.RangeEnd.Add(24 * time.Hour).In(ev.Start.Location())

	occTimes := set.Between(rangeStart, rangeEnd, true)

	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	for _, occStart := range occTimes {
		baseEv := ev
		start := occStart
		end := occStart.Add(dur)

		if o, ok := findOverrideForStart(overrides, occStart); ok {
			baseEv = o
			start = o.Start
			end = o.End
		}

		occ := makeOccurrence(baseEv, start, end, cfg)
		if inRange(occ, baseEv.EndIsDate, cfg) {
			out = append(out, occ)
		}
	}

	return out, hitCap
}

// findOverrideForStart finds the override whose RECURRENCE-ID matches the
// given occurrence start with exact instant equality. When several match,
// the highest SEQUENCE wins; ties go to the later one in the feed.
func findOverrideForStart(overrides []ParsedEvent, occStart time.Time) (ParsedEvent, bool) {
	var best ParsedEvent
	found := false
	for _, ov := range overrides {
		if ov.Recurrence == nil || !ov.Recurrence.Equal(occStart) {
			continue
		}
		if !found || ov.Seq >= best.Seq {
			best = ov
			found = true
		}
	}
	return best, found
}

// makeOccurrence converts a (possibly overridden) ParsedEvent + specific
// start/end into a model.Event normalized into the display location.
func makeOccurrence(ev ParsedEvent, start, end time.Time, cfg ExpandConfig) model.Event {
	loc := cfg.DisplayLocation

	var startLocal, endLocal time.Time
	if ev.AllDay {
		startLocal = anchorDate(start, loc)
	} else {
		startLocal = start.In(loc)
	}
	if ev.EndIsDate {
		endLocal = anchorDate(end, loc)
	} else {
		endLocal = end.In(loc)
	}
	if endLocal.Before(startLocal) {
		endLocal = startLocal
	}

	summary := ev.Summary
	if cfg.Rewriter != nil {
		summary = cfg.Rewriter.Rewrite(summary)
	}

	return model.Event{
		SourceID:    ev.Source.ID,
		UID:         ev.UID,
		Summary:     summary,
		Description: ev.Description,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
		Start:       startLocal,
		End:         endLocal,
	}
}

// anchorDate places the calendar date of a UTC-held DATE value at midnight
// in loc.
func anchorDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// inRange reports whether the occurrence overlaps [RangeStart, RangeEnd].
// Date-valued ends cover their whole last day.
func inRange(ev model.Event, endIsDate bool, cfg ExpandConfig) bool {
	end := ev.End
	if endIsDate {
		end = model.Day(end).AddDate(0, 0, 1)
	}
	return timeRangesOverlap(ev.Start, end, cfg.RangeStart, cfg.RangeEnd)
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
