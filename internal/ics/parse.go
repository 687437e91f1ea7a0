package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "calpost/internal/log"
)

const (
	layoutDate     = "20060102"
	layoutDateTime = "20060102T150405"
	layoutUTC      = "20060102T150405Z"
)

// ParsedEvent is the normalized representation of a VEVENT as produced
// by the ICS parser. Recurrence expansion operates on this type.
//
// Date-valued DTSTART/DTEND are kept as UTC midnights; they are re-anchored
// in the display timezone during expansion. End already has the exclusive
// ICS end date shifted back by one day when EndIsDate is set.
type ParsedEvent struct {
	Source Source

	UID string
	// Seq is the SEQUENCE property; among overrides of one instance the
	// highest wins.
	Seq int

	Summary     string
	Description string
	Location    string

	Start     time.Time
	End       time.Time
	AllDay    bool // DTSTART is a DATE
	EndIsDate bool // DTEND is a DATE

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID (if present)
	IsOverride bool       // true if this VEVENT overrides a recurring instance
}

// ParseICS parses a single ICS payload into a list of ParsedEvent.
//
//   - Date-times ending in Z are UTC. A TZID selects the zone; Windows zone
//     names are mapped to IANA names. Floating date-times, and TZIDs that
//     cannot be resolved, are read in floating (UTC when nil).
//   - It detects all-day events by inspecting the DTSTART value format.
//   - It records RRULE/EXDATE/RECURRENCE-ID but does not expand
//     recurrences; see ExpandOccurrences.
//
// A VEVENT that cannot be parsed is logged and skipped.
func ParseICS(src Source, body []byte, floating *time.Location) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if floating == nil {
		floating = time.UTC
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID)
		return nil, err
	}

	events := make([]ParsedEvent, 0)

	for i, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp, floating)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "index", i)
			continue
		}
		if ev.UID == "" {
			ev.UID = fmt.Sprintf("%s-%d", src.ID, i)
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent, floating *time.Location) (ParsedEvent, error) {
	var out ParsedEvent
	out.Source = src

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}

	// SEQUENCE (optional, used for overrides/versioning)
	if seqProp := ve.GetProperty(ical.ComponentPropertySequence); seqProp != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(seqProp.Value)); err == nil {
			out.Seq = n
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStartProp == nil {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDateValue(dtStartProp)

	if out.AllDay {
		start, err := parseDate(dtStartProp.Value)
		if err != nil {
			return out, fmt.Errorf("DTSTART: %w", err)
		}
		out.Start = start
	} else {
		start, err := parseDateTime(dtStartProp, floating)
		if err != nil {
			return out, fmt.Errorf("DTSTART: %w", err)
		}
		out.Start = start
	}

	if dtEndProp := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEndProp != nil {
		if isDateValue(dtEndProp) {
			end, err := parseDate(dtEndProp.Value)
			if err != nil {
				return out, fmt.Errorf("DTEND: %w", err)
			}
			// The ICS end date is exclusive; keep the last covered day.
			out.End = end.AddDate(0, 0, -1)
			out.EndIsDate = true
		} else {
			end, err := parseDateTime(dtEndProp, floating)
			if err != nil {
				return out, fmt.Errorf("DTEND: %w", err)
			}
			out.End = end
		}
	} else {
		out.End = out.Start
		out.EndIsDate = out.AllDay
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	// EXDATE (can appear multiple times, each possibly comma separated)
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := resolveTZID(param(p, "TZID"), floating)
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	// RECURRENCE-ID (overridden instance)
	if ridProp := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); ridProp != nil {
		loc := resolveTZID(param(ridProp, "TZID"), floating)
		if t, err := parseICSTime(ridProp.Value, loc); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// isDateValue reports whether a DTSTART/DTEND style property carries a DATE
// rather than a DATE-TIME: VALUE=DATE or no 'T' in the value.
func isDateValue(p *ical.IANAProperty) bool {
	if strings.EqualFold(param(p, "VALUE"), "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func param(p *ical.IANAProperty, name string) string {
	if p == nil || p.ICalParameters == nil {
		return ""
	}
	if vs, ok := p.ICalParameters[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// parseDateTime parses a DATE-TIME property in the zone its TZID names.
func parseDateTime(p *ical.IANAProperty, floating *time.Location) (time.Time, error) {
	return parseICSTime(p.Value, resolveTZID(param(p, "TZID"), floating))
}

// resolveTZID maps a TZID parameter to a location. Unknown zones fall back
// to fallback, which is also used for floating values (empty tzid).
func resolveTZID(tzid string, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	tzid = strings.Trim(strings.TrimSpace(tzid), `"`)
	if tzid == "" {
		return fallback
	}
	if loc, ok := lookupZone(tzid); ok {
		return loc
	}
	appLog.Warn("ics: unknown TZID, using fallback zone", "tzid", tzid, "fallback", fallback.String())
	return fallback
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if len(v) < len(layoutDate) {
		return time.Time{}, fmt.Errorf("invalid date %q", v)
	}
	return time.ParseInLocation(layoutDate, v[:len(layoutDate)], time.UTC)
}

// parseICSTime parses an EXDATE / RECURRENCE-ID value. Floating date-times
// are interpreted in loc; dates become UTC midnights like DTSTART dates.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if strings.HasSuffix(v, "Z") {
		return time.Parse(layoutUTC, v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation(layoutDateTime, v, loc)
	}
	return parseDate(v)
}
