package ics

import "strings"

// crlf converts a readable fixture into RFC 5545 line endings.
func crlf(s string) string {
	return strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n")
}

var hrCalendar = crlf(`
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Example HR//EN
BEGIN:VEVENT
UID:pto-1@hr.example
DTSTAMP:20261001T120000Z
DTSTART;VALUE=DATE:20261019
DTEND;VALUE=DATE:20261022
SUMMARY:Your Paid Time Off time
DESCRIPTION:Approved (24 hrs)
END:VEVENT
BEGIN:VEVENT
UID:meeting-1@hr.example
DTSTAMP:20261001T120000Z
DTSTART;TZID=America/New_York:20261020T090000
DTEND;TZID=America/New_York:20261020T103000
SUMMARY:Benefits review
LOCATION:Room 4
END:VEVENT
BEGIN:VEVENT
UID:utc-1@hr.example
DTSTAMP:20261001T120000Z
DTSTART:20261020T140000Z
DTEND:20261020T150000Z
SUMMARY:Payroll sync
END:VEVENT
BEGIN:VEVENT
UID:holiday-1@hr.example
DTSTAMP:20261001T120000Z
DTSTART;VALUE=DATE:20261023
SUMMARY:Company holiday
END:VEVENT
BEGIN:VEVENT
UID:standup@hr.example
DTSTAMP:20261001T120000Z
DTSTART;TZID=America/New_York:20261005T093000
DTEND;TZID=America/New_York:20261005T094500
RRULE:FREQ=WEEKLY;BYDAY=MO
EXDATE;TZID=America/New_York:20261012T093000
SUMMARY:Standup
END:VEVENT
BEGIN:VEVENT
UID:standup@hr.example
DTSTAMP:20261001T120000Z
RECURRENCE-ID;TZID=America/New_York:20261019T093000
DTSTART;TZID=America/New_York:20261019T100000
DTEND;TZID=America/New_York:20261019T101500
SUMMARY:Standup (moved)
END:VEVENT
END:VCALENDAR
`)
