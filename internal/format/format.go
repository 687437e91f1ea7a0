// Package format renders events into chat messages.
//
// Times are printed in whatever location the event carries; callers are
// expected to have normalized events into the display timezone already.
package format

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"calpost/internal/model"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "03:04 PM"

	// AllDayLabel is the label of a single-day event spanning midnight to midnight.
	AllDayLabel = "all-day"

	// WeeklyHeader opens the weekly summary.
	WeeklyHeader = "This week's events:"

	// DefaultHoursOverrideBelow is the exclusive upper bound for "(N hrs)" overrides.
	DefaultHoursOverrideBelow = 8
)

var hoursRe = regexp.MustCompile(`\((\d+) hrs\)`)

// BlockType is the kind of a message block.
type BlockType string

const (
	BlockSection BlockType = "section"
	BlockDivider BlockType = "divider"
)

// Block is one rendered piece of a message. Text is Slack mrkdwn and is empty
// for dividers.
type Block struct {
	Type BlockType `json:"type"`
	Text string    `json:"text,omitempty"`
}

// Message is a rendered post.
type Message struct {
	Blocks []Block `json:"blocks"`
	// Fallback is the plain text shown in notifications.
	Fallback string `json:"fallback"`
}

// Options controls rendering.
type Options struct {
	// HoursOverrideBelow: a "(N hrs)" description replaces the time label only
	// when N is below this value. Zero means DefaultHoursOverrideBelow.
	HoursOverrideBelow int
}

func (o Options) hoursBelow() int {
	if o.HoursOverrideBelow <= 0 {
		return DefaultHoursOverrideBelow
	}
	return o.HoursOverrideBelow
}

// ExtractHours finds the first "(N hrs)" in desc and returns N when it is
// below the given bound.
func ExtractHours(desc string, below int) (int, bool) {
	m := hoursRe.FindStringSubmatch(desc)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n >= below {
		return 0, false
	}
	return n, true
}

// IsAllDay reports whether start/end describe a single all-day slot: same
// instant, at midnight.
func IsAllDay(start, end time.Time) bool {
	return start.Equal(end) && start.Hour() == 0 && start.Minute() == 0
}

// TimeRange renders the time label of an event.
func TimeRange(start, end time.Time) string {
	if !model.SameDay(start, end) {
		return "from " + start.Format(dateLayout) + " to " + end.Format(dateLayout)
	}
	if IsAllDay(start, end) {
		return AllDayLabel
	}
	return start.Format(clockLayout) + " - " + end.Format(clockLayout)
}

// Label is the daily label of ev: "N hrs" when the description override
// fires, otherwise TimeRange.
func Label(ev model.Event, opts Options) string {
	if n, ok := ExtractHours(ev.Description, opts.hoursBelow()); ok {
		return strconv.Itoa(n) + " hrs"
	}
	return TimeRange(ev.Start, ev.End)
}

// Daily renders today's events. It returns nil for an empty list.
func Daily(events []model.Event, opts Options) *Message {
	if len(events) == 0 {
		return nil
	}

	sorted := sortEvents(events)
	blocks := make([]Block, 0, len(sorted)+1)
	for _, ev := range sorted {
		blocks = append(blocks, section("*"+ev.Summary+"*\n"+Label(ev, opts)))
	}
	blocks = append(blocks, Block{Type: BlockDivider})

	return newMessage(blocks)
}

// Weekly renders the weekly summary. It returns nil for an empty list.
func Weekly(events []model.Event, opts Options) *Message {
	if len(events) == 0 {
		return nil
	}

	sorted := sortEvents(events)
	blocks := make([]Block, 0, len(sorted)+2)
	blocks = append(blocks, section(WeeklyHeader))
	for _, ev := range sorted {
		blocks = append(blocks, section(weeklyLine(ev, opts)))
	}
	blocks = append(blocks, Block{Type: BlockDivider})

	return newMessage(blocks)
}

func weeklyLine(ev model.Event, opts Options) string {
	title := "*" + ev.Summary + "*"
	date := ev.Start.Format(dateLayout)

	if n, ok := ExtractHours(ev.Description, opts.hoursBelow()); ok {
		return title + " on " + date + "\n" + strconv.Itoa(n) + " hrs"
	}
	if !model.SameDay(ev.Start, ev.End) {
		return title + " from " + date + " to " + ev.End.Format(dateLayout)
	}
	if IsAllDay(ev.Start, ev.End) {
		return title + " on " + date
	}
	return title + " on " + date + " from " + ev.Start.Format(clockLayout) + " to " + ev.End.Format(clockLayout)
}

// sortEvents returns a copy ordered by start, then summary.
func sortEvents(events []model.Event) []model.Event {
	out := slices.Clone(events)
	slices.SortStableFunc(out, func(a, b model.Event) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.Summary, b.Summary)
	})
	return out
}

func section(text string) Block {
	return Block{Type: BlockSection, Text: text}
}

func newMessage(blocks []Block) *Message {
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Text != "" {
			lines = append(lines, strings.ReplaceAll(b.Text, "*", ""))
		}
	}
	return &Message{Blocks: blocks, Fallback: strings.Join(lines, "\n")}
}
