// Package job wires one run end to end: fetch, extract, dedup, select and
// publish.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calpost/internal/config"
	"calpost/internal/dedup"
	"calpost/internal/format"
	"calpost/internal/ics"
	appLog "calpost/internal/log"
	"calpost/internal/model"
	"calpost/internal/publish"
	"calpost/internal/schedule"
)

// maxOccurrencesPerEvent caps recurrence expansion for a single VEVENT.
const maxOccurrencesPerEvent = 5000

// Fetcher retrieves raw calendars. *ics.Fetcher satisfies it.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// Runner executes production and single-date runs.
type Runner struct {
	sources   []ics.Source
	fetcher   Fetcher
	publisher publish.Publisher

	loc       *time.Location
	weeklyDay time.Weekday
	rewriter  *ics.Rewriter
	dedupOpts dedup.Options
	fmtOpts   format.Options

	now func() time.Time
}

// New builds a Runner from cfg. cfg must have passed Validate.
func New(cfg *config.Config, fetcher Fetcher, pub publish.Publisher) (*Runner, error) {
	if fetcher == nil {
		return nil, errors.New("job: fetcher is nil")
	}
	if pub == nil {
		return nil, errors.New("job: publisher is nil")
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	weekday, err := cfg.Weekday()
	if err != nil {
		return nil, err
	}

	sources := make([]ics.Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources = append(sources, ics.Source{ID: s.ID, Name: s.Name, URL: s.URL, Path: s.Path})
	}

	replacements := make([]ics.Replacement, 0, len(cfg.Replacements))
	for _, r := range cfg.Replacements {
		replacements = append(replacements, ics.Replacement{From: r.From, To: r.To})
	}

	return &Runner{
		sources:   sources,
		fetcher:   fetcher,
		publisher: pub,
		loc:       loc,
		weeklyDay: weekday,
		rewriter:  ics.NewRewriter(cfg.Owner, replacements),
		dedupOpts: dedup.Options{
			Threshold:        cfg.Dedup.Threshold,
			RequireFirstWord: cfg.Dedup.RequireFirstWord,
		},
		fmtOpts: format.Options{HoursOverrideBelow: cfg.Format.HoursOverrideBelow},
		now:     time.Now,
	}, nil
}

// SetClock replaces the time source used by RunDaily.
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// Location is the display timezone.
func (r *Runner) Location() *time.Location {
	return r.loc
}

// FormatOptions returns the rendering options runs use.
func (r *Runner) FormatOptions() format.Options {
	return r.fmtOpts
}

// Collect loads every source and returns the deduplicated events around day,
// in source order. Failing sources contribute nothing.
func (r *Runner) Collect(ctx context.Context, day time.Time) ([]model.Event, error) {
	results, fetchErrs := r.fetcher.FetchAll(ctx, r.sources)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(fetchErrs) > 0 {
		appLog.Warn("some calendar sources failed", "failed", len(fetchErrs), "ok", len(results))
	}

	var parsed []ics.ParsedEvent
	for _, res := range results {
		evs, err := ics.ParseICS(res.Source, res.Body, r.loc)
		if err != nil {
			appLog.Error("parsing calendar failed", err, "source", res.Source.Label())
			continue
		}
		parsed = append(parsed, evs...)
	}

	start, end := schedule.Window(day.In(r.loc))
	expanded, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		DisplayLocation:        r.loc,
		RangeStart:             start,
		RangeEnd:               end,
		MaxOccurrencesPerEvent: maxOccurrencesPerEvent,
		Rewriter:               r.rewriter,
	})
	if err != nil {
		return nil, fmt.Errorf("expanding events: %w", err)
	}
	if len(expanded.TruncatedEvents) > 0 {
		appLog.Warn("recurrence expansion truncated", "uids", expanded.TruncatedEvents)
	}

	events := dedup.Remove(expanded.Events, r.dedupOpts)
	appLog.Info("events collected",
		"sources", len(results),
		"expanded", len(expanded.Events),
		"unique", len(events),
	)
	return events, nil
}

// RunDaily is the production run for the current time: the weekly summary
// on the weekly day, then today's events.
func (r *Runner) RunDaily(ctx context.Context) error {
	plan := schedule.PlanFor(r.now().In(r.loc), r.weeklyDay)

	events, err := r.Collect(ctx, plan.Day)
	if err != nil {
		return err
	}

	var errs []error
	if plan.Weekly {
		week := schedule.EventsInWeek(events, plan.Day)
		if err := r.publish(ctx, "weekly", format.Weekly(week, r.fmtOpts)); err != nil {
			errs = append(errs, err)
		}
	}

	today := schedule.EventsOn(events, plan.Day)
	if err := r.publish(ctx, "daily", format.Daily(today, r.fmtOpts)); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// RunForDate posts the events of a single day, without the weekly summary.
func (r *Runner) RunForDate(ctx context.Context, day time.Time) error {
	day = model.Day(day.In(r.loc))

	events, err := r.Collect(ctx, day)
	if err != nil {
		return err
	}

	return r.publish(ctx, "daily", format.Daily(schedule.EventsOn(events, day), r.fmtOpts))
}

// EventsOn collects and returns the events covering day.
func (r *Runner) EventsOn(ctx context.Context, day time.Time) ([]model.Event, error) {
	day = model.Day(day.In(r.loc))

	events, err := r.Collect(ctx, day)
	if err != nil {
		return nil, err
	}
	return schedule.EventsOn(events, day), nil
}

// ParseDate parses a YYYY-MM-DD date in the display timezone.
func (r *Runner) ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, r.loc)
}

func (r *Runner) publish(ctx context.Context, kind string, msg *format.Message) error {
	if msg == nil {
		appLog.Info("no events, nothing to post", "kind", kind)
		return nil
	}
	if err := r.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publishing %s message: %w", kind, err)
	}
	return nil
}
