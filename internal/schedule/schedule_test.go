package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calpost/internal/model"
)

func date(day int) time.Time {
	return time.Date(2026, 10, day, 0, 0, 0, 0, time.UTC)
}

func TestPlanFor(t *testing.T) {
	monday := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	p := PlanFor(monday, time.Monday)
	assert.True(t, p.Weekly)
	assert.Equal(t, date(19), p.Day)

	p = PlanFor(monday.AddDate(0, 0, 1), time.Monday)
	assert.False(t, p.Weekly)

	p = PlanFor(monday.AddDate(0, 0, 4), time.Friday)
	assert.True(t, p.Weekly)
}

func TestEventsOn(t *testing.T) {
	events := []model.Event{
		{Summary: "pto", Start: date(18), End: date(21)},
		{Summary: "standup", Start: date(19).Add(9 * time.Hour), End: date(19).Add(10 * time.Hour)},
		{Summary: "tomorrow", Start: date(20), End: date(20)},
		{Summary: "past", Start: date(10), End: date(18)},
	}

	got := EventsOn(events, date(19).Add(15*time.Hour))
	require.Len(t, got, 2)
	assert.Equal(t, "pto", got[0].Summary)
	assert.Equal(t, "standup", got[1].Summary)

	assert.Empty(t, EventsOn(events, date(25)))
}

func TestEventsInWeek(t *testing.T) {
	events := []model.Event{
		{Summary: "started before", Start: date(18), End: date(21)},
		{Summary: "today", Start: date(19), End: date(19)},
		{Summary: "sunday", Start: date(25).Add(23 * time.Hour), End: date(26)},
		{Summary: "next monday", Start: date(26), End: date(26)},
	}

	got := EventsInWeek(events, date(19))
	require.Len(t, got, 2)
	assert.Equal(t, "today", got[0].Summary)
	assert.Equal(t, "sunday", got[1].Summary)
}

func TestWindow(t *testing.T) {
	start, end := Window(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, date(18), start)
	assert.Equal(t, date(27), end)
}

func TestNewScheduler_RejectsBadSpec(t *testing.T) {
	_, err := NewScheduler("every day at nine", time.UTC, func(context.Context) error { return nil })
	assert.Error(t, err)

	_, err = NewScheduler("0 9 * * *", time.UTC, nil)
	assert.Error(t, err)
}

func TestScheduler_Next(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	s, err := NewScheduler("0 9 * * *", ny, func(context.Context) error { return nil })
	require.NoError(t, err)

	next := s.Next(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 0, 0, ny).Unix(), next.Unix())
}

func TestScheduler_RunUntilCanceled(t *testing.T) {
	var runs atomic.Int32
	s, err := NewScheduler("@every 1s", time.UTC, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
