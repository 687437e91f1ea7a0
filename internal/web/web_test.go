package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calpost/internal/config"
	"calpost/internal/format"
	"calpost/internal/model"
)

type fakeSource struct {
	loc    *time.Location
	events []model.Event
	err    error
	calls  int
	days   []time.Time
}

func (f *fakeSource) EventsOn(_ context.Context, day time.Time) ([]model.Event, error) {
	f.calls++
	f.days = append(f.days, day)
	return f.events, f.err
}

func (f *fakeSource) Location() *time.Location      { return f.loc }
func (f *fakeSource) FormatOptions() format.Options { return format.Options{} }

func newTestServer(cfg *config.Config, src *fakeSource) *Server {
	s := NewServer(cfg, src)
	s.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestHealth(t *testing.T) {
	s := newTestServer(config.DefaultConfig(), &fakeSource{loc: time.UTC})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestEvents(t *testing.T) {
	day := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{loc: time.UTC, events: []model.Event{
		{SourceID: "gusto", UID: "pto", Summary: "Ada - OOO", AllDay: true, Start: day, End: day},
		{SourceID: "gusto", UID: "sync", Summary: "Payroll sync", Start: day.Add(14 * time.Hour), End: day.Add(15 * time.Hour)},
	}}
	s := newTestServer(config.DefaultConfig(), src)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?date=2026-10-20", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2026-10-20", resp.Date)
	assert.Equal(t, "UTC", resp.DisplayTimeZone)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "all-day", resp.Events[0].Label)
	assert.Equal(t, "02:00 PM - 03:00 PM", resp.Events[1].Label)
	assert.Equal(t, day, src.days[0])
}

func TestEvents_DefaultsToToday(t *testing.T) {
	src := &fakeSource{loc: time.UTC}
	s := newTestServer(config.DefaultConfig(), src)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, src.days, 1)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), src.days[0])
	assert.JSONEq(t, `{"date":"2026-10-19","display_timezone":"UTC","events":[]}`, rec.Body.String())
}

func TestEvents_Cached(t *testing.T) {
	src := &fakeSource{loc: time.UTC}
	s := newTestServer(config.DefaultConfig(), src)

	for range 3 {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?date=2026-10-20", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, src.calls)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?date=2026-10-21", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, src.calls)
}

func TestEvents_StaleEntriesEvicted(t *testing.T) {
	src := &fakeSource{loc: time.UTC}
	s := newTestServer(config.DefaultConfig(), src)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	get := func(date string) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?date="+date, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	get("2026-10-20")
	get("2026-10-21")
	assert.Len(t, s.eventsCache, 2)

	now = now.Add(eventsCacheTTL)
	get("2026-10-22")
	assert.Len(t, s.eventsCache, 1)
	assert.Contains(t, s.eventsCache, "2026-10-22")
	assert.Equal(t, 3, src.calls)
}

func TestEvents_BadRequest(t *testing.T) {
	s := newTestServer(config.DefaultConfig(), &fakeSource{loc: time.UTC})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?date=20-10-2026", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/events", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEvents_SourceError(t *testing.T) {
	s := newTestServer(config.DefaultConfig(), &fakeSource{loc: time.UTC, err: errors.New("boom")})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"failed to collect events"}`, rec.Body.String())
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	s := newTestServer(cfg, &fakeSource{loc: time.UTC})
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicAuth_EmptyCredentialsDisable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin"}
	s := newTestServer(cfg, &fakeSource{loc: time.UTC})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, secureCompare("abc", "abc"))
	assert.False(t, secureCompare("abc", "abd"))
	assert.False(t, secureCompare("abc", "abcd"))
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	s := newTestServer(cfg, &fakeSource{loc: time.UTC})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
