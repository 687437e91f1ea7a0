package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calpost/internal/model"
)

var (
	day   = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	later = time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC)
)

func ev(source, summary string, start, end time.Time) model.Event {
	return model.Event{SourceID: source, Summary: summary, Start: start, End: end}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ada Lovelace: Out-of-Office!", "ada lovelace outofoffice"},
		{"Grace Hopper - OOO", "grace hopper  ooo"},
		{"Café (PTO)", "café pto"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 0.6153846, Similarity("kitten", "sitting"), 1e-6)
	assert.InDelta(t, 0.75, Similarity("abcd", "bcda"), 1e-6)
	assert.InDelta(t, 0.9696969, Similarity("grace hopper  ooo", "grace hopper ooo"), 1e-6)
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("abc", ""))
}

func TestFirstWordsMatch(t *testing.T) {
	assert.True(t, FirstWordsMatch("ada  ooo", "ada out of office"))
	assert.False(t, FirstWordsMatch("ada ooo", "bob ooo"))
	assert.True(t, FirstWordsMatch("", "   "))
	assert.False(t, FirstWordsMatch("", "ada"))
}

func TestRemove_CollapsesAcrossSources(t *testing.T) {
	events := []model.Event{
		ev("gusto", "Grace Hopper - OOO", day, later),
		ev("kinhr", "Grace Hopper OOO", day, later),
		ev("kinhr", "Team offsite", day, day),
	}

	got := Remove(events, DefaultOptions())
	require.Len(t, got, 2)
	assert.Equal(t, "gusto", got[0].SourceID, "first seen wins")
	assert.Equal(t, "Team offsite", got[1].Summary)
}

func TestRemove_DifferentTimesAlwaysKept(t *testing.T) {
	events := []model.Event{
		ev("gusto", "Grace Hopper - OOO", day, later),
		ev("kinhr", "Grace Hopper - OOO", day, later.AddDate(0, 0, 1)),
		ev("kinhr", "Grace Hopper - OOO", day.Add(time.Hour), later),
	}

	assert.Len(t, Remove(events, DefaultOptions()), 3)
}

func TestRemove_FirstWordCheckIsConfigurable(t *testing.T) {
	// 0.625 similar, but about different people.
	events := []model.Event{
		ev("gusto", "Ada - OOO", day, day),
		ev("kinhr", "Bob - OOO", day, day),
	}

	assert.Len(t, Remove(events, Options{Threshold: 0.6, RequireFirstWord: true}), 2)
	assert.Len(t, Remove(events, Options{Threshold: 0.6, RequireFirstWord: false}), 1)
}

func TestRemove_ThresholdIsStrict(t *testing.T) {
	events := []model.Event{
		ev("a", "abcd", day, day),
		ev("b", "bcda", day, day),
	}

	assert.Len(t, Remove(events, Options{Threshold: 0.75}), 2, "ratio must exceed the threshold")
	assert.Len(t, Remove(events, Options{Threshold: 0.7}), 1)
}

func TestRemove_PreservesOrderWithoutSorting(t *testing.T) {
	events := []model.Event{
		ev("a", "Zeta", later, later),
		ev("a", "Alpha", day, day),
		ev("b", "zeta!", later, later),
		ev("b", "Mid", day, later),
	}

	got := Remove(events, DefaultOptions())
	var summaries []string
	for _, e := range got {
		summaries = append(summaries, e.Summary)
	}
	assert.Equal(t, []string{"Zeta", "Alpha", "Mid"}, summaries)
}

func TestRemove_Empty(t *testing.T) {
	assert.Empty(t, Remove(nil, DefaultOptions()))
}

func TestIsDuplicate_ComparesInstants(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	a := ev("a", "Standup", time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC), time.Date(2026, 10, 19, 14, 15, 0, 0, time.UTC))
	b := ev("b", "Standup", a.Start.In(est), a.End.In(est))

	assert.True(t, IsDuplicate(a, b, DefaultOptions()))
}
