// Package dedup collapses near-duplicate events coming from independent
// calendars, such as one PTO request exported by two HR systems with
// slightly different wording.
package dedup

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	appLog "calpost/internal/log"
	"calpost/internal/model"
)

// asciiPunctuation is stripped by Normalize. Non-ASCII punctuation is kept.
const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Options tunes what counts as a duplicate.
type Options struct {
	// Threshold is the similarity ratio the normalized summaries must exceed.
	Threshold float64
	// RequireFirstWord additionally requires equal first words, which keeps
	// "Ada - OOO" and "Bob - OOO" apart.
	RequireFirstWord bool
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{Threshold: 0.6, RequireFirstWord: true}
}

// Remove returns events with near-duplicates dropped. The first occurrence
// wins and accepted events keep their input order.
func Remove(events []model.Event, opts Options) []model.Event {
	unique := make([]model.Event, 0, len(events))
	// Normalized summaries of unique, computed once.
	normalized := make([]string, 0, len(events))

	for _, ev := range events {
		norm := Normalize(ev.Summary)
		dup := -1
		for i, kept := range unique {
			if isDuplicate(kept, normalized[i], ev, norm, opts) {
				dup = i
				break
			}
		}
		if dup >= 0 {
			appLog.Debug("dedup: dropping near-duplicate",
				"summary", ev.Summary,
				"source", ev.SourceID,
				"kept_summary", unique[dup].Summary,
				"kept_source", unique[dup].SourceID,
			)
			continue
		}
		unique = append(unique, ev)
		normalized = append(normalized, norm)
	}

	return unique
}

// IsDuplicate reports whether b is a near-duplicate of a under opts.
func IsDuplicate(a, b model.Event, opts Options) bool {
	return isDuplicate(a, Normalize(a.Summary), b, Normalize(b.Summary), opts)
}

func isDuplicate(a model.Event, normA string, b model.Event, normB string, opts Options) bool {
	if !a.Start.Equal(b.Start) || !a.End.Equal(b.End) {
		return false
	}
	if opts.RequireFirstWord && !FirstWordsMatch(normA, normB) {
		return false
	}
	return Similarity(normA, normB) > opts.Threshold
}

// Normalize lowercases s and strips ASCII punctuation.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x80 && strings.ContainsRune(asciiPunctuation, r) {
			return -1
		}
		return r
	}, strings.ToLower(s))
}

// Similarity returns the sequence-matcher ratio of a and b over characters,
// in [0, 1]. Two empty strings are identical.
func Similarity(a, b string) float64 {
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

// FirstWordsMatch compares the first whitespace-separated words. Two strings
// without words match each other; a string without words matches nothing else.
func FirstWordsMatch(a, b string) bool {
	fa, fb := strings.Fields(a), strings.Fields(b)
	if len(fa) == 0 || len(fb) == 0 {
		return len(fa) == len(fb)
	}
	return fa[0] == fb[0]
}
