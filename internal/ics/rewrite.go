package ics

import "strings"

// OwnerToken in a Replacement's To is substituted with the owner name.
const OwnerToken = "{owner}"

// Replacement is a literal substring rewrite for summaries.
type Replacement struct {
	From string
	To   string
}

// Rewriter applies summary replacements in order. HR calendars phrase PTO
// from the employee's point of view ("Your Paid Time Off time"), which reads
// wrong once posted to a shared channel.
type Rewriter struct {
	replacements []Replacement
}

func NewRewriter(owner string, replacements []Replacement) *Rewriter {
	rs := make([]Replacement, 0, len(replacements))
	for _, r := range replacements {
		if r.From == "" {
			continue
		}
		rs = append(rs, Replacement{
			From: r.From,
			To:   strings.ReplaceAll(r.To, OwnerToken, owner),
		})
	}
	return &Rewriter{replacements: rs}
}

// Rewrite applies every replacement, each to the output of the previous one.
func (r *Rewriter) Rewrite(summary string) string {
	if r == nil {
		return summary
	}
	for _, rep := range r.replacements {
		summary = strings.ReplaceAll(summary, rep.From, rep.To)
	}
	return summary
}
