// Package changelog persists per-actor changelog entries derived from
// coding-session transcripts: run identity, the append-only ledger, entry
// generation through an evaluator, and historical backfill.
package changelog

import (
	"regexp"
	"strings"
)

// Word-bounded so a JSON field name like "rate_limits" in echoed payload
// data does not classify a run as rate limited.
var (
	rateLimitTokenRe = regexp.MustCompile(`\brate_limit\b`)
	status429Re      = regexp.MustCompile(`\b429\b`)
)

var usageLimitPhrases = []string{
	"usage_limit_reached",
	"you've hit your usage limit",
	"rate limit",
	"too many requests",
}

// IsUsageLimitError reports whether an evaluator failure message indicates
// a provider usage or rate limit. Backfill halts on these rather than
// burning the rest of the batch.
func IsUsageLimitError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, phrase := range usageLimitPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return rateLimitTokenRe.MatchString(lower) || status429Re.MatchString(lower)
}

// IsContextWindowError reports whether an evaluator failure message
// indicates the digest overflowed the model's context. These runs get one
// retry with a budget-reduced digest.
func IsContextWindowError(msg string) bool {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "argument list too long"):
		return true
	case strings.Contains(lower, "context window") &&
		(strings.Contains(lower, "ran out of room") || strings.Contains(lower, "start a new conversation")):
		return true
	case strings.Contains(lower, "context length") &&
		(strings.Contains(lower, "exceeded") || strings.Contains(lower, "too long")):
		return true
	case strings.Contains(lower, "prompt") && strings.Contains(lower, "too long"):
		return true
	}
	return false
}
