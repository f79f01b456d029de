package moderation

import (
	"regexp"
	"strings"
)

// Spam detection patterns, compiled once at init. The bare-domain variant of
// the link pattern requires a trailing "/" so version strings ("v2.0") and
// decimals ("3.14") pass.
var (
	linkPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

	// Phone formats like +1-555-123-4567, (555) 123-4567, 555.123.4567.
	// Anchored to whitespace so short numbers ("100", "42") pass.
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

const (
	runFloodThreshold  = 5 // consecutive identical runes
	wordFloodThreshold = 3 // consecutive identical words
)

// checkSpamPatterns applies the spam heuristics in order; the first hit wins.
// A zero FilterResult means the text passed every check.
func (f *Filter) checkSpamPatterns(text string) FilterResult {
	switch {
	case linkPattern.MatchString(text):
		return FilterResult{Blocked: true, Reason: "spam_pattern", Term: "url"}
	case phonePattern.MatchString(text):
		return FilterResult{Blocked: true, Reason: "spam_pattern", Term: "phone"}
	case hasRunFlood(text):
		return FilterResult{Blocked: true, Reason: "spam_pattern", Term: "char_flood"}
	case hasWordFlood(text):
		return FilterResult{Blocked: true, Reason: "spam_pattern", Term: "word_flood"}
	}
	return FilterResult{}
}

// hasRunFlood reports runFloodThreshold or more consecutive identical runes.
// RE2 has no backreferences, so this is a linear scan.
func hasRunFlood(text string) bool {
	run := 0
	var prev rune = -1
	for _, r := range text {
		if r == prev {
			run++
			if run >= runFloodThreshold {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

// hasWordFlood reports the same word (case-insensitive) repeated
// wordFloodThreshold or more times in a row.
func hasWordFlood(text string) bool {
	run := 0
	prev := ""
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if w == prev {
			run++
			if run >= wordFloodThreshold {
				return true
			}
		} else {
			prev = w
			run = 1
		}
	}
	return false
}
