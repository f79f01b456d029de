// Package moderation provides content review for chat traffic: a keyword and
// phrase blocklist with leetspeak normalization, plus spam pattern detection
// (URLs, phone numbers, flooding). The filter is stateless after construction
// and safe for concurrent use.
package moderation

import (
	"strings"
	"unicode"
)

// FilterResult is the outcome of a content check.
type FilterResult struct {
	Blocked bool
	Reason  string // "blocked_keyword" or "spam_pattern"
	Term    string // the blocklist term or spam check that matched
}

// defaultTerms is the built-in blocklist. Single words are matched per token;
// multi-word entries are matched as consecutive token sequences, so ordinary
// words that merely contain a blocked substring ("class", "assess") pass.
var defaultTerms = []string{
	// slurs
	"nigger", "faggot", "kike", "spic", "chink", "tranny",
	// self-harm bait
	"kill yourself", "go die", "kys", "neck yourself",
	// sexual content involving minors
	"child porn", "jailbait", "cp trade",
	// sexual harassment
	"send nudes", "rape you",
	// extremism
	"heil hitler", "white power", "gas the jews",
	// violence
	"bomb threat", "shoot up the school", "kill you all",
	// scams
	"free bitcoin", "crypto giveaway", "cash app flip",
}

type phrase struct {
	text   string
	tokens []string
}

// Filter holds the compiled blocklist.
type Filter struct {
	words   map[string]struct{}
	phrases []phrase
}

// NewFilter creates a Filter with the built-in blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultTerms)
}

// NewFilterWithTerms creates a Filter from an explicit term list. Single-word
// terms go to the word set; multi-word terms are matched as phrases. Empty
// and whitespace-only terms are skipped.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		tokens := strings.Fields(term)
		if len(tokens) == 1 {
			f.words[term] = struct{}{}
		} else {
			f.phrases = append(f.phrases, phrase{text: term, tokens: tokens})
		}
	}
	return f
}

// Check runs the blocklist and spam checks against text. Keyword matches win
// over spam patterns; the zero FilterResult means the text is clean.
func (f *Filter) Check(text string) FilterResult {
	if text == "" {
		return FilterResult{}
	}

	// Plain pass: tokens split on non-alphanumerics.
	if r := f.checkTokens(tokenizePlain(text)); r.Blocked {
		return r
	}

	// Leet pass: tokens split on whitespace only, then normalized, so
	// "b@dw0rd" resolves to "badword".
	leet := tokenizeLeet(text)
	norm := make([]string, len(leet))
	for i, tok := range leet {
		norm[i] = normalizeLeet(tok)
	}
	if r := f.checkTokens(norm); r.Blocked {
		return r
	}

	return f.checkSpamPatterns(text)
}

// checkTokens looks for blocked words and phrases in a token stream.
func (f *Filter) checkTokens(tokens []string) FilterResult {
	for _, tok := range tokens {
		if _, bad := f.words[tok]; bad {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: tok}
		}
	}
	for _, p := range f.phrases {
		if containsSequence(tokens, p.tokens) {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: p.text}
		}
	}
	return FilterResult{}
}

// containsSequence reports whether needle appears as consecutive elements of
// haystack.
func containsSequence(haystack, needle []string) bool {
	if len(needle) == 0 || len(haystack) < len(needle) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, want := range needle {
			if haystack[i+j] != want {
				continue outer
			}
		}
		return true
	}
	return false
}

// CheckInterests filters a user's interest list down to the entries that pass
// the blocklist, preserving order.
func (f *Filter) CheckInterests(interests []string) []string {
	var clean []string
	for _, it := range interests {
		if !f.Check(it).Blocked {
			clean = append(clean, it)
		}
	}
	return clean
}

// leetMap maps common character substitutions back to their letters.
var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
	'!': 'i',
}

// normalizeLeet lowercases text and resolves common leetspeak substitutions.
func normalizeLeet(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if mapped, ok := leetMap[r]; ok {
			r = mapped
		}
		b.WriteRune(r)
	}
	return b.String()
}

// tokenizePlain splits text into lowercase tokens on any non-alphanumeric
// rune.
func tokenizePlain(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenizeLeet splits text into lowercase tokens on whitespace only, keeping
// substitution characters like '@' and '$' inside tokens for normalization.
func tokenizeLeet(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
