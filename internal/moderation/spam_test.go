package moderation

import "testing"

// An empty term list isolates the spam heuristics from the keyword blocklist.
func spamOnlyFilter() *Filter { return NewFilterWithTerms(nil) }

func TestSpamPatterns(t *testing.T) {
	f := spamOnlyFilter()

	tests := []struct {
		name  string
		input string
		term  string
	}{
		{"http url", "check out http://evil.com", "url"},
		{"https url", "visit https://spam.xyz/click", "url"},
		{"www url", "go to www.phishing.net", "url"},
		{"bare domain with path", "visit evil.com/free", "url"},
		{"intl dashed phone", "+1-555-123-4567", "phone"},
		{"parenthesized area code", "(555) 123-4567", "phone"},
		{"dotted phone", "555.123.4567", "phone"},
		{"phone in sentence", "call me at 555-123-4567 okay?", "phone"},
		{"character flood", "hellooooooo", "char_flood"},
		{"punctuation flood", "wow!!!!!", "char_flood"},
		{"word flood", "buy buy buy", "word_flood"},
		{"word flood mixed case", "BUY buy Buy", "word_flood"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Check(tt.input)
			if !got.Blocked {
				t.Fatalf("Check(%q) passed, want blocked", tt.input)
			}
			if got.Reason != "spam_pattern" || got.Term != tt.term {
				t.Errorf("Check(%q) = %+v, want spam_pattern/%s", tt.input, got, tt.term)
			}
		})
	}
}

func TestSpamCleanMessages(t *testing.T) {
	f := spamOnlyFilter()

	clean := []string{
		"",
		"I have 3 cats",
		"My score is 100",
		"upgrade to v2.0",
		"pi is about 3.14",
		"I got 42 out of 50",
		"see you in 2025",
		"it costs $5.99",
		"wow!!! that's great!!",
		"sooo cool",
		"yeah yeah whatever",
		"hello\nworld",
		"aaaa", // one under the run threshold
		"go go", // one under the word threshold
	}
	for _, msg := range clean {
		if got := f.Check(msg); got.Blocked {
			t.Errorf("Check(%q) blocked (%s/%s), want clean", msg, got.Reason, got.Term)
		}
	}
}

func TestSpamFloodBoundaries(t *testing.T) {
	f := spamOnlyFilter()

	if f.Check("aaaa").Blocked {
		t.Error("four identical runes blocked, threshold is five")
	}
	if !f.Check("aaaaa").Blocked {
		t.Error("five identical runes passed")
	}
	if f.Check("spam spam").Blocked {
		t.Error("two repeated words blocked, threshold is three")
	}
	if !f.Check("spam spam spam").Blocked {
		t.Error("three repeated words passed")
	}
}

// A blocked keyword wins over a spam pattern in the same text.
func TestKeywordBeatsSpamPattern(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword"})

	got := f.Check("badword at http://evil.com")
	if !got.Blocked || got.Reason != "blocked_keyword" {
		t.Errorf("Check = %+v, want blocked_keyword first", got)
	}
}
