package moderation

import "testing"

func TestCheckBlockedWords(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "offensive"})

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"exact match", "badword", true, "badword"},
		{"in sentence", "this is badword here", true, "badword"},
		{"case insensitive", "BADWORD", true, "badword"},
		{"with punctuation", "hello, badword!", true, "badword"},
		{"clean message", "hello world", false, ""},
		{"prefix is not a match", "badwording is fine", false, ""},
		{"substring is not a match", "mybadword", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Check(tt.input)
			if got.Blocked != tt.blocked {
				t.Fatalf("Check(%q).Blocked = %v, want %v", tt.input, got.Blocked, tt.blocked)
			}
			if tt.blocked && (got.Term != tt.term || got.Reason != "blocked_keyword") {
				t.Errorf("Check(%q) = %+v, want term %q reason blocked_keyword", tt.input, got, tt.term)
			}
		})
	}
}

func TestCheckBlockedPhrases(t *testing.T) {
	f := NewFilterWithTerms([]string{"kill yourself", "go die"})

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"exact phrase", "kill yourself", true, "kill yourself"},
		{"phrase in sentence", "you should kill yourself now", true, "kill yourself"},
		{"case insensitive", "KILL YOURSELF", true, "kill yourself"},
		{"suffix breaks the phrase", "kill yourselves", false, ""},
		{"interleaved words break the phrase", "kill and yourself", false, ""},
		{"second phrase", "go die already", true, "go die"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Check(tt.input)
			if got.Blocked != tt.blocked {
				t.Fatalf("Check(%q).Blocked = %v, want %v", tt.input, got.Blocked, tt.blocked)
			}
			if tt.blocked && got.Term != tt.term {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, got.Term, tt.term)
			}
		})
	}
}

func TestCheckLeetspeak(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "offensive"})

	for _, input := range []string{"b@dw0rd", "b@dword", "off3n$ive", "offens1ve", "offens!ve", "0ff3n$!v3"} {
		if !f.Check(input).Blocked {
			t.Errorf("Check(%q) passed, want blocked after leet normalization", input)
		}
	}
}

// Ordinary words that merely contain a blocked substring must pass, since
// matching is per token, not per substring.
func TestCheckCleanMessages(t *testing.T) {
	f := NewFilter()

	clean := []string{
		"",
		"hello, how are you?",
		"what class are you in?",
		"I need to assess the situation",
		"the grape harvest was great",
		"do you like music?",
	}
	for _, msg := range clean {
		if got := f.Check(msg); got.Blocked {
			t.Errorf("Check(%q) blocked on %q, want clean", msg, got.Term)
		}
	}
}

func TestDefaultBlocklistCoversEveryCategory(t *testing.T) {
	f := NewFilter()

	for _, term := range []string{
		"nigger", "faggot", // slurs
		"kill yourself",            // self-harm bait
		"child porn", "send nudes", // sexual abuse
		"heil hitler", "bomb threat", // extremism and violence
		"free bitcoin", // scams
	} {
		if !f.Check(term).Blocked {
			t.Errorf("default blocklist missed %q", term)
		}
	}
}

func TestNewFilterWithTermsSkipsBlankEntries(t *testing.T) {
	f := NewFilterWithTerms([]string{"", "   ", "valid"})
	if _, ok := f.words["valid"]; !ok || len(f.words) != 1 {
		t.Errorf("words = %v, want exactly {valid}", f.words)
	}
}

func TestCheckInterests(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword"})

	got := f.CheckInterests([]string{"music", "badword", "movies"})
	want := []string{"music", "movies"}
	if len(got) != len(want) {
		t.Fatalf("CheckInterests = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("CheckInterests[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if out := f.CheckInterests(nil); len(out) != 0 {
		t.Errorf("CheckInterests(nil) = %v, want empty", out)
	}
}

func TestNormalizeLeet(t *testing.T) {
	tests := map[string]string{
		"hello":  "hello",
		"h3ll0":  "hello",
		"$h!t":   "shit",
		"ch@ng3": "change",
		"n0":     "no",
	}
	for input, want := range tests {
		if got := normalizeLeet(input); got != want {
			t.Errorf("normalizeLeet(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestTokenizers(t *testing.T) {
	// Plain tokenization splits on any non-alphanumeric rune.
	got := tokenizePlain("hello, world---again!")
	want := []string{"hello", "world", "again"}
	if len(got) != len(want) {
		t.Fatalf("tokenizePlain = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tokenizePlain[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Leet tokenization splits on whitespace only, keeping substitution
	// characters inside tokens.
	got = tokenizeLeet("hello $h!t bye")
	want = []string{"hello", "$h!t", "bye"}
	if len(got) != len(want) {
		t.Fatalf("tokenizeLeet = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tokenizeLeet[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func BenchmarkCheck(b *testing.B) {
	f := NewFilter()
	msg := "hey how are you doing today? I love chatting about music and movies."

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Check(msg)
	}
}
