package rss

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSummarizeTruncation(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantChars int
	}{
		{"ascii over limit", strings.Repeat("a", 150), MaxSummaryChars},
		{"ascii under limit", strings.Repeat("b", 40), 40},
		{"cjk over wide limit", strings.Repeat("字", 30) + strings.Repeat("c", 50), MaxWideSummaryChars},
		{"cjk under wide limit", "日本語のテキスト", 8},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.in)
			if !strings.HasSuffix(got, Ellipsis) {
				t.Fatalf("Expected ellipsis suffix, got: %q", got)
			}
			text := strings.TrimSuffix(got, Ellipsis)
			if n := utf8.RuneCountInString(text); n != tt.wantChars {
				t.Errorf("Expected %d characters, got: %d", tt.wantChars, n)
			}
		})
	}
}

func TestSummarizeStripsMarkup(t *testing.T) {
	in := `<div><script>alert(1)</script><p>Fish &amp; chips</p>
	<style>p{}</style><p>are   <em>tasty</em></p></div>`
	if got := Summarize(in); got != "Fish & chips are tasty..." {
		t.Errorf("Unexpected summary: %q", got)
	}
}

func TestSummarizeDoesNotSplitRunes(t *testing.T) {
	got := Summarize(strings.Repeat("é", 120))
	if !utf8.ValidString(got) {
		t.Errorf("Expected valid UTF-8, got: %q", got)
	}
}

func TestSummarizeTextKeepsAngleBrackets(t *testing.T) {
	if got := SummarizeText("if  x<y and <b> is\nset"); got != "if x<y and <b> is set..." {
		t.Errorf("Unexpected summary: %q", got)
	}
	if got := Summarize("if x<y and <b> is set"); strings.Contains(got, "<") {
		t.Errorf("Expected markup stripped by Summarize, got: %q", got)
	}
}
