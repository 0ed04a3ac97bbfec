package rss

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxSummaryChars bounds summaries made of single-byte characters.
	MaxSummaryChars = 100
	// MaxWideSummaryChars bounds summaries containing multi-byte characters.
	MaxWideSummaryChars = 50
	// Ellipsis is appended to every summary.
	Ellipsis = "..."
)

// Summarize strips markup from s and truncates the text to the summary limit.
// The ellipsis is always appended.
func Summarize(s string) string {
	return SummarizeText(stripHTML(s))
}

// SummarizeText is Summarize for plain text: s is never parsed as markup.
func SummarizeText(s string) string {
	text := norm.NFC.String(s)
	text = strings.Join(strings.Fields(text), " ")

	limit := MaxSummaryChars
	if len(text) > utf8.RuneCountInString(text) {
		limit = MaxWideSummaryChars
	}
	return truncate(text, limit) + Ellipsis
}

func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style").Remove()
	return doc.Text()
}

func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
