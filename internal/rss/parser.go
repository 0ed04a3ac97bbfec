// Package rss provides feed fetching and parsing.
package rss

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/bryan-buckman/rssbox/internal/model"
	"github.com/mmcdole/gofeed/atom"
	gorss "github.com/mmcdole/gofeed/rss"
	xpp "github.com/mmcdole/goxpp"
	"golang.org/x/net/html/charset"
)

// ErrUnrecognizedFormat is returned when a body is neither RSS nor Atom.
var ErrUnrecognizedFormat = errors.New("unrecognized feed format")

// Parser turns raw feed documents into entries.
// gofeed parsers keep per-document state, so one is created per call.
type Parser struct{}

// NewParser creates a parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes data according to format. FormatAuto tries RSS and then Atom.
// The returned entries are in reverse document order, oldest first for
// feeds that list newest items first.
func (p *Parser) Parse(format model.FeedFormat, data []byte) ([]model.Entry, error) {
	var (
		entries []model.Entry
		err     error
	)
	switch format {
	case model.FormatRSS:
		entries, err = parseRSS(data)
		if err != nil {
			return nil, fmt.Errorf("parse rss: %w", err)
		}
	case model.FormatAtom:
		entries, err = parseAtom(data)
		if err != nil {
			return nil, fmt.Errorf("parse atom: %w", err)
		}
	default:
		var rssErr, atomErr error
		entries, rssErr = parseRSS(data)
		if rssErr != nil {
			entries, atomErr = parseAtom(data)
			if atomErr != nil {
				return nil, fmt.Errorf("%w: rss: %v; atom: %v", ErrUnrecognizedFormat, rssErr, atomErr)
			}
		}
	}

	reverse(entries)
	return entries, nil
}

func parseRSS(data []byte) ([]model.Entry, error) {
	feed, err := (&gorss.Parser{}).Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	entries := make([]model.Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		tags := make([]string, 0, len(item.Categories))
		for _, c := range item.Categories {
			if c != nil && c.Value != "" {
				tags = append(tags, c.Value)
			}
		}
		e, ok := newEntry(item.Link, item.Title, item.Author, item.PubDate, tags, Summarize(item.Description))
		if ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func parseAtom(data []byte) ([]model.Entry, error) {
	feed, err := (&atom.Parser{}).Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	summaryTypes := atomSummaryTypes(data)
	entries := make([]model.Entry, 0, len(feed.Entries))
	for i, item := range feed.Entries {
		if item == nil {
			continue
		}
		var summaryType string
		if i < len(summaryTypes) {
			summaryType = summaryTypes[i]
		}
		var link string
		for _, l := range item.Links {
			if l != nil {
				link = l.Href
				break
			}
		}
		authors := make([]string, 0, len(item.Authors))
		for _, a := range item.Authors {
			if a != nil {
				authors = append(authors, a.Name)
			}
		}
		tags := make([]string, 0, len(item.Categories))
		for _, c := range item.Categories {
			if c != nil && c.Term != "" {
				tags = append(tags, c.Term)
			}
		}
		summary := SummarizeText(item.Summary)
		if isMarkupType(summaryType) {
			summary = Summarize(item.Summary)
		}
		e, ok := newEntry(link, item.Title, strings.Join(authors, "|"), item.Published, tags, summary)
		if ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// atomSummaryTypes returns the lowercased type attribute of the summary of
// every entry, in document order. An entry without a summary gets "".
// The atom parser decodes summaries without keeping their type.
func atomSummaryTypes(data []byte) []string {
	p := xpp.NewXMLPullParser(bytes.NewReader(data), false, charset.NewReaderLabel)
	var types []string
	depth := 0 // nesting inside the current entry
	for {
		event, err := p.Next()
		if err != nil || event == xpp.EndDocument {
			return types
		}
		switch event {
		case xpp.StartTag:
			switch {
			case depth == 0 && strings.EqualFold(p.Name, "entry"):
				types = append(types, "")
				depth = 1
			case depth > 0:
				if depth == 1 && strings.EqualFold(p.Name, "summary") {
					types[len(types)-1] = strings.ToLower(strings.TrimSpace(p.Attribute("type")))
				}
				depth++
			}
		case xpp.EndTag:
			if depth > 0 {
				depth--
			}
		}
	}
}

// isMarkupType reports whether an Atom text construct of type t holds markup.
// Absent and "text" types are plain text.
func isMarkupType(t string) bool {
	return t == "html" || strings.Contains(t, "xhtml")
}

// newEntry reports false for items without a link or a title.
// summary is used as given.
func newEntry(link, title, author, pubDate string, tags []string, summary string) (model.Entry, bool) {
	link = strings.TrimSpace(link)
	title = strings.TrimSpace(title)
	if link == "" || title == "" {
		return model.Entry{}, false
	}
	return model.Entry{
		URL:     link,
		Title:   title,
		Author:  author,
		PubDate: pubDate,
		Tags:    strings.Join(tags, ","),
		Summary: summary,
	}, true
}

func reverse(entries []model.Entry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
