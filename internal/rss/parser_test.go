package rss

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/bryan-buckman/rssbox/internal/model"
	"github.com/gorilla/feeds"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example</title>
    <link>https://example.com/</link>
    <description>Example feed</description>
    <item>
      <title>Newest</title>
      <link>https://example.com/3</link>
      <author>alice@example.com (Alice)</author>
      <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
      <category>go</category>
      <category>feeds</category>
      <description>&lt;p&gt;Hello &lt;b&gt;world&lt;/b&gt;&lt;/p&gt;</description>
    </item>
    <item>
      <title>No link</title>
      <description>dropped</description>
    </item>
    <item>
      <title></title>
      <link>https://example.com/untitled</link>
    </item>
    <item>
      <title>Oldest</title>
      <link>https://example.com/1</link>
    </item>
  </channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example Atom</title>
  <id>urn:example</id>
  <updated>2006-01-02T15:04:05Z</updated>
  <entry>
    <title>Second</title>
    <id>urn:2</id>
    <link href="https://example.com/a/2" rel="alternate"/>
    <link href="https://example.com/a/2/comments" rel="replies"/>
    <author><name>Bob</name></author>
    <author><name>Carol</name></author>
    <category term="x"/>
    <category term="y"/>
    <published>2006-01-02T15:04:05Z</published>
    <updated>2006-01-02T15:04:05Z</updated>
    <summary type="html">&lt;i&gt;Short&lt;/i&gt; summary</summary>
  </entry>
  <entry>
    <title>First</title>
    <id>urn:1</id>
    <link href="https://example.com/a/1"/>
    <updated>2006-01-01T15:04:05Z</updated>
    <summary>plain text</summary>
  </entry>
</feed>`

func TestParseRSS(t *testing.T) {
	entries, err := NewParser().Parse(model.FormatRSS, []byte(rssFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries after dropping incomplete items, got: %d", len(entries))
	}
	if entries[0].Title != "Oldest" || entries[1].Title != "Newest" {
		t.Errorf("Expected reversed document order, got: %s, %s", entries[0].Title, entries[1].Title)
	}

	newest := entries[1]
	if newest.URL != "https://example.com/3" {
		t.Errorf("Unexpected URL: %s", newest.URL)
	}
	if newest.Author != "alice@example.com (Alice)" {
		t.Errorf("Unexpected author: %s", newest.Author)
	}
	if newest.PubDate != "Mon, 02 Jan 2006 15:04:05 GMT" {
		t.Errorf("Expected publish date kept as string, got: %s", newest.PubDate)
	}
	if newest.Tags != "go,feeds" {
		t.Errorf("Unexpected tags: %s", newest.Tags)
	}
	if newest.Summary != "Hello world..." {
		t.Errorf("Unexpected summary: %q", newest.Summary)
	}
	if newest.ID != "" || newest.IsRead {
		t.Errorf("Expected parser to leave identity and read state unset, got: %+v", newest)
	}
}

func TestParseAtom(t *testing.T) {
	entries, err := NewParser().Parse(model.FormatAtom, []byte(atomFixture))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got: %d", len(entries))
	}
	second := entries[1]
	if second.URL != "https://example.com/a/2" {
		t.Errorf("Expected first link href, got: %s", second.URL)
	}
	if second.Author != "Bob|Carol" {
		t.Errorf("Expected authors joined with |, got: %s", second.Author)
	}
	if second.Tags != "x,y" {
		t.Errorf("Unexpected tags: %s", second.Tags)
	}
	if second.PubDate != "2006-01-02T15:04:05Z" {
		t.Errorf("Unexpected publish date: %s", second.PubDate)
	}
	if second.Summary != "Short summary..." {
		t.Errorf("Unexpected summary: %q", second.Summary)
	}
	if entries[0].Summary != "plain text..." {
		t.Errorf("Unexpected plain summary: %q", entries[0].Summary)
	}
}

func TestParseStrictHints(t *testing.T) {
	p := NewParser()
	if _, err := p.Parse(model.FormatRSS, []byte(atomFixture)); err == nil {
		t.Error("Expected RSS hint to reject an Atom document")
	}
	if _, err := p.Parse(model.FormatAtom, []byte(rssFixture)); err == nil {
		t.Error("Expected Atom hint to reject an RSS document")
	}
}

func TestParseUnrecognized(t *testing.T) {
	for _, body := range []string{"", "not xml at all", `{"json": true}`, "<html><body>hi</body></html>"} {
		_, err := NewParser().Parse(model.FormatAuto, []byte(body))
		if !errors.Is(err, ErrUnrecognizedFormat) {
			t.Errorf("Expected ErrUnrecognizedFormat for %q, got: %v", body, err)
		}
	}
}

func TestParseAutoMatchesExplicit(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	feed := &feeds.Feed{
		Title:       "Generated",
		Link:        &feeds.Link{Href: "https://gen.example.com/"},
		Description: "generated feed",
		Created:     now,
	}
	for i, title := range []string{"one", "two", "three"} {
		feed.Items = append(feed.Items, &feeds.Item{
			Title:       title,
			Link:        &feeds.Link{Href: "https://gen.example.com/" + title},
			Description: "<p>body of " + title + "</p>",
			Created:     now.Add(time.Duration(i) * time.Hour),
		})
	}

	rssDoc, err := feed.ToRss()
	if err != nil {
		t.Fatalf("ToRss failed: %v", err)
	}
	atomDoc, err := feed.ToAtom()
	if err != nil {
		t.Fatalf("ToAtom failed: %v", err)
	}

	p := NewParser()
	for _, tt := range []struct {
		name   string
		format model.FeedFormat
		doc    string
	}{
		{"rss", model.FormatRSS, rssDoc},
		{"atom", model.FormatAtom, atomDoc},
	} {
		t.Run(tt.name, func(t *testing.T) {
			explicit, err := p.Parse(tt.format, []byte(tt.doc))
			if err != nil {
				t.Fatalf("explicit parse failed: %v", err)
			}
			auto, err := p.Parse(model.FormatAuto, []byte(tt.doc))
			if err != nil {
				t.Fatalf("auto parse failed: %v", err)
			}
			if !reflect.DeepEqual(explicit, auto) {
				t.Errorf("auto result differs from explicit:\n%+v\n%+v", auto, explicit)
			}
			if len(auto) != 3 || auto[0].Title != "three" || auto[2].URL != "https://gen.example.com/one" {
				t.Errorf("Unexpected entries: %+v", auto)
			}
		})
	}
}

func TestParseAtomSummaryTypes(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Types</title>
  <entry>
    <title>Text</title>
    <link href="https://example.com/t/text"/>
    <summary type="text">if x&lt;y then swap</summary>
  </entry>
  <entry>
    <title>Default</title>
    <link href="https://example.com/t/default"/>
    <summary>a &lt;b&gt; c</summary>
  </entry>
  <entry>
    <title>HTML</title>
    <link href="https://example.com/t/html"/>
    <summary type="html">if x&lt;b&gt;y&lt;/b&gt; then swap</summary>
  </entry>
  <entry>
    <title>XHTML</title>
    <link href="https://example.com/t/xhtml"/>
    <summary type="xhtml"><div xmlns="http://www.w3.org/1999/xhtml"><p>rich <em>text</em></p></div></summary>
  </entry>
  <entry>
    <title>None</title>
    <link href="https://example.com/t/none"/>
    <content type="html">&lt;p&gt;ignored&lt;/p&gt;</content>
  </entry>
</feed>`

	entries, err := NewParser().Parse(model.FormatAuto, []byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := map[string]string{
		"Text":    "if x<y then swap...",
		"Default": "a <b> c...",
		"HTML":    "if xy then swap...",
		"XHTML":   "rich text...",
		"None":    "...",
	}
	if len(entries) != len(want) {
		t.Fatalf("Expected %d entries, got: %d", len(want), len(entries))
	}
	for _, e := range entries {
		if e.Summary != want[e.Title] {
			t.Errorf("%s: expected summary %q, got: %q", e.Title, want[e.Title], e.Summary)
		}
	}
}

func TestAtomSummaryTypesIgnoresNestedSummaries(t *testing.T) {
	doc := `<feed xmlns="http://www.w3.org/2005/Atom">
  <entry><source><summary type="html">x</summary></source><summary type="TEXT">a</summary></entry>
  <entry><title>b</title></entry>
</feed>`
	got := atomSummaryTypes([]byte(doc))
	if len(got) != 2 || got[0] != "text" || got[1] != "" {
		t.Errorf("Expected [text \"\"], got: %q", got)
	}
}
