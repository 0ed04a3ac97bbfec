package model

import "testing"

func TestParseFeedFormat(t *testing.T) {
	tests := []struct {
		in   string
		want FeedFormat
	}{
		{"rss", FormatRSS},
		{"ATOM", FormatAtom},
		{" Auto ", FormatAuto},
		{"json", FormatAuto},
		{"", FormatAuto},
	}
	for _, tt := range tests {
		if got := ParseFeedFormat(tt.in); got != tt.want {
			t.Errorf("ParseFeedFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseProxyKind(t *testing.T) {
	tests := []struct {
		in   string
		want ProxyKind
	}{
		{"http", ProxyHTTP},
		{"SOCKS5", ProxySocks5},
		{"none", ProxyNone},
		{"ftp", ProxyNone},
	}
	for _, tt := range tests {
		if got := ParseProxyKind(tt.in); got != tt.want {
			t.Errorf("ParseProxyKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCountUnread(t *testing.T) {
	entries := []Entry{{IsRead: true}, {}, {}, {IsRead: true}}
	if got := CountUnread(entries); got != 2 {
		t.Errorf("Expected 2 unread entries, got: %d", got)
	}
	if got := CountUnread(nil); got != 0 {
		t.Errorf("Expected 0 unread entries for nil slice, got: %d", got)
	}
}
