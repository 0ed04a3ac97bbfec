// Package model defines shared data structures.
package model

import (
	"strings"
	"time"
)

// FavoritesID is the reserved subscription id of the favorites collection.
const FavoritesID = "favorites"

// FeedFormat is the parsing hint stored with a subscription.
type FeedFormat string

const (
	FormatAuto FeedFormat = "auto"
	FormatRSS  FeedFormat = "rss"
	FormatAtom FeedFormat = "atom"
)

// ParseFeedFormat maps a user supplied hint to a FeedFormat.
// Unknown values become FormatAuto.
func ParseFeedFormat(s string) FeedFormat {
	switch FeedFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatRSS:
		return FormatRSS
	case FormatAtom:
		return FormatAtom
	default:
		return FormatAuto
	}
}

// ProxyKind selects the proxy a subscription is fetched through.
type ProxyKind string

const (
	ProxyNone   ProxyKind = "none"
	ProxyHTTP   ProxyKind = "http"
	ProxySocks5 ProxyKind = "socks5"
)

// ParseProxyKind maps a user supplied selection to a ProxyKind.
// Unknown values become ProxyNone.
func ParseProxyKind(s string) ProxyKind {
	switch ProxyKind(strings.ToLower(strings.TrimSpace(s))) {
	case ProxyHTTP:
		return ProxyHTTP
	case ProxySocks5:
		return ProxySocks5
	default:
		return ProxyNone
	}
}

// SubscriptionConfig is the persisted part of a subscription.
type SubscriptionConfig struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	Format       FeedFormat `json:"format"`
	Proxy        ProxyKind  `json:"proxy"`
	Favorite     bool       `json:"favorite"`
	LastSyncedAt time.Time  `json:"last_synced_at"`
}

// Subscription is a configured feed source with its materialized entries.
// Entries are ordered newest first.
type Subscription struct {
	SubscriptionConfig
	UnreadCount int     `json:"unread_count"`
	Entries     []Entry `json:"entries,omitempty"`
}

// SyncView returns the fields the fetcher needs.
func (s SubscriptionConfig) SyncView() SyncView {
	return SyncView{
		ID:     s.ID,
		URL:    s.URL,
		Format: s.Format,
		Proxy:  s.Proxy,
	}
}

// SyncView is the read-only projection of a subscription handed to fetch tasks.
type SyncView struct {
	ID     string
	URL    string
	Format FeedFormat
	Proxy  ProxyKind
}

// Entry is one normalized feed item.
type Entry struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription_id"`
	URL            string `json:"url"`
	Title          string `json:"title"`
	PubDate        string `json:"pub_date"`
	Tags           string `json:"tags"`
	Author         string `json:"author"`
	Summary        string `json:"summary"`
	IsRead         bool   `json:"is_read"`
}

// CountUnread returns the number of entries with IsRead unset.
func CountUnread(entries []Entry) int {
	n := 0
	for _, e := range entries {
		if !e.IsRead {
			n++
		}
	}
	return n
}
