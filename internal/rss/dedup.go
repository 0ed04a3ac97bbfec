package rss

import (
	"github.com/bryan-buckman/rssbox/internal/model"
	"github.com/bryan-buckman/rssbox/internal/trash"
)

// RemovedSet answers membership of removed-item hashes.
type RemovedSet interface {
	Contains(hash string) bool
}

// FilterRemoved drops entries whose URL hash is in removed.
// The input slice is not modified.
func FilterRemoved(entries []model.Entry, removed RemovedSet) []model.Entry {
	if removed == nil {
		return entries
	}
	kept := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		if removed.Contains(trash.Hash(e.URL)) {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}
