// Package trash keeps the set of URL hashes of entries the user removed.
package trash

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// hashSize is the accounted size of one stored hash in bytes.
const hashSize = 32

// Hash returns the removed-item key of an entry URL.
func Hash(url string) string {
	sum := md5.Sum([]byte(url))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Store is the durable side of the registry.
type Store interface {
	AddTrash(ctx context.Context, hashes ...string) error
	ListTrash(ctx context.Context) ([]string, error)
	ClearTrash(ctx context.Context) error
}

// Registry is an in-memory hash set mirrored to a Store.
// Lookups take a read lock so dedup checks run concurrently.
type Registry struct {
	mu     sync.RWMutex
	hashes map[string]struct{}
	store  Store
}

// Load builds a registry from the hashes already in store.
func Load(ctx context.Context, store Store) (*Registry, error) {
	hashes, err := store.ListTrash(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trash: %w", err)
	}
	r := &Registry{
		hashes: make(map[string]struct{}, len(hashes)),
		store:  store,
	}
	for _, h := range hashes {
		r.hashes[h] = struct{}{}
	}
	return r, nil
}

// Contains reports whether hash was registered.
func (r *Registry) Contains(hash string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.hashes[hash]
	return ok
}

// AddURLs registers the hashes of urls. The in-memory set is updated even
// when the store write fails; the error is returned for the caller to log.
func (r *Registry) AddURLs(ctx context.Context, urls ...string) error {
	if len(urls) == 0 {
		return nil
	}
	hashes := make([]string, len(urls))
	for i, u := range urls {
		hashes[i] = Hash(u)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range hashes {
		r.hashes[h] = struct{}{}
	}
	if err := r.store.AddTrash(ctx, hashes...); err != nil {
		return fmt.Errorf("persist trash: %w", err)
	}
	return nil
}

// Len returns the number of registered hashes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hashes)
}

// Size returns the accounted byte size of the registry.
func (r *Registry) Size() uint64 {
	return uint64(r.Len()) * hashSize
}

// SizeString returns Size in human readable form.
func (r *Registry) SizeString() string {
	return humanize.Bytes(r.Size())
}

// Clear empties the registry and its store.
func (r *Registry) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.ClearTrash(ctx); err != nil {
		return fmt.Errorf("clear trash: %w", err)
	}
	r.hashes = make(map[string]struct{})
	return nil
}
