// Package cache holds the last synchronized value of each selection kind.
package cache

import (
	"github.com/berrythewa/clipbridge/internal/types"
)

// ContentCache is owned by a single goroutine (the coordinator) and does no locking.
type ContentCache struct {
	entries map[types.SelectionKind]*types.ClipboardContent
}

func New() *ContentCache {
	return &ContentCache{
		entries: make(map[types.SelectionKind]*types.ClipboardContent, len(types.Kinds)),
	}
}

// Get returns the cached content for kind and whether an entry exists.
func (c *ContentCache) Get(kind types.SelectionKind) (*types.ClipboardContent, bool) {
	content, ok := c.entries[kind]
	return content, ok
}

// Set records content as the current value of kind.
func (c *ContentCache) Set(kind types.SelectionKind, content *types.ClipboardContent) {
	c.entries[kind] = content
}

// Matches reports whether content equals the entry for kind. A missing entry
// never matches, so the first observation of a kind always propagates.
func (c *ContentCache) Matches(kind types.SelectionKind, content *types.ClipboardContent) bool {
	current, ok := c.entries[kind]
	if !ok {
		return false
	}
	return current.Equal(content)
}
