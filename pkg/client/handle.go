package client

import (
	"time"

	"github.com/example/ext2fs/pkg/api"
)

// AttrCache provides a cache for file attributes keyed by file handle
type AttrCache struct {
	attrs *ttlCache[string, *api.FileAttributes]
}

// NewAttrCache creates a new attributes cache
func NewAttrCache(maxSize int, ttl time.Duration) *AttrCache {
	return &AttrCache{attrs: newTTLCache[string, *api.FileAttributes](maxSize, ttl)}
}

// StoreHandleAttrs stores attributes for a handle
func (c *AttrCache) StoreHandleAttrs(handle []byte, attrs *api.FileAttributes) {
	if attrs == nil {
		return
	}
	c.attrs.put(string(handle), attrs)
}

// GetHandleAttrs retrieves attributes for a handle
func (c *AttrCache) GetHandleAttrs(handle []byte) (*api.FileAttributes, bool) {
	return c.attrs.get(string(handle))
}

// Invalidate drops the attributes of one handle
func (c *AttrCache) Invalidate(handle []byte) {
	c.attrs.remove(string(handle))
}

// Clear drops every entry
func (c *AttrCache) Clear() {
	c.attrs.clear()
}

// SetTTL changes the lifetime of entries stored from now on
func (c *AttrCache) SetTTL(ttl time.Duration) {
	c.attrs.setTTL(ttl)
}
