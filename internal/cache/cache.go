// Package cache stores successful pipeline results keyed by a fingerprint of
// the component content and the output-affecting configuration.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize bounds the in-memory front.
const DefaultSize = 256

// Fingerprint derives the cache key of a component under a configuration.
func Fingerprint(contentHash, configHash string) string {
	h := sha256.New()
	h.Write([]byte(contentHash))
	h.Write([]byte{0})
	h.Write([]byte(configHash))
	return hex.EncodeToString(h.Sum(nil))
}

// Backend is the durable side of the cache. *storage.Store implements it.
type Backend interface {
	GetCacheEntry(ctx context.Context, fingerprint string) ([]byte, bool, error)
	PutCacheEntry(ctx context.Context, fingerprint, componentID string, result []byte) (bool, error)
}

// Cache is an LRU in front of a Backend. Entries are insert-only: the first
// value stored under a key is the one every later Get sees.
type Cache struct {
	backend Backend
	front   *lru.Cache[string, []byte]
}

// New returns a Cache with an in-memory front of size entries.
func New(backend Backend, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	front, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &Cache{backend: backend, front: front}, nil
}

// Get returns the stored bytes for key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if b, ok := c.front.Get(key); ok {
		return b, true, nil
	}
	b, ok, err := c.backend.GetCacheEntry(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	c.front.Add(key, b)
	return b, true, nil
}

// Put stores value under key unless the key is already present.
func (c *Cache) Put(ctx context.Context, key, componentID string, value []byte) error {
	inserted, err := c.backend.PutCacheEntry(ctx, key, componentID, value)
	if err != nil {
		return err
	}
	if !inserted {
		slog.Debug("cache entry already present", "fingerprint", key, "component_id", componentID)
		// Reload so the front mirrors the durable first write.
		c.front.Remove(key)
		return nil
	}
	c.front.Add(key, value)
	return nil
}

// Len reports the number of entries held in memory.
func (c *Cache) Len() int { return c.front.Len() }
