package core

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 2048

// metaCache is a bounded path->metadata cache. The worker primes it on
// startup, adds entries on upsert and indexing, moves them on note and
// folder renames, and drops them on remove, prefix remove and rebuild;
// Engine.GetNoteMeta reads it before falling back to the database
// (SPEC_FULL.md §4.6).
type metaCache struct {
	lru *lru.Cache[string, NoteMeta]
}

func newMetaCache(size int) (*metaCache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[string, NoteMeta](size)
	if err != nil {
		return nil, err
	}
	return &metaCache{lru: c}, nil
}

func (c *metaCache) get(path string) (NoteMeta, bool) {
	return c.lru.Get(path)
}

func (c *metaCache) put(path string, meta NoteMeta) {
	c.lru.Add(path, meta)
}

func (c *metaCache) remove(path string) {
	c.lru.Remove(path)
}

func (c *metaCache) rename(oldPath, newPath string) {
	if meta, ok := c.lru.Get(oldPath); ok {
		c.lru.Remove(oldPath)
		meta.Path = newPath
		c.lru.Add(newPath, meta)
	}
}

func (c *metaCache) purgePrefix(prefix string) {
	for _, key := range c.lru.Keys() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			c.lru.Remove(key)
		}
	}
}

func (c *metaCache) purgeAll() {
	c.lru.Purge()
}
