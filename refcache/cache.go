// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package refcache provides a canonicalizing cache of shared payloads.
//
// The cache indexes payloads by key through weak handles, so an entry never
// keeps its payload alive by itself: while anyone owns a payload, Get returns
// that same payload; once the last owner lets go the entry expires. To
// avoid rebuilding hot payloads the instant their last user returns them, a
// bounded LRU window additionally holds one strong owner for the most
// recently used keys.
//
// Example:
//
//	c, _ := refcache.New[string, Template](64)
//	t, err := c.GetOrCreate("index", func(t *Template) error {
//		return t.Parse("index.html")
//	})
//	if err != nil { ... }
//	defer t.Reset()
package refcache

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/golang-lru/simplelru"

	"github.com/kolkov/sharedref/shared"
)

// Stats are cumulative cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64 // strong owners dropped from the LRU window
	Expired   uint64 // weak entries found or pruned after their payload died
}

// Cache maps keys to shared payloads. It is safe for concurrent use.
//
// Every handle the cache returns is a new owner; callers Reset it when
// done.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*shared.Weak[V]
	recent  *simplelru.LRU // K → *shared.Shared[V], guarded by mu

	// Handles dropped under mu, released by unlock. Releasing may run a
	// payload destructor, which must not run with mu held.
	dropStrong []*shared.Shared[V]
	dropWeak   []*shared.Weak[V]

	hits, misses, evictions, expired atomic.Uint64
}

// New creates a cache whose LRU window keeps the size most recently used
// payloads alive.
func New[K comparable, V any](size int) (*Cache[K, V], error) {
	c := &Cache[K, V]{entries: make(map[K]*shared.Weak[V])}
	// The callback runs synchronously for Add, Remove and Purge, always
	// under mu.
	recent, err := simplelru.NewLRU(size, func(_, value interface{}) {
		c.dropStrong = append(c.dropStrong, value.(*shared.Shared[V]))
	})
	if err != nil {
		return nil, errors.Wrapf(err, "refcache: window size %d", size)
	}
	c.recent = recent
	return c, nil
}

// Get returns a new owner of the payload cached under k, or false if there
// is none or it has expired.
func (c *Cache[K, V]) Get(k K) (*shared.Shared[V], bool) {
	c.mu.Lock()
	defer c.unlock()
	return c.get(k)
}

// GetOrCreate returns the payload cached under k, constructing it with init
// if there is none. init runs without the cache lock held; if two callers
// race, both construct but only the first insert wins and both receive it.
//
// Construction errors are returned as from shared.MakeWith and leave the
// cache unchanged.
func (c *Cache[K, V]) GetOrCreate(k K, init func(*V) error, opts ...shared.Option) (*shared.Shared[V], error) {
	if s, ok := c.Get(k); ok {
		return s, nil
	}

	created, err := shared.MakeWith(init, opts...)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.unlock()
	if s, ok := c.peek(k); ok {
		c.dropStrong = append(c.dropStrong, created)
		c.hit(k, s)
		return s, nil
	}
	c.insert(k, created.Clone())
	return created, nil
}

// Put caches s under k, replacing any previous entry. The cache takes its
// own references; the caller keeps ownership of s. Putting an empty handle
// removes k.
func (c *Cache[K, V]) Put(k K, s *shared.Shared[V]) {
	c.mu.Lock()
	defer c.unlock()
	if !s.Valid() {
		c.remove(k)
		return
	}
	c.insert(k, s.Clone())
}

// Remove drops k from the cache. Owners handed out earlier stay valid.
func (c *Cache[K, V]) Remove(k K) {
	c.mu.Lock()
	defer c.unlock()
	c.remove(k)
}

// Prune drops entries whose payload has expired and returns how many were
// dropped.
func (c *Cache[K, V]) Prune() int {
	c.mu.Lock()
	defer c.unlock()
	n := 0
	for k, w := range c.entries {
		if w.Expired() {
			delete(c.entries, k)
			c.dropWeak = append(c.dropWeak, w)
			n++
		}
	}
	c.expired.Add(uint64(n))
	return n
}

// Len returns the number of entries, including expired ones not yet pruned.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every entry and the whole LRU window.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.unlock()
	c.recent.Purge()
	for k, w := range c.entries {
		delete(c.entries, k)
		c.dropWeak = append(c.dropWeak, w)
	}
}

// Stats returns cumulative counters.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Expired:   c.expired.Load(),
	}
}

// get looks k up and refreshes its LRU slot. Caller holds mu.
func (c *Cache[K, V]) get(k K) (*shared.Shared[V], bool) {
	s, ok := c.peek(k)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hit(k, s)
	return s, true
}

// hit counts a hit on k and refreshes its LRU slot, readmitting s if the
// window dropped it. Caller holds mu.
func (c *Cache[K, V]) hit(k K, s *shared.Shared[V]) {
	c.hits.Add(1)
	if _, inWindow := c.recent.Get(k); !inWindow {
		c.admit(k, s.Clone())
	}
}

// peek promotes the entry for k without touching the LRU. Expired entries
// are dropped. Caller holds mu.
func (c *Cache[K, V]) peek(k K) (*shared.Shared[V], bool) {
	w, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	s := w.Lock()
	if !s.Valid() {
		delete(c.entries, k)
		c.dropWeak = append(c.dropWeak, w)
		c.expired.Add(1)
		return nil, false
	}
	return s, true
}

// insert indexes owner under k and moves it into the LRU window, which
// takes over that ownership. Caller holds mu.
func (c *Cache[K, V]) insert(k K, owner *shared.Shared[V]) {
	if old, ok := c.entries[k]; ok {
		c.dropWeak = append(c.dropWeak, old)
	}
	c.entries[k] = owner.Weak()

	// Add does not report a replaced value to the eviction callback.
	if old, ok := c.recent.Peek(k); ok {
		c.dropStrong = append(c.dropStrong, old.(*shared.Shared[V]))
	}
	c.admit(k, owner)
}

// admit adds owner to the LRU window. Caller holds mu.
func (c *Cache[K, V]) admit(k K, owner *shared.Shared[V]) {
	if c.recent.Add(k, owner) {
		c.evictions.Add(1)
	}
}

// remove drops k from both the index and the window; the window's owner
// reaches dropStrong through the eviction callback. Caller holds mu.
func (c *Cache[K, V]) remove(k K) {
	if w, ok := c.entries[k]; ok {
		delete(c.entries, k)
		c.dropWeak = append(c.dropWeak, w)
	}
	c.recent.Remove(k)
}

// unlock releases mu, then the handles dropped while it was held.
func (c *Cache[K, V]) unlock() {
	strong, weak := c.dropStrong, c.dropWeak
	c.dropStrong, c.dropWeak = nil, nil
	c.mu.Unlock()
	for _, s := range strong {
		s.Reset()
	}
	for _, w := range weak {
		w.Reset()
	}
}
