/*
Copyright 2025 The Fedlet Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package correlation tracks the IDs of requests a service provider has
// sent but not yet seen answered. A response names the request it
// answers in InResponseTo, and the named entry can be claimed exactly
// once, which is what makes replayed responses detectable.
//
// Entries are grouped into buckets, one per browser session, so one
// user cannot claim requests issued for another. Buckets are bounded
// and entries expire, so abandoned logins do not accumulate.
package correlation

import (
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/vijayoommen/Fedlet/lib/defaults"
)

// Kind separates authentication correlations from logout ones, a
// request ID issued for one exchange cannot satisfy the other.
type Kind string

const (
	// KindAuthn marks IDs of authentication requests.
	KindAuthn Kind = "authn"
	// KindLogout marks IDs of logout requests.
	KindLogout Kind = "logout"
)

// CacheConfig configures a Cache.
type CacheConfig struct {
	// TTL bounds how long an unanswered request stays claimable.
	// Defaults to ten minutes.
	TTL time.Duration
	// MaxPerBucket caps the outstanding requests tracked per bucket,
	// oldest evicted first. Defaults to 32.
	MaxPerBucket int
	// Clock drives entry expiry. Defaults to the wall clock.
	Clock clockwork.Clock
}

// CheckAndSetDefaults validates the config and fills in defaults.
func (c *CacheConfig) CheckAndSetDefaults() error {
	if c.TTL < 0 {
		return trace.BadParameter("negative TTL")
	}
	if c.TTL == 0 {
		c.TTL = defaults.CorrelationTTL
	}
	if c.MaxPerBucket < 0 {
		return trace.BadParameter("negative MaxPerBucket")
	}
	if c.MaxPerBucket == 0 {
		c.MaxPerBucket = defaults.CorrelationMaxPerBucket
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

type entry struct {
	id      string
	kind    Kind
	expires time.Time
}

// bucket holds one session's live entries in insertion order, oldest
// first. Entries share one TTL, so expiry order matches insertion
// order and expired entries purge from the front.
type bucket struct {
	mu sync.Mutex
	// dropped is set once the bucket has been removed from the map.
	// Writers that find it set must retry against a fresh bucket.
	dropped bool
	entries []entry
}

// Cache is an in-memory correlation cache, safe for concurrent use.
// Operations on different buckets do not contend, the map lock is only
// held to look buckets up.
type Cache struct {
	cfg CacheConfig

	mu      sync.RWMutex
	buckets map[string]*bucket
}

// NewCache returns an empty correlation cache.
func NewCache(cfg CacheConfig) (*Cache, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Cache{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
	}, nil
}

// Add records an outstanding request ID in the bucket. When the bucket
// is full the oldest entry is evicted.
func (c *Cache) Add(key, id string, kind Kind) {
	now := c.cfg.Clock.Now()
	add := entry{id: id, kind: kind, expires: now.Add(c.cfg.TTL)}
	for {
		b := c.getOrCreate(key)
		b.mu.Lock()
		if b.dropped {
			b.mu.Unlock()
			continue
		}
		b.entries = purge(b.entries, now)
		b.entries = append(b.entries, add)
		if len(b.entries) > c.cfg.MaxPerBucket {
			b.entries = b.entries[len(b.entries)-c.cfg.MaxPerBucket:]
		}
		b.mu.Unlock()
		return
	}
}

// Claim removes the entry and reports whether it was live. A second
// claim of the same entry reports false. An entry recorded under a
// different kind is left in place and not claimable.
func (c *Cache) Claim(key, id string, kind Kind) bool {
	b := c.get(key)
	if b == nil {
		return false
	}
	now := c.cfg.Clock.Now()
	b.mu.Lock()
	b.entries = purge(b.entries, now)
	claimed := false
	for i, e := range b.entries {
		if e.id == id && e.kind == kind {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			claimed = true
			break
		}
	}
	empty := len(b.entries) == 0
	b.mu.Unlock()
	if empty {
		c.drop(key, b)
	}
	return claimed
}

// Contains reports whether the entry is live without claiming it.
func (c *Cache) Contains(key, id string, kind Kind) bool {
	b := c.get(key)
	if b == nil {
		return false
	}
	now := c.cfg.Clock.Now()
	b.mu.Lock()
	b.entries = purge(b.entries, now)
	found := false
	for _, e := range b.entries {
		if e.id == id && e.kind == kind {
			found = true
			break
		}
	}
	empty := len(b.entries) == 0
	b.mu.Unlock()
	if empty {
		c.drop(key, b)
	}
	return found
}

func (c *Cache) get(key string) *bucket {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buckets[key]
}

func (c *Cache) getOrCreate(key string) *bucket {
	c.mu.RLock()
	b := c.buckets[key]
	c.mu.RUnlock()
	if b != nil {
		return b
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if b := c.buckets[key]; b != nil {
		return b
	}
	b = &bucket{}
	c.buckets[key] = b
	return b
}

// drop removes the bucket from the map so session keys do not
// accumulate. Lock order is map before bucket. Emptiness is rechecked
// under both locks, a concurrent Add either lands before the recheck
// or observes the dropped flag and retries.
func (c *Cache) drop(key string, b *bucket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buckets[key] != b {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		b.dropped = true
		delete(c.buckets, key)
	}
}

// purge drops expired entries from the front of the slice.
func purge(entries []entry, now time.Time) []entry {
	for len(entries) > 0 && !now.Before(entries[0].expires) {
		entries = entries[1:]
	}
	return entries
}
