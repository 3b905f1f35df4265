/*
 * MIT License
 *
 * Copyright (c) 2026 nexuskernel contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package pollcache

import (
	"sync"

	"github.com/nexuskernel/userworld/waiter"
)

// EventMask mirrors waiter.EventMask; re-declared here as the type callers
// outside this dependency layer are expected to use.
type EventMask = waiter.EventMask

const (
	EventRead    = waiter.EventRead
	EventWrite   = waiter.EventWrite
	EventRdHup   = waiter.EventRdHup
	EventWrHup   = waiter.EventWrHup
	EventInvalid = waiter.EventInvalid
)

// Cache is the shared poll-state snapshot for one or more proxied Objects.
// Multiple objects share a single Cache (refCount > 1) when the remote
// exposes one pollable entity through several local handles (spec §3).
type Cache struct {
	mu         sync.Mutex
	enabled    bool
	refCount   int32
	events     EventMask
	generation uint32
	waiters    waiter.List
}

// New returns a disabled, unshared Cache ready for a single owner to Enable
// once the proxy handshake confirms the remote object is pollable.
func New() *Cache {
	return &Cache{refCount: 1}
}

// Enable marks the cache as backed by a real remote pollable entity. Caches
// for non-pollable proxy variants (spec §9: proxied pipes/chars default to
// IllegalSeek and report not-pollable) are left disabled and Update is a
// no-op on them.
func (c *Cache) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
}

// Retain increments the sharing refcount and returns c, so call sites can
// write `h.cache = shared.Retain()`.
func (c *Cache) Retain() *Cache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refCount++
	return c
}

// Release decrements the sharing refcount. The caller is responsible for no
// longer dereferencing c once Release has been called as many times as
// Retain plus the initial implicit reference from New.
func (c *Cache) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refCount--
}

// RefCount reports the current sharing count, for tests and diagnostics.
func (c *Cache) RefCount() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refCount
}

// Update merges a generation-tagged event snapshot from the proxy (spec
// §4.5). An update whose generation is not strictly newer modulo wraparound
// is dropped. Waiters whose mask intersects the new events wake; an
// error-mask bit wakes every waiter regardless of mask. Returns the world
// ids that were woken, or nil if the update was stale or the cache is
// disabled.
func (c *Cache) Update(generation uint32, events EventMask) []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return nil
	}

	// Modular comparison: treat the difference as a signed 32-bit delta so
	// wraparound of the generation counter does not make an old update look
	// newer than a recent one (spec §3, §8 invariant).
	if delta := int32(generation - c.generation); delta <= 0 {
		return nil
	}

	c.generation = generation
	c.events = events
	woken := c.waiters.Wake(events)
	if woken == nil {
		woken = []uint64{}
	}
	return woken
}

// Snapshot returns the cached events and the generation they were tagged
// with, without blocking on the proxy.
func (c *Cache) Snapshot() (EventMask, uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events, c.generation
}

// Wait registers worldID as interested in mask and returns a handle for
// Cancel. Used by a blocking poll() that has no faster local answer and must
// wait for the next proxy-piggybacked or async-notify update.
func (c *Cache) Wait(worldID uint64, mask EventMask) *waiter.Node {
	return c.waiters.Add(worldID, mask)
}

// Cancel removes a waiter registered via Wait (e.g. on timeout).
func (c *Cache) Cancel(n *waiter.Node) {
	c.waiters.Remove(n)
}
