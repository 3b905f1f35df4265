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

package waiter

import "sync"

// EventMask is a bitset of readiness events a waiter is interested in. Kept
// as a plain uint32 alias rather than importing pollcache, since waiter sits
// below pollcache in the dependency tree (spec §2: waiter list is a leaf).
type EventMask uint32

const (
	EventRead EventMask = 1 << iota
	EventWrite
	EventRdHup
	EventWrHup
	EventInvalid
)

// ErrorMask is the set of bits that, per spec §4.5, wake every waiter on a
// list irrespective of the mask it registered with.
const ErrorMask = EventRdHup | EventWrHup | EventInvalid

// node is an element of a List. It is never exposed outside this package;
// callers hold onto the *Node handle returned by Add for Remove.
type node struct {
	worldID uint64
	mask    EventMask
	prev    *node
	next    *node
	list    *List // nil once removed
}

// Node is the opaque handle returned by List.Add.
type Node struct{ n *node }

// List is a doubly-linked, mutex-protected set of waiting worlds. The zero
// value is ready to use.
type List struct {
	mu   sync.Mutex
	head *node
	tail *node
	len  int
}

// Add registers worldID as waiting for any event in mask and returns a
// handle for Remove. Safe to call while other goroutines Wake concurrently.
func (l *List) Add(worldID uint64, mask EventMask) *Node {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := &node{worldID: worldID, mask: mask, list: l}
	if l.tail == nil {
		l.head, l.tail = n, n
	} else {
		n.prev = l.tail
		l.tail.next = n
		l.tail = n
	}
	l.len++
	return &Node{n: n}
}

// Remove unlinks n from its list. Idempotent: removing an already-removed
// node (or a nil Node) is a no-op, since a wake and a timeout can race to
// remove the same node.
func (l *List) Remove(h *Node) {
	if h == nil || h.n == nil || h.n.list == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n := h.n
	if n.list != l {
		// Already moved to another list's bookkeeping or already removed.
		return
	}

	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next, n.list = nil, nil, nil
	l.len--
	h.n = nil
}

// Len reports the number of currently registered waiters.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.len
}

// Wake removes and returns the world ids of every waiter whose mask
// intersects events, or - if events contains any ErrorMask bit - every
// waiter on the list regardless of its mask (spec §4.5: "an error-mask bit
// wakes all waiters irrespective of their mask").
func (l *List) Wake(events EventMask) []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	wakeAll := events&ErrorMask != 0
	var woken []uint64

	n := l.head
	for n != nil {
		next := n.next
		if wakeAll || n.mask&events != 0 {
			l.unlinkLocked(n)
			woken = append(woken, n.worldID)
		}
		n = next
	}
	return woken
}

// WakeAll removes every waiter and returns their world ids, for teardown
// paths where no particular event mask applies.
func (l *List) WakeAll() []uint64 {
	return l.Wake(EventInvalid)
}

func (l *List) unlinkLocked(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next, n.list = nil, nil, nil
	l.len--
}
