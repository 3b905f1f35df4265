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

package unixsocket

import (
	"sync"

	"github.com/nexuskernel/userworld/objerr"
)

// Namespace is the process-wide unix-socket name table: one lock, one map.
// The zero value is not ready to use - construct via NewNamespace or reach
// it through Global.
type Namespace struct {
	mu      sync.Mutex
	entries map[string]*Server
}

// NewNamespace allocates an empty namespace. Tests construct their own so
// cases never interfere with each other; a running daemon uses Global.
func NewNamespace() *Namespace {
	return &Namespace{entries: make(map[string]*Server)}
}

var (
	globalOnce sync.Once
	global     *Namespace
)

// Global returns the lazily-initialised process-wide namespace (spec §9:
// "implement as a lazily-initialised singleton with a single mutex").
func Global() *Namespace {
	globalOnce.Do(func() { global = NewNamespace() })
	return global
}

// Bind atomically reserves name, returning Exists on collision. The
// returned Server is not yet listening - call Listen to admit connects.
func (n *Namespace) Bind(name string, maxBacklog int) (*Server, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.entries[name]; ok {
		return nil, objerr.New(objerr.Exists)
	}
	s := &Server{name: name, maxBacklog: maxBacklog, acceptCh: make(chan struct{}, 1)}
	n.entries[name] = s
	return s, nil
}

// Lookup finds a bound name without reserving or listening.
func (n *Namespace) Lookup(name string) (*Server, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.entries[name]
	return s, ok
}

// Unlink removes name and wakes every outstanding connect-waiter with a
// refused signal, atomically with the removal.
func (n *Namespace) Unlink(name string) {
	n.mu.Lock()
	s, ok := n.entries[name]
	delete(n.entries, name)
	n.mu.Unlock()

	if ok {
		s.refuseAll()
	}
}
