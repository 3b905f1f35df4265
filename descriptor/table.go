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

package descriptor

import (
	"context"
	"sync"

	"github.com/nexuskernel/userworld/object"
	"github.com/nexuskernel/userworld/objerr"
)

// DefaultCapacity is the per-cartel descriptor limit (spec §6
// USERWORLD_DESC_TABLE_SIZE), overridable per-table via NewTable for tests
// and via wconfig for a running daemon.
const DefaultCapacity = 320

type slotState uint8

const (
	slotEmpty slotState = iota
	slotReserved
	slotObject
)

type slot struct {
	state slotState
	obj   *object.Object
}

// Table is the per-cartel bounded descriptor array. The mutex is held only
// long enough to mutate slot bookkeeping - never across an object's own
// Lock/Read/Write/Close, which would serialise unrelated fds on each other.
type Table struct {
	mu    sync.Mutex
	slots []slot
	cwd   *object.Object
	umask uint32
}

// NewTable allocates a table with the given capacity (0 means
// DefaultCapacity).
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{slots: make([]slot, capacity)}
}

// Capacity reports the table's fixed slot count.
func (t *Table) Capacity() int { return len(t.slots) }

// Reserve claims the lowest-numbered empty slot without populating it and
// returns its index plus an unreserve closure. Every Reserve must end in
// either Attach or a call to the returned func, never neither - the
// closure exists so a caller cannot forget the unreserve path on an error
// branch (spec §4.1, grounded on ioutils/mapCloser's register-with-cleanup
// pattern).
func (t *Table) Reserve() (fd int, unreserve func(), err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if t.slots[i].state == slotEmpty {
			t.slots[i].state = slotReserved
			idx := i
			return idx, func() { t.Unreserve(idx) }, nil
		}
	}
	return -1, func() {}, objerr.New(objerr.NoFreeHandles)
}

// Unreserve releases a previously Reserved slot without ever attaching an
// object to it.
func (t *Table) Unreserve(fd int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unreserveLocked(fd)
}

func (t *Table) unreserveLocked(fd int) {
	if fd < 0 || fd >= len(t.slots) {
		return
	}
	if t.slots[fd].state == slotReserved {
		t.slots[fd] = slot{}
	}
}

// Attach populates a Reserved slot with o, taking ownership of the
// reference the caller passes in (the caller must not also Release it).
func (t *Table) Attach(fd int, o *object.Object) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fd < 0 || fd >= len(t.slots) {
		return objerr.New(objerr.InvalidHandle)
	}
	if t.slots[fd].state != slotReserved {
		return objerr.New(objerr.InvalidHandle)
	}
	t.slots[fd] = slot{state: slotObject, obj: o}
	return nil
}

// Find looks up fd and returns a retained reference the caller is
// responsible for releasing. A Reserved (not-yet-attached) slot is
// rejected the same as an empty one - it is not yet visible to lookups.
func (t *Table) Find(fd int) (*object.Object, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fd < 0 || fd >= len(t.slots) || t.slots[fd].state != slotObject {
		return nil, objerr.New(objerr.InvalidHandle)
	}
	return t.slots[fd].obj.Retain(), nil
}

// Dup installs a new reference to the object at src into the
// lowest-numbered empty slot at or above minFd.
func (t *Table) Dup(src int, minFd int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if src < 0 || src >= len(t.slots) || t.slots[src].state != slotObject {
		return -1, objerr.New(objerr.InvalidHandle)
	}
	if minFd < 0 {
		minFd = 0
	}

	for i := minFd; i < len(t.slots); i++ {
		if t.slots[i].state == slotEmpty {
			t.slots[i] = slot{state: slotObject, obj: t.slots[src].obj.Retain()}
			return i, nil
		}
	}
	return -1, objerr.New(objerr.NoFreeHandles)
}

// Dup2 makes dst an alias of src, closing whatever dst previously held.
// dup2(fd, fd) short-circuits to success without touching refcounts (spec
// §8 boundary behaviour).
func (t *Table) Dup2(ctx context.Context, src, dst int) (int, error) {
	if src == dst {
		t.mu.Lock()
		valid := src >= 0 && src < len(t.slots) && t.slots[src].state == slotObject
		t.mu.Unlock()
		if !valid {
			return -1, objerr.New(objerr.InvalidHandle)
		}
		return dst, nil
	}

	t.mu.Lock()
	if src < 0 || src >= len(t.slots) || t.slots[src].state != slotObject {
		t.mu.Unlock()
		return -1, objerr.New(objerr.InvalidHandle)
	}
	if dst < 0 || dst >= len(t.slots) {
		t.mu.Unlock()
		return -1, objerr.New(objerr.InvalidHandle)
	}

	prev := t.slots[dst]
	t.slots[dst] = slot{state: slotObject, obj: t.slots[src].obj.Retain()}
	t.mu.Unlock()

	if prev.state == slotObject {
		_ = prev.obj.Release(ctx)
	}
	return dst, nil
}

// Close releases the slot at fd, running the object's Close method if this
// was the object's last reference.
func (t *Table) Close(ctx context.Context, fd int) error {
	t.mu.Lock()
	if fd < 0 || fd >= len(t.slots) || t.slots[fd].state != slotObject {
		t.mu.Unlock()
		return objerr.New(objerr.InvalidHandle)
	}
	o := t.slots[fd].obj
	t.slots[fd] = slot{}
	t.mu.Unlock()

	return o.Release(ctx)
}

// SetCwd installs the cartel's current working directory object, releasing
// whatever it previously held.
func (t *Table) SetCwd(ctx context.Context, o *object.Object) {
	t.mu.Lock()
	prev := t.cwd
	t.cwd = o
	t.mu.Unlock()
	if prev != nil {
		_ = prev.Release(ctx)
	}
}

// Cwd returns the cartel's current working directory object, unretained -
// callers that need to hold it across a blocking call should Retain it
// themselves.
func (t *Table) Cwd() *object.Object {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cwd
}

// Umask returns the cartel's file-creation mask.
func (t *Table) Umask() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.umask
}

// SetUmask installs a new umask and returns the previous value.
func (t *Table) SetUmask(mask uint32) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.umask
	t.umask = mask & 0777
	return prev
}

// DumpEntry is one row of a descriptor-table snapshot (spec §6
// userWorldDbgDumpDescTable).
type DumpEntry struct {
	Fd       int
	Type     string
	RefCount int32
	Desc     string // the object's String()
}

// Dump snapshots every populated slot under the table lock, then renders
// each entry's description outside the lock - object.String() may itself
// take the object's own lock, and holding both at once risks a lock-order
// inversion against a concurrent Find/Release (spec §4.1).
func (t *Table) Dump() []DumpEntry {
	t.mu.Lock()
	objs := make([]struct {
		fd  int
		obj *object.Object
	}, 0, len(t.slots))
	for i := range t.slots {
		if t.slots[i].state == slotObject {
			objs = append(objs, struct {
				fd  int
				obj *object.Object
			}{i, t.slots[i].obj.Retain()})
		}
	}
	t.mu.Unlock()

	out := make([]DumpEntry, 0, len(objs))
	for _, e := range objs {
		out = append(out, DumpEntry{
			Fd:       e.fd,
			Type:     e.obj.Type().String(),
			RefCount: e.obj.RefCount(),
			Desc:     e.obj.String(),
		})
		_ = e.obj.Release(context.Background())
	}
	return out
}
