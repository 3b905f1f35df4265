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

package vmfs

import "sync"

// SectorSize is the backing store's atomic read/write granularity.
const SectorSize = 512

// CacheWindow is the maximum span of one cached window, a multiple of
// SectorSize.
const CacheWindow = 8192

// Backing is the remote collaborator a Cache reads through and flushes to -
// in practice a proxy-backed file handle, stubbed by a plain byte slice in
// tests.
type Backing interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Size() (uint64, error)
	Truncate(size uint64) error
}

// Cache is the single sector-aligned window a VMFS-backed file keeps over
// its Backing. Only one window is ever resident; a read or write outside it
// flushes the dirty window and repositions.
type Cache struct {
	mu sync.Mutex

	buffer []byte // len == CacheWindow once allocated
	valid  bool
	dirty  bool
	offset uint64 // sector-aligned start of the resident window
	length uint32 // valid byte count starting at offset

	eofValid bool
	eofDirty bool
	eof      uint64

	backing Backing
}

// NewCache returns a Cache with no resident window; the first Read, Write or
// Size call lazily queries b.Size() for the starting eof.
func NewCache(b Backing) *Cache {
	return &Cache{backing: b}
}

func alignDown(off uint64, n uint64) uint64 { return off - off%n }

func (c *Cache) ensureEOF() error {
	if c.eofValid {
		return nil
	}
	sz, err := c.backing.Size()
	if err != nil {
		return err
	}
	c.eof = sz
	c.eofValid = true
	return nil
}

// Size reports the file's logical length without touching the sector
// buffer - the statsOnly fast path a plain stat() takes.
func (c *Cache) Size() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureEOF(); err != nil {
		return 0, err
	}
	return c.eof, nil
}

// flushLocked writes the resident window back if dirty. Caller holds mu.
func (c *Cache) flushLocked() error {
	if !c.valid || !c.dirty {
		return nil
	}
	if _, err := c.backing.WriteAt(c.buffer[:c.length], int64(c.offset)); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// ensureWindow repositions the resident window to cover byteOff, flushing
// the previous one first. forWrite controls how bytes beyond the current
// eof within the new window are filled: read-back from the backing up to
// eof, zero-filled past it, never read past eof (spec §4.6 boundary-sector
// handling).
func (c *Cache) ensureWindow(byteOff uint64, forWrite bool) error {
	if c.valid && byteOff >= c.offset && byteOff < c.offset+uint64(c.length) {
		return nil
	}

	if err := c.flushLocked(); err != nil {
		return err
	}

	if c.buffer == nil {
		c.buffer = make([]byte, CacheWindow)
	}

	winStart := alignDown(byteOff, SectorSize)
	winLen := CacheWindow

	var valid int
	if winStart >= c.eof {
		valid = 0
	} else {
		avail := c.eof - winStart
		valid = winLen
		if uint64(valid) > avail {
			valid = int(avail)
		}
		n, err := c.backing.ReadAt(c.buffer[:valid], int64(winStart))
		if err != nil {
			return err
		}
		valid = n
	}

	if forWrite {
		for i := valid; i < winLen; i++ {
			c.buffer[i] = 0
		}
	}
	c.length = uint32(valid)

	c.offset = winStart
	c.valid = true
	c.dirty = false
	return nil
}

// Read copies up to len(p) bytes starting at off, truncated to the file's
// current eof (a read that starts at or past eof returns 0, nil - the
// ordinary short-read-at-EOF shape, not an error).
func (c *Cache) Read(p []byte, off uint64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureEOF(); err != nil {
		return 0, err
	}
	if off >= c.eof {
		return 0, nil
	}

	want := len(p)
	if remaining := c.eof - off; uint64(want) > remaining {
		want = int(remaining)
	}

	total := 0
	for total < want {
		cur := off + uint64(total)
		if err := c.ensureWindow(cur, false); err != nil {
			return total, err
		}
		localOff := cur - c.offset
		if localOff >= uint64(c.length) {
			break
		}
		n := copy(p[total:want], c.buffer[localOff:c.length])
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// Write copies p into the cache at off (or at the current eof when
// appendMode is set, matching O_APPEND's re-read-eof-under-lock semantics),
// extending eof and marking it dirty as needed. Dirty data reaches the
// Backing when the window moves or on Fsync; the dirty eof only on Fsync.
func (c *Cache) Write(p []byte, off uint64, appendMode bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureEOF(); err != nil {
		return 0, err
	}
	if appendMode {
		off = c.eof
	}

	total := 0
	for total < len(p) {
		cur := off + uint64(total)
		if err := c.ensureWindow(cur, true); err != nil {
			return total, err
		}
		localOff := cur - c.offset
		n := copy(c.buffer[localOff:CacheWindow], p[total:])
		if n == 0 {
			break
		}
		c.dirty = true
		total += n

		newEnd := off + uint64(total)
		if newEnd > c.eof {
			c.eof = newEnd
			c.eofDirty = true
		}
		if span := newEnd - c.offset; span > uint64(c.length) {
			c.length = uint32(span)
		}
	}
	return total, nil
}

// Truncate sets the file's exact length, invalidating any resident window
// (the backing's shape beyond/within the new size is no longer something
// this Cache can assume it still holds correctly).
func (c *Cache) Truncate(size uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.flushLocked(); err != nil {
		return err
	}
	if err := c.backing.Truncate(size); err != nil {
		return err
	}
	c.eof = size
	c.eofValid = true
	c.eofDirty = false
	c.valid = false
	c.dirty = false
	return nil
}

// Fsync flushes the resident dirty window and, if the logical length grew
// or shrank since the last sync, pushes the new eof to the Backing.
func (c *Cache) Fsync() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.flushLocked(); err != nil {
		return err
	}
	if c.eofDirty {
		if err := c.backing.Truncate(c.eof); err != nil {
			return err
		}
		c.eofDirty = false
	}
	return nil
}
