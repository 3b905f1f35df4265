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

package pipe

import (
	"context"
	"sync"

	"github.com/nexuskernel/userworld/objerr"
	"github.com/nexuskernel/userworld/pollcache"
	"golang.org/x/sys/unix"
)

// BufferSize is the ring capacity and the POSIX PIPE_BUF atomic-write
// threshold.
const BufferSize = 512

// CartelRef identifies the cartel owning one end of a pipe, used only to
// target a SIGPIPE when the other end closes first.
type CartelRef uint64

// SignalSender delivers SIGPIPE to a cartel's representative process.
// Abstracted behind an interface so tests never touch a real pid.
type SignalSender interface {
	Raise(cartel CartelRef) error
}

type unixSignalSender struct{}

func (unixSignalSender) Raise(cartel CartelRef) error {
	if cartel == 0 {
		return nil
	}
	return unix.Kill(int(cartel), unix.SIGPIPE)
}

// DefaultSignalSender raises SIGPIPE via golang.org/x/sys/unix.Kill.
var DefaultSignalSender SignalSender = unixSignalSender{}

// Buffer is the shared ring backing exactly one read End and one write End.
type Buffer struct {
	mu sync.Mutex

	hasReader, hasWriter   bool
	readStart, readLength  uint32
	buf                    [BufferSize]byte
	readCartel, writeCartel CartelRef
	socketInFlight         int32 // -1 == empty

	signaler SignalSender
	notify   chan struct{} // closed and replaced under mu on any state change
}

// End is one side of a pipe - a read end or a write end over a shared
// Buffer.
type End struct {
	buf    *Buffer
	isRead bool
}

// New creates a connected pipe and returns its read and write ends.
// readCartel/writeCartel identify the owning cartels for SIGPIPE delivery.
func New(readCartel, writeCartel CartelRef) (r, w *End) {
	return NewWithSignaler(readCartel, writeCartel, DefaultSignalSender)
}

// NewWithSignaler is New with an injectable SignalSender, used by tests
// that assert SIGPIPE delivery without touching a real pid.
func NewWithSignaler(readCartel, writeCartel CartelRef, signaler SignalSender) (r, w *End) {
	b := &Buffer{
		hasReader:      true,
		hasWriter:      true,
		readCartel:     readCartel,
		writeCartel:    writeCartel,
		socketInFlight: -1,
		signaler:       signaler,
		notify:         make(chan struct{}),
	}
	return &End{buf: b, isRead: true}, &End{buf: b, isRead: false}
}

func (b *Buffer) broadcastLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}

// Read consumes up to len(p) bytes. It blocks while the buffer is empty and
// a writer remains, returns (0, nil) on EOF once the writer has gone, and
// honours nonblock/ctx cancellation per §4.3.
func (e *End) Read(ctx context.Context, p []byte, nonblock bool) (int, error) {
	b := e.buf
	for {
		b.mu.Lock()
		if b.readLength > 0 {
			n := b.readRingLocked(p)
			b.broadcastLocked()
			b.mu.Unlock()
			return n, nil
		}
		if !b.hasWriter {
			b.mu.Unlock()
			return 0, nil
		}
		if nonblock {
			b.mu.Unlock()
			return 0, objerr.New(objerr.WouldBlock)
		}
		ch := b.notify
		b.mu.Unlock()

		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return 0, objerr.New(objerr.WaitInterrupted)
		}
	}
}

// Write produces len(p) bytes. A write whose outstanding length is at most
// BufferSize and cannot fit entirely in the writable window blocks (or
// returns WouldBlock) rather than splitting, preserving the PIPE_BUF
// atomicity guarantee; a write larger than BufferSize is written in
// non-atomic chunks as room becomes available. Partial progress always
// masks a trailing WouldBlock/BrokenPipe/WaitInterrupted to a byte count.
func (e *End) Write(ctx context.Context, p []byte, nonblock bool) (int, error) {
	b := e.buf
	total := 0

	for total < len(p) {
		b.mu.Lock()
		if !b.hasReader {
			b.mu.Unlock()
			_ = b.signaler.Raise(b.writeCartel)
			return total, objerr.Partial(total, objerr.New(objerr.BrokenPipe))
		}

		remaining := p[total:]
		writable := BufferSize - b.readLength
		atomicWrite := len(remaining) <= BufferSize

		var chunk int
		switch {
		case atomicWrite && uint32(len(remaining)) > writable:
			if nonblock {
				b.mu.Unlock()
				return total, objerr.Partial(total, objerr.New(objerr.WouldBlock))
			}
			ch := b.notify
			b.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return total, objerr.Partial(total, objerr.New(objerr.WaitInterrupted))
			}
		case writable == 0:
			if nonblock {
				b.mu.Unlock()
				return total, objerr.Partial(total, objerr.New(objerr.WouldBlock))
			}
			ch := b.notify
			b.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return total, objerr.Partial(total, objerr.New(objerr.WaitInterrupted))
			}
		case atomicWrite:
			chunk = len(remaining)
		default:
			chunk = int(writable)
			if chunk > len(remaining) {
				chunk = len(remaining)
			}
		}

		b.writeRingLocked(remaining[:chunk])
		b.readLength += uint32(chunk)
		total += chunk
		b.broadcastLocked()
		b.mu.Unlock()
	}

	return total, nil
}

func (b *Buffer) readRingLocked(p []byte) int {
	n := len(p)
	if uint32(n) > b.readLength {
		n = int(b.readLength)
	}
	for i := 0; i < n; i++ {
		p[i] = b.buf[(b.readStart+uint32(i))%BufferSize]
	}
	b.readStart = (b.readStart + uint32(n)) % BufferSize
	b.readLength -= uint32(n)
	return n
}

func (b *Buffer) writeRingLocked(p []byte) {
	pos := (b.readStart + b.readLength) % BufferSize
	for i, c := range p {
		b.buf[(pos+uint32(i))%BufferSize] = c
	}
}

// Close half-closes e's side. Writer-close wakes all blocked readers onto
// the EOF path; reader-close raises SIGPIPE at the writing cartel and fails
// any in-flight write with BrokenPipe. Idempotent.
func (e *End) Close() error {
	b := e.buf
	b.mu.Lock()

	if e.isRead {
		if !b.hasReader {
			b.mu.Unlock()
			return nil
		}
		b.hasReader = false
		writeCartel := b.writeCartel
		b.broadcastLocked()
		b.mu.Unlock()
		_ = b.signaler.Raise(writeCartel)
		return nil
	}

	if !b.hasWriter {
		b.mu.Unlock()
		return nil
	}
	b.hasWriter = false
	b.broadcastLocked()
	b.mu.Unlock()
	return nil
}

// Poll reports the readiness events currently true for e, per the §4.3
// contract: a write end is always write-ready and asserts RdHup once its
// reader has gone; a read end asserts Read when data is buffered and WrHup
// once its writer has gone and the buffer has drained.
func (e *End) Poll(pollcache.EventMask) pollcache.EventMask {
	b := e.buf
	b.mu.Lock()
	defer b.mu.Unlock()

	var out pollcache.EventMask
	if e.isRead {
		if b.readLength > 0 {
			out |= pollcache.EventRead
		}
		if !b.hasWriter && b.readLength == 0 {
			out |= pollcache.EventWrHup
		}
		return out
	}

	out |= pollcache.EventWrite
	if !b.hasReader {
		out |= pollcache.EventRdHup
	}
	return out
}

// SendFD stashes id in the buffer's single fd-passing slot for the other
// end's RecvFD to pick up (spec §4.3 fd passing over sendmsg/recvmsg).
func (e *End) SendFD(id int32) error {
	b := e.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.socketInFlight != -1 {
		return objerr.New(objerr.LimitExceeded)
	}
	b.socketInFlight = id
	return nil
}

// RecvFD consumes the fd stashed by SendFD, or NotFound if none is pending.
func (e *End) RecvFD() (int32, error) {
	b := e.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.socketInFlight == -1 {
		return 0, objerr.New(objerr.NotFound)
	}
	id := b.socketInFlight
	b.socketInFlight = -1
	return id, nil
}
