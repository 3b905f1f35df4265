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

package object

import (
	"context"

	"github.com/nexuskernel/userworld/objerr"
	"github.com/nexuskernel/userworld/pollcache"
)

// Type tags the variant an Object carries. It is a tag only: the Methods
// implementation is passed to New for each Object, so two objects of the
// same Type may carry different Methods.
type Type uint8

const (
	TypeNone Type = iota
	TypeRoot
	TypeFile
	TypePipeRead
	TypePipeWrite
	TypeSocketInet
	TypeSocketUnixGeneric
	TypeSocketUnixData
	TypeSocketUnixServer
	TypeProxyFile
	TypeProxyFifo
	TypeProxySocket
	TypeProxyChar
)

func (t Type) String() string {
	switch t {
	case TypeRoot:
		return "root"
	case TypeFile:
		return "file"
	case TypePipeRead:
		return "pipe-read"
	case TypePipeWrite:
		return "pipe-write"
	case TypeSocketInet:
		return "socket-inet"
	case TypeSocketUnixGeneric:
		return "socket-unix"
	case TypeSocketUnixData:
		return "socket-unix-data"
	case TypeSocketUnixServer:
		return "socket-unix-server"
	case TypeProxyFile:
		return "proxy-file"
	case TypeProxyFifo:
		return "proxy-fifo"
	case TypeProxySocket:
		return "proxy-socket"
	case TypeProxyChar:
		return "proxy-char"
	default:
		return "none"
	}
}

// PollMode distinguishes the three poll sub-calls from spec §4.7: register a
// waiter and report readiness (Notify), re-check without registering
// (NoAction), and unregister any waiter node this object owns (Cleanup).
type PollMode uint8

const (
	PollNotify PollMode = iota
	PollNoAction
	PollCleanup
)

// Stat is the subset of attributes a variant can report. A variant whose
// Methods does not override StatOf (pipes, sockets) gets NotSupported from
// UnimplementedMethods rather than a zeroed Stat.
type Stat struct {
	Size     uint64
	Mode     uint32
	Seekable bool
}

// Methods is the per-variant behaviour trait. There is deliberately no base
// struct or embedding relationship between variants - two variants
// implementing Methods share nothing but this interface (spec §9).
type Methods interface {
	Close(ctx context.Context, o *Object) error
	Read(ctx context.Context, o *Object, buf []byte) (int, error)
	Write(ctx context.Context, o *Object, buf []byte) (int, error)
	Seek(ctx context.Context, o *Object, offset int64, whence int) (int64, error)
	Poll(ctx context.Context, o *Object, worldID uint64, in pollcache.EventMask, mode PollMode) pollcache.EventMask
	StatOf(ctx context.Context, o *Object) (Stat, error)
	ToString(o *Object) string
}

// UnimplementedMethods gives every concrete Methods implementation a
// correct-by-default base for operations its variant does not support, the
// way the teacher's `config/component.go` gives every Component a no-op
// default for optional lifecycle hooks. Embed it and override only what the
// variant actually does.
type UnimplementedMethods struct{}

func (UnimplementedMethods) Close(context.Context, *Object) error { return nil }

func (UnimplementedMethods) Read(context.Context, *Object, []byte) (int, error) {
	return 0, objerr.New(objerr.NotSupported)
}

func (UnimplementedMethods) Write(context.Context, *Object, []byte) (int, error) {
	return 0, objerr.New(objerr.NotSupported)
}

// Seek defaults to IllegalSeek per spec §9's resolution of the open
// question on proxied pipes/chars: only the variants that actually override
// Seek are seekable.
func (UnimplementedMethods) Seek(context.Context, *Object, int64, int) (int64, error) {
	return 0, objerr.New(objerr.IllegalSeek)
}

func (UnimplementedMethods) Poll(context.Context, *Object, uint64, pollcache.EventMask, PollMode) pollcache.EventMask {
	return 0
}

func (UnimplementedMethods) StatOf(context.Context, *Object) (Stat, error) {
	return Stat{}, objerr.New(objerr.NotSupported)
}

func (UnimplementedMethods) ToString(*Object) string { return "" }
