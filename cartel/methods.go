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

package cartel

import (
	"context"
	"io"

	"github.com/nexuskernel/userworld/object"
	"github.com/nexuskernel/userworld/objerr"
	"github.com/nexuskernel/userworld/pipe"
	"github.com/nexuskernel/userworld/pollcache"
	"github.com/nexuskernel/userworld/unixsocket"
	"github.com/nexuskernel/userworld/vmfs"
)

// pipeMethods backs TypePipeRead/TypePipeWrite objects. The variant is the
// *pipe.End itself - pipe already exposes exactly the Read/Write/Close/Poll/
// fd-passing shape Methods needs, so this adapter is pure forwarding.
type pipeMethods struct {
	object.UnimplementedMethods
}

func (pipeMethods) Close(_ context.Context, o *object.Object) error {
	return o.Variant().(*pipe.End).Close()
}

func (pipeMethods) Read(ctx context.Context, o *object.Object, buf []byte) (int, error) {
	return o.Variant().(*pipe.End).Read(ctx, buf, o.Flags().Has(object.ONonBlock))
}

func (pipeMethods) Write(ctx context.Context, o *object.Object, buf []byte) (int, error) {
	return o.Variant().(*pipe.End).Write(ctx, buf, o.Flags().Has(object.ONonBlock))
}

func (pipeMethods) Poll(_ context.Context, o *object.Object, _ uint64, in pollcache.EventMask, _ object.PollMode) pollcache.EventMask {
	return o.Variant().(*pipe.End).Poll(in)
}

func (pipeMethods) ToString(o *object.Object) string { return "pipe:" + o.Type().String() }

// socketDataMethods backs TypeSocketUnixData objects - a connected unix
// socket's I/O surface, itself built from two pipe.End pairs.
type socketDataMethods struct {
	object.UnimplementedMethods
}

func (socketDataMethods) Close(_ context.Context, o *object.Object) error {
	return o.Variant().(*unixsocket.Data).Close()
}

func (socketDataMethods) Read(ctx context.Context, o *object.Object, buf []byte) (int, error) {
	return o.Variant().(*unixsocket.Data).Read(ctx, buf, o.Flags().Has(object.ONonBlock))
}

func (socketDataMethods) Write(ctx context.Context, o *object.Object, buf []byte) (int, error) {
	return o.Variant().(*unixsocket.Data).Write(ctx, buf, o.Flags().Has(object.ONonBlock))
}

func (socketDataMethods) Poll(_ context.Context, o *object.Object, _ uint64, in pollcache.EventMask, _ object.PollMode) pollcache.EventMask {
	return o.Variant().(*unixsocket.Data).Poll(in)
}

func (socketDataMethods) ToString(o *object.Object) string { return "socket-unix-data" }

// socketGenericMethods and socketServerMethods back the pre-handshake and
// listening-socket variants respectively. Neither supports Read/Write/Poll
// (UnimplementedMethods' NotSupported/zero defaults are correct here) - the
// facade's Connect/Accept/Listen/Bind operate on the variant directly, never
// through the Methods table.
type socketGenericMethods struct {
	object.UnimplementedMethods
}

func (socketGenericMethods) ToString(o *object.Object) string { return "socket-unix-generic" }

type socketServerMethods struct {
	object.UnimplementedMethods
}

func (socketServerMethods) ToString(o *object.Object) string { return "socket-unix-server" }

// fileVariant is the TypeFile/TypeProxyFile variant payload: a cache over a
// remote Backing plus the display name Stat/ToString report.
type fileVariant struct {
	cache *vmfs.Cache
	name  string
}

// fileMethods backs TypeFile and TypeProxyFile objects, dispatching through
// the object's own Offset()/AddOffset() seek cursor - vmfs.Cache itself is
// offset-agnostic, taking an explicit off on every call.
type fileMethods struct {
	object.UnimplementedMethods
}

// Close pushes the dirty window and the dirty eof to the Backing before the
// object goes away.
func (fileMethods) Close(_ context.Context, o *object.Object) error {
	return wrapIOErr(o.Variant().(*fileVariant).cache.Fsync())
}

func (fileMethods) Read(_ context.Context, o *object.Object, buf []byte) (int, error) {
	v := o.Variant().(*fileVariant)
	n, err := v.cache.Read(buf, uint64(o.Offset()))
	if n > 0 {
		o.AddOffset(int64(n))
	}
	return n, objerr.Partial(n, wrapIOErr(err))
}

func (fileMethods) Write(_ context.Context, o *object.Object, buf []byte) (int, error) {
	v := o.Variant().(*fileVariant)
	n, err := v.cache.Write(buf, uint64(o.Offset()), o.Flags().Has(object.OAppend))
	if n > 0 {
		o.AddOffset(int64(n))
	}
	return n, objerr.Partial(n, wrapIOErr(err))
}

func (fileMethods) Seek(_ context.Context, o *object.Object, offset int64, whence int) (int64, error) {
	v := o.Variant().(*fileVariant)
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = o.Offset()
	case io.SeekEnd:
		sz, err := v.cache.Size()
		if err != nil {
			return 0, wrapIOErr(err)
		}
		base = int64(sz)
	default:
		return 0, objerr.New(objerr.BadParam)
	}

	next := base + offset
	if next < 0 {
		return 0, objerr.New(objerr.BadParam)
	}
	o.SetOffset(next)
	return next, nil
}

func (fileMethods) StatOf(_ context.Context, o *object.Object) (object.Stat, error) {
	v := o.Variant().(*fileVariant)
	sz, err := v.cache.Size()
	if err != nil {
		return object.Stat{}, wrapIOErr(err)
	}
	return object.Stat{Size: sz, Seekable: true}, nil
}

func (fileMethods) ToString(o *object.Object) string {
	return o.Variant().(*fileVariant).name
}

// wrapIOErr normalizes a Backing error into the closed Kind enum. vmfs and
// proxy already return objerr-constructed errors for every failure path
// reachable from a real backing, so this is a defensive identity pass for
// anything foreign that slips through - objerr.KindOf's own BadParam
// fallback still applies once wrapped.
func wrapIOErr(err error) error {
	if err == nil {
		return nil
	}
	if objerr.KindOf(err) != objerr.Ok {
		return err
	}
	return objerr.New(objerr.BadParam, err)
}

// PipeMethods returns the object.Methods adapter for a pipe.End-backed
// descriptor. Exported so a caller that receives a bare *pipe.End - an
// fd handed across the proxy's fd-passing path, or a future socketpair/pipe
// syscall - can wrap it the same way Bind/Accept/Connect wrap unixsocket
// variants in this package.
func PipeMethods() object.Methods { return pipeMethods{} }
