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

	"github.com/nexuskernel/userworld/object"
	"github.com/nexuskernel/userworld/objerr"
	"github.com/nexuskernel/userworld/unixsocket"
	"github.com/nexuskernel/userworld/vmfs"
)

// withObject looks up fd, runs fn under the object's lock, and releases the
// lookup reference - the shape every simple single-fd syscall below shares.
func (c *Cartel) withObject(ctx context.Context, fd int, fn func(*object.Object) error) error {
	o, err := c.Desc.Find(fd)
	if err != nil {
		return err
	}
	defer release(ctx, o)

	if err := o.Lock(ctx); err != nil {
		return err
	}
	defer o.Unlock()

	return fn(o)
}

// Read dispatches to fd's Methods.Read under the object lock.
func (c *Cartel) Read(ctx context.Context, fd int, buf []byte) (int, error) {
	var n int
	err := c.withObject(ctx, fd, func(o *object.Object) error {
		var rerr error
		n, rerr = o.Read(ctx, buf)
		return rerr
	})
	return n, err
}

// Write dispatches to fd's Methods.Write under the object lock.
func (c *Cartel) Write(ctx context.Context, fd int, buf []byte) (int, error) {
	var n int
	err := c.withObject(ctx, fd, func(o *object.Object) error {
		var werr error
		n, werr = o.Write(ctx, buf)
		return werr
	})
	return n, err
}

// Fsync flushes fd's dirty window immediately, outside the periodic
// Flusher sweep. Only VMFS-backed files have anything to flush; every other
// variant's UnimplementedMethods.StatOf path is irrelevant here since Fsync
// is not part of object.Methods - it is resolved directly against the
// variant the way discoverFlushTasks does.
func (c *Cartel) Fsync(ctx context.Context, fd int) error {
	o, err := c.Desc.Find(fd)
	if err != nil {
		return err
	}
	defer release(ctx, o)

	v, ok := o.Variant().(*fileVariant)
	if !ok {
		return nil
	}
	return wrapIOErr(v.cache.Fsync())
}

// Truncate resizes fd's backing file, discarding any resident dirty window
// past the new size.
func (c *Cartel) Truncate(ctx context.Context, fd int, size uint64) error {
	o, err := c.Desc.Find(fd)
	if err != nil {
		return err
	}
	defer release(ctx, o)

	v, ok := o.Variant().(*fileVariant)
	if !ok {
		return objerr.New(objerr.NotSupported)
	}
	return wrapIOErr(v.cache.Truncate(size))
}

// Stat reports fd's attributes.
func (c *Cartel) Stat(ctx context.Context, fd int) (object.Stat, error) {
	o, err := c.Desc.Find(fd)
	if err != nil {
		return object.Stat{}, err
	}
	defer release(ctx, o)
	return o.StatOf(ctx)
}

// GetName reports fd's display name (spec's userWorldFDToString).
func (c *Cartel) GetName(ctx context.Context, fd int) (string, error) {
	o, err := c.Desc.Find(fd)
	if err != nil {
		return "", err
	}
	defer release(ctx, o)
	return o.String(), nil
}

// installSocket wraps variant behind a new descriptor, mirroring Open's
// reserve-attach-rollback shape for the socket family's own object types.
func (c *Cartel) installSocket(typ object.Type, methods object.Methods, variant any, flags object.Flags) (int, error) {
	obj := object.New(typ, methods, variant, flags)
	fd, unreserve, err := c.Desc.Reserve()
	if err != nil {
		_ = obj.Release(context.Background())
		return -1, err
	}
	if err := c.Desc.Attach(fd, obj); err != nil {
		unreserve()
		_ = obj.Release(context.Background())
		return -1, err
	}
	return fd, nil
}

// Bind registers name in the cartel's unix-socket namespace and installs a
// listening-socket descriptor for it.
func (c *Cartel) Bind(name string, maxBacklog int) (int, error) {
	srv, err := c.ns.Bind(name, maxBacklog)
	if err != nil {
		return -1, err
	}
	return c.installSocket(object.TypeSocketUnixServer, socketServerMethods{}, srv, object.OStat)
}

// Listen arms fd's backing Server to accept connections.
func (c *Cartel) Listen(ctx context.Context, fd int, backlog int) error {
	o, err := c.Desc.Find(fd)
	if err != nil {
		return err
	}
	defer release(ctx, o)

	srv, ok := o.Variant().(*unixsocket.Server)
	if !ok {
		return objerr.New(objerr.NotASocket)
	}
	srv.Listen(backlog)
	return nil
}

// Accept blocks for the next completed handshake on fd's listening socket
// and installs the resulting connected-data descriptor.
func (c *Cartel) Accept(ctx context.Context, fd int, nonblock bool) (int, error) {
	o, err := c.Desc.Find(fd)
	if err != nil {
		return -1, err
	}
	defer release(ctx, o)

	srv, ok := o.Variant().(*unixsocket.Server)
	if !ok {
		return -1, objerr.New(objerr.NotASocket)
	}

	data, err := srv.Accept(ctx, unixsocket.CartelRef(c.ID), nonblock)
	if err != nil {
		return -1, err
	}
	return c.installSocket(object.TypeSocketUnixData, socketDataMethods{}, data, o.Flags())
}

// Connect resolves name in the namespace and completes a client handshake,
// installing the resulting connected-data descriptor.
func (c *Cartel) Connect(ctx context.Context, name string, nonblock bool) (int, error) {
	srv, ok := c.ns.Lookup(name)
	if !ok {
		return -1, objerr.New(objerr.NotFound)
	}

	g := &unixsocket.Generic{}
	data, err := g.Connect(ctx, srv, unixsocket.CartelRef(c.ID), c.ID, nonblock)
	if err != nil {
		return -1, err
	}
	return c.installSocket(object.TypeSocketUnixData, socketDataMethods{}, data, object.ORdWr)
}

// Shutdown closes fd's data-socket half(s); the underlying Data has no
// half-close of its own, so this is equivalent to Close for now.
func (c *Cartel) Shutdown(ctx context.Context, fd int, _ int) error {
	return c.Desc.Close(ctx, fd)
}

// NewFileObject wraps backing in a VMFS-cached, seekable Object. A
// pathwalk.Opener implementation that resolves an arc to a VMFS inode calls
// this to produce the *object.Object pathwalk.Walk expects back from
// OpenArc - it is the only place outside this package that needs to know
// fileMethods/fileVariant exist.
func NewFileObject(name string, backing vmfs.Backing, flags object.Flags) *object.Object {
	v := &fileVariant{cache: vmfs.NewCache(backing), name: name}
	return object.New(object.TypeFile, fileMethods{}, v, flags)
}

// The remaining upward-API names are exposed as methods so callers can name
// them, but have no VMFS/unix-socket backing in this tree to implement them
// against honestly - each returns NotImplemented rather than silently
// succeeding or being omitted.

func (c *Cartel) Chmod(context.Context, string, uint32) error {
	return objerr.New(objerr.NotImplemented)
}

func (c *Cartel) Chown(context.Context, string, uint32, uint32) error {
	return objerr.New(objerr.NotImplemented)
}

func (c *Cartel) Utime(context.Context, string, int64, int64) error {
	return objerr.New(objerr.NotImplemented)
}

func (c *Cartel) StatFS(context.Context, string) error {
	return objerr.New(objerr.NotImplemented)
}

func (c *Cartel) Mkdir(context.Context, string, uint32) error {
	return objerr.New(objerr.NotImplemented)
}

func (c *Cartel) Rmdir(context.Context, string) error {
	return objerr.New(objerr.NotImplemented)
}

func (c *Cartel) ReadSymLink(context.Context, string) (string, error) {
	return "", objerr.New(objerr.NotImplemented)
}

func (c *Cartel) MakeSymLink(context.Context, string, string) error {
	return objerr.New(objerr.NotImplemented)
}

func (c *Cartel) MakeHardLink(context.Context, string, string) error {
	return objerr.New(objerr.NotImplemented)
}

func (c *Cartel) Rename(context.Context, string, string) error {
	return objerr.New(objerr.NotImplemented)
}

func (c *Cartel) Mknod(context.Context, string, uint32, uint32) error {
	return objerr.New(objerr.NotImplemented)
}

func (c *Cartel) Fcntl(context.Context, int, int, int) (int, error) {
	return -1, objerr.New(objerr.NotImplemented)
}

func (c *Cartel) ReadDir(context.Context, int) ([]string, error) {
	return nil, objerr.New(objerr.NotImplemented)
}

func (c *Cartel) Ioctl(context.Context, int, uint32, []byte) error {
	return objerr.New(objerr.NotImplemented)
}

func (c *Cartel) SocketPair(object.Flags) (int, int, error) {
	return -1, -1, objerr.New(objerr.NotImplemented)
}

func (c *Cartel) GetSocketName(int) (string, error) {
	return "", objerr.New(objerr.NotImplemented)
}

func (c *Cartel) SetSockOpt(int, int, int, []byte) error {
	return objerr.New(objerr.NotImplemented)
}

func (c *Cartel) GetSockOpt(int, int, int) ([]byte, error) {
	return nil, objerr.New(objerr.NotImplemented)
}

// fdSender and fdReceiver are satisfied by the variants that carry a
// single-slot ancillary-data side channel alongside their regular
// read/write path - pipe.End and unixsocket.Data - mirroring
// sendmsg/recvmsg's SCM_RIGHTS semantics one descriptor at a time.
type fdSender interface {
	SendFD(int32) error
}

type fdReceiver interface {
	RecvFD() (int32, error)
}

// SendMsg writes buf to fd exactly like Write, then stashes each descriptor
// in fds in the variant's ancillary slot for the peer end's RecvMsg to pick
// up. The slot holds a bare numeric id, never a reference, so fds are only
// validated against this cartel's own table here, not retained.
func (c *Cartel) SendMsg(ctx context.Context, fd int, buf []byte, fds []int) (int, error) {
	for _, f := range fds {
		o, err := c.Desc.Find(f)
		if err != nil {
			return -1, err
		}
		release(ctx, o)
	}

	var n int
	err := c.withObject(ctx, fd, func(o *object.Object) error {
		sender, ok := o.Variant().(fdSender)
		if !ok && len(fds) > 0 {
			return objerr.New(objerr.NotSupported)
		}

		var werr error
		n, werr = o.Write(ctx, buf)
		if werr != nil {
			return werr
		}
		for _, f := range fds {
			if serr := sender.SendFD(int32(f)); serr != nil {
				return serr
			}
		}
		return nil
	})
	return n, err
}

// RecvMsg reads buf from fd exactly like Read, then drains the ancillary
// descriptor a matching SendMsg stashed, if any - an empty slot is not an
// error, the same as recvmsg with no ancillary data attached.
func (c *Cartel) RecvMsg(ctx context.Context, fd int, buf []byte) (int, []int, error) {
	var n int
	var fds []int
	err := c.withObject(ctx, fd, func(o *object.Object) error {
		var rerr error
		n, rerr = o.Read(ctx, buf)
		if rerr != nil {
			return rerr
		}

		receiver, ok := o.Variant().(fdReceiver)
		if !ok {
			return nil
		}
		id, ferr := receiver.RecvFD()
		if ferr != nil {
			if objerr.KindOf(ferr) == objerr.NotFound {
				return nil
			}
			return ferr
		}
		fds = []int{int(id)}
		return nil
	})
	return n, fds, err
}

func (c *Cartel) GetPeerName(int) (string, error) {
	return "", objerr.New(objerr.NotImplemented)
}
