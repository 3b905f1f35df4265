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

	"github.com/hashicorp/go-multierror"

	"github.com/nexuskernel/userworld/descriptor"
	"github.com/nexuskernel/userworld/identity"
	"github.com/nexuskernel/userworld/object"
	"github.com/nexuskernel/userworld/objerr"
	"github.com/nexuskernel/userworld/pathwalk"
	"github.com/nexuskernel/userworld/proxy"
	"github.com/nexuskernel/userworld/unixsocket"
	"github.com/nexuskernel/userworld/vmfs"
	"github.com/nexuskernel/userworld/wconfig"
	"github.com/nexuskernel/userworld/wlog"
)

// Cartel is one emulated-Linux process's world: its descriptor table, its
// POSIX identity, its proxy connection, and the VMFS flush scheduler for its
// open files. It
// is the single type the upward syscall layer calls into.
type Cartel struct {
	ID     uint64
	Desc   *descriptor.Table
	Ident  *identity.ID
	Proxy  *proxy.Conn
	Flush  *vmfs.Flusher
	ns     *unixsocket.Namespace
	root   pathwalk.RootFunc
	opener pathwalk.Opener
}

// New assembles a Cartel from already-constructed collaborators and seeds
// its working directory at root. root and opener are injected rather than
// built here - the concrete directory backing (VMFS-resident or
// proxy-remote) is a choice made by whatever constructs the cartel tree,
// not by this package (mirrors pathwalk's own decoupling from any one
// Opener implementation).
func New(ctx context.Context, id uint64, cfg wconfig.Cartel, uid, gid uint32, px *proxy.Conn, ns *unixsocket.Namespace, root pathwalk.RootFunc, opener pathwalk.Opener) (*Cartel, error) {
	cwd, err := root(ctx)
	if err != nil {
		return nil, err
	}

	c := &Cartel{
		ID:     id,
		Desc:   descriptor.NewTable(cfg.DescriptorCap),
		Ident:  identity.New(uid, gid),
		Proxy:  px,
		ns:     ns,
		root:   root,
		opener: opener,
	}
	c.Desc.SetCwd(ctx, cwd)
	c.Flush = vmfs.NewFlusher(cfg.FlushInterval, c.discoverFlushTasks)
	return c, nil
}

// discoverFlushTasks walks the live descriptor table and returns, for every
// open VMFS-backed file, a closure that takes the object's semaphore, Fsyncs
// its cache and releases both the semaphore and the reference it holds - the
// Discoverer the Flusher calls each tick. Pipes, sockets and proxy handles
// have no local dirty window and contribute nothing.
func (c *Cartel) discoverFlushTasks() []vmfs.FlushTask {
	var tasks []vmfs.FlushTask
	for _, entry := range c.Desc.Dump() {
		fd := entry.Fd
		obj, err := c.Desc.Find(fd)
		if err != nil {
			continue
		}
		v, ok := obj.Variant().(*fileVariant)
		if !ok {
			_ = obj.Release(context.Background())
			continue
		}
		cache := v.cache
		tasks = append(tasks, func() error {
			ctx := context.Background()
			defer release(ctx, obj)
			if err := obj.Lock(ctx); err != nil {
				return err
			}
			defer obj.Unlock()
			return cache.Fsync()
		})
	}
	return tasks
}

// resolve runs a path lookup rooted at the cartel's cwd.
func (c *Cartel) resolve(ctx context.Context, path string, flags pathwalk.Flags, objFlags object.Flags, mode uint32) (pathwalk.Result, error) {
	return pathwalk.Walk(ctx, c.Desc.Cwd(), c.root, c.opener, path, flags, objFlags, mode)
}

// Open resolves path and installs the resulting object in a free descriptor
// slot.
func (c *Cartel) Open(ctx context.Context, path string, flags object.Flags, mode uint32) (int, error) {
	var pwFlags pathwalk.Flags
	if flags.Has(object.OCreate) {
		pwFlags |= pathwalk.Create
	}
	if flags.Has(object.OExclusive) {
		pwFlags |= pathwalk.Exclusive
	}

	res, err := c.resolve(ctx, path, pwFlags, flags, mode)
	if err != nil {
		return -1, err
	}
	if res.Obj == nil {
		// Final arc does not exist and creation was not requested: the
		// ordinary ENOENT case, not a resolvable Dir/Arc pair to act on.
		if res.Dir != nil {
			_ = res.Dir.Release(ctx)
		}
		return -1, objerr.New(objerr.NotFound)
	}

	fd, unreserve, err := c.Desc.Reserve()
	if err != nil {
		_ = res.Obj.Release(ctx)
		return -1, err
	}
	if err := c.Desc.Attach(fd, res.Obj); err != nil {
		unreserve()
		_ = res.Obj.Release(ctx)
		return -1, err
	}
	return fd, nil
}

// Close releases fd's slot in the descriptor table, running the variant's
// Close exactly once if this was the last reference.
func (c *Cartel) Close(ctx context.Context, fd int) error {
	return c.Desc.Close(ctx, fd)
}

// Dup installs a new descriptor referencing the same object as src, at the
// lowest free slot >= minFd.
func (c *Cartel) Dup(src, minFd int) (int, error) {
	return c.Desc.Dup(src, minFd)
}

// Dup2 installs a new descriptor referencing the same object as src at the
// specific slot dst, closing whatever dst previously held.
func (c *Cartel) Dup2(ctx context.Context, src, dst int) (int, error) {
	return c.Desc.Dup2(ctx, src, dst)
}

// Seek repositions fd's cursor; only seekable variants (VMFS files) support
// it, everything else returns IllegalSeek via UnimplementedMethods.
func (c *Cartel) Seek(ctx context.Context, fd int, offset int64, whence int) (int64, error) {
	obj, err := c.Desc.Find(fd)
	if err != nil {
		return 0, err
	}
	defer release(ctx, obj)

	if err := obj.Lock(ctx); err != nil {
		return 0, err
	}
	defer obj.Unlock()

	return obj.Seek(ctx, offset, whence)
}

// Chdir resolves path to a directory and installs it as the cartel's
// working-directory reference, releasing whatever it replaces.
func (c *Cartel) Chdir(ctx context.Context, path string) error {
	res, err := c.resolve(ctx, path, 0, object.OStat|object.ODirectory, 0)
	if err != nil {
		return err
	}
	if res.Obj == nil {
		if res.Dir != nil {
			_ = res.Dir.Release(ctx)
		}
		return objerr.New(objerr.NotFound)
	}
	old := c.Desc.Cwd()
	c.Desc.SetCwd(ctx, res.Obj)
	release(ctx, old)
	return nil
}

// Unlink resolves path's parent directory and removes the final arc from it
// via the Opener, which alone knows how to mutate a directory's contents.
func (c *Cartel) Unlink(ctx context.Context, path string) error {
	res, err := c.resolve(ctx, path, pathwalk.Penultimate, object.OStat, 0)
	if err != nil {
		return err
	}
	defer release(ctx, res.Dir)

	remover, ok := c.opener.(interface {
		Unlink(ctx context.Context, dir *object.Object, arc string) error
	})
	if !ok {
		return objerr.New(objerr.NotSupported)
	}
	return remover.Unlink(ctx, res.Dir, res.Arc)
}

// Dump snapshots the descriptor table for diagnostics.
func (c *Cartel) Dump() []descriptor.DumpEntry {
	return c.Desc.Dump()
}

// Teardown releases every live descriptor and stops the flush scheduler,
// run once when a cartel's last world exits. Every Close failure is
// collected rather than short-circuiting the sweep, so one stuck variant
// never strands the rest of the table open.
func (c *Cartel) Teardown(ctx context.Context) error {
	c.Flush.Stop()

	var result *multierror.Error
	for _, entry := range c.Desc.Dump() {
		if err := c.Desc.Close(ctx, entry.Fd); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		wlog.Default().Error("cartel: teardown left errors", wlog.Fields{"cartel": c.ID}, err)
		return err
	}
	return nil
}

func release(ctx context.Context, o *object.Object) {
	if o != nil {
		_ = o.Release(ctx)
	}
}
