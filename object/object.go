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
	"sync/atomic"

	"github.com/nexuskernel/userworld/pollcache"
	"github.com/nexuskernel/userworld/wlog"
)

// Object is the polymorphic handle shared by every descriptor-table entry
// and every path-lookup result. Variant state lives behind Variant and is
// reached only through Methods - Object itself knows nothing about pipes,
// sockets, VMFS files or proxy handles.
type Object struct {
	refs    int32 // atomic
	offset  int64 // atomic; seek position, unused by non-seekable variants
	sema    chan struct{}
	typ     Type
	flags   Flags
	methods Methods
	variant any
}

// New constructs an Object with one reference already held, owned by the
// caller that is about to install it in a descriptor slot or return it from
// a lookup. The semaphore starts unlocked (one token buffered).
func New(typ Type, methods Methods, variant any, flags Flags) *Object {
	o := &Object{
		refs:    1,
		typ:     typ,
		flags:   flags,
		methods: methods,
		variant: variant,
		sema:    make(chan struct{}, 1),
	}
	o.sema <- struct{}{}
	return o
}

// Type reports the variant tag.
func (o *Object) Type() Type { return o.typ }

// Flags reports the open-flags the object was created or reopened with.
func (o *Object) Flags() Flags { return o.flags }

// Variant returns the variant-private state for type-assertion by the
// owning Methods implementation. Callers outside the variant's own package
// have no business calling this.
func (o *Object) Variant() any { return o.variant }

// Offset returns the current seek position.
func (o *Object) Offset() int64 { return atomic.LoadInt64(&o.offset) }

// SetOffset overwrites the seek position, used by Seek implementations.
func (o *Object) SetOffset(n int64) { atomic.StoreInt64(&o.offset, n) }

// AddOffset advances the seek position by delta and returns the new value,
// used after a Read/Write completes n bytes.
func (o *Object) AddOffset(delta int64) int64 {
	return atomic.AddInt64(&o.offset, delta)
}

// RefCount reports the current reference count, for tests and Dump (spec
// §6 userWorldDbgDumpDescTable).
func (o *Object) RefCount() int32 { return atomic.LoadInt32(&o.refs) }

// Retain increments the reference count and returns o, mirroring the
// cartel-wide "every descriptor table slot and every in-flight lookup holds
// its own reference" invariant from spec §3.
func (o *Object) Retain() *Object {
	atomic.AddInt32(&o.refs, 1)
	return o
}

// Release drops one reference. When the count reaches zero the object's
// Close method runs exactly once and the variant state becomes unreachable.
// Calling Release more times than the object was retained is a programming
// error in the caller, not a recoverable condition - the teacher's
// `atomic` package counters make the same assumption.
func (o *Object) Release(ctx context.Context) error {
	if atomic.AddInt32(&o.refs, -1) > 0 {
		return nil
	}

	var err error
	if o.methods != nil {
		err = o.methods.Close(ctx, o)
	}
	if err != nil {
		wlog.Default().Error("object: close failed", wlog.Fields{"type": o.typ.String()}, err)
	}
	return err
}

// Lock acquires the binary semaphore guarding Read/Write/Seek/Close against
// each other. It respects ctx cancellation so a blocking read can be
// interrupted without ever having acquired the lock.
func (o *Object) Lock(ctx context.Context) error {
	select {
	case <-o.sema:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the semaphore acquired by Lock. Calling Unlock without a
// matching successful Lock is a caller bug.
func (o *Object) Unlock() {
	select {
	case o.sema <- struct{}{}:
	default:
		// Already unlocked; never block a caller on a logic error here.
	}
}

// Drop releases the semaphore early and mid-operation, so an operation that
// must block can wait without holding the object lock the whole time.
// Reacquire with Lock before resuming.
func (o *Object) Drop() { o.Unlock() }

// Read/Write/Seek/Poll/Stat/ToString dispatch to the variant's Methods,
// the single point where the sum-type switches from Object's uniform shape
// to variant-specific behaviour.

func (o *Object) Read(ctx context.Context, buf []byte) (int, error) {
	return o.methods.Read(ctx, o, buf)
}

func (o *Object) Write(ctx context.Context, buf []byte) (int, error) {
	return o.methods.Write(ctx, o, buf)
}

func (o *Object) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	return o.methods.Seek(ctx, o, offset, whence)
}

func (o *Object) Poll(ctx context.Context, worldID uint64, in pollcache.EventMask, mode PollMode) pollcache.EventMask {
	return o.methods.Poll(ctx, o, worldID, in, mode)
}

func (o *Object) StatOf(ctx context.Context) (Stat, error) {
	return o.methods.StatOf(ctx, o)
}

func (o *Object) String() string {
	return o.methods.ToString(o)
}
