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

package proxy

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/nexuskernel/userworld/descriptor"
	"github.com/nexuskernel/userworld/object"
	"github.com/nexuskernel/userworld/objerr"
)

// IncomingFDs installs a batch of proxy-constructed objects - e.g. the
// handles a remote open() or socket accept returns alongside a Call reply -
// into tbl as a single unit. Either every object gets a slot or none does:
// a failure partway through rolls back every slot reserved so far, so the
// caller never has to reason about a half-installed batch (spec §4.5/§6,
// the same all-or-nothing shape as Table.Reserve's own unreserve closure).
func IncomingFDs(ctx context.Context, tbl *descriptor.Table, objs []*object.Object) ([]int, error) {
	fds := make([]int, 0, len(objs))

	// rollback closes every slot this batch has already attached (Close
	// clears the slot and releases the Attach reference in one step) - the
	// slot is slotObject by the time it is in fds, so the Reserve-time
	// unreserve closure is a no-op on it and must never be used here.
	rollback := func(cause error) ([]int, error) {
		var result *multierror.Error
		if cause != nil {
			result = multierror.Append(result, cause)
		}
		for _, fd := range fds {
			if err := tbl.Close(ctx, fd); err != nil {
				result = multierror.Append(result, err)
			}
		}
		return nil, result.ErrorOrNil()
	}

	for _, o := range objs {
		fd, unreserve, err := tbl.Reserve()
		if err != nil {
			return rollback(err)
		}
		if err := tbl.Attach(fd, o.Retain()); err != nil {
			unreserve()
			return rollback(err)
		}
		fds = append(fds, fd)
	}

	return fds, nil
}

// OutgoingFDs resolves a batch of local descriptors into retained objects
// for a Call that is handing them to the remote side, returning a release
// func the caller must invoke once the fragments carrying them have been
// sent. A lookup failure partway through releases everything already
// resolved and reports every failure it hit via a multierror rather than
// just the first.
func OutgoingFDs(ctx context.Context, tbl *descriptor.Table, fds []int) ([]*object.Object, func(), error) {
	objs := make([]*object.Object, 0, len(fds))

	release := func() {
		for _, o := range objs {
			_ = o.Release(ctx)
		}
	}

	var result *multierror.Error
	for _, fd := range fds {
		o, err := tbl.Find(fd)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		objs = append(objs, o)
	}

	if err := result.ErrorOrNil(); err != nil {
		release()
		return nil, func() {}, objerr.New(objerr.InvalidHandle, err)
	}

	return objs, release, nil
}
