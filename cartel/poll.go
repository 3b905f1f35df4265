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
	"time"

	"github.com/nexuskernel/userworld/object"
	"github.com/nexuskernel/userworld/objerr"
	"github.com/nexuskernel/userworld/pollcache"
)

// rePollInterval bounds the latency of the wait substitute below the
// shortest timeout callers are expected to pass. It is not configurable
// through wconfig because it is an implementation artifact, not a tunable
// the upward API promises.
const rePollInterval = 20 * time.Millisecond

// PollResult pairs a descriptor with the events StatOf/Poll reported ready.
type PollResult struct {
	Fd     int
	Events pollcache.EventMask
}

// Poll implements the multi-fd wait: pre-arm every fd, return immediately if
// any is already ready, otherwise wait up to timeout (zero means return
// immediately after the pre-arm sweep, negative means wait indefinitely) and
// re-check, then disarm every fd that was armed.
//
// Step 3 of the protocol is never an edge-triggered wait: there is no
// process-wide worldID-to-channel registry in this tree to block on, so the
// wait is always a bounded periodic re-poll, whatever the fd set: each tick
// calls PollNoAction on every fd until one reports readiness or the
// deadline passes. Externally this is indistinguishable from a true wake
// except for up to rePollInterval of added latency.
func (c *Cartel) Poll(ctx context.Context, fds []int, masks []pollcache.EventMask, timeout time.Duration) ([]PollResult, error) {
	if len(fds) != len(masks) {
		return nil, objerr.New(objerr.BadParam)
	}

	objs := make([]*object.Object, len(fds))
	for i, fd := range fds {
		o, err := c.Desc.Find(fd)
		if err != nil {
			releaseAll(ctx, objs[:i])
			return nil, err
		}
		objs[i] = o
	}
	defer releaseAll(ctx, objs)

	armed := make([]bool, len(fds))
	sweep := func(mode object.PollMode) []PollResult {
		var ready []PollResult
		for i, o := range objs {
			ev := o.Poll(ctx, c.ID, masks[i], mode)
			if mode == object.PollNotify {
				armed[i] = true
			}
			if ev != 0 {
				ready = append(ready, PollResult{Fd: fds[i], Events: ev})
			}
		}
		return ready
	}

	cleanup := func() {
		for i, o := range objs {
			if armed[i] {
				o.Poll(ctx, c.ID, masks[i], object.PollCleanup)
			}
		}
	}

	if ready := sweep(object.PollNotify); len(ready) > 0 {
		cleanup()
		return ready, nil
	}

	if timeout == 0 {
		cleanup()
		return nil, nil
	}

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	ticker := time.NewTicker(rePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cleanup()
			return nil, objerr.New(objerr.WaitInterrupted, ctx.Err())
		case <-ticker.C:
			if ready := sweep(object.PollNoAction); len(ready) > 0 {
				cleanup()
				return ready, nil
			}
			if !deadline.IsZero() && !time.Now().Before(deadline) {
				cleanup()
				return nil, nil
			}
		}
	}
}

func releaseAll(ctx context.Context, objs []*object.Object) {
	for _, o := range objs {
		release(ctx, o)
	}
}
