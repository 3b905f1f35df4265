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

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/nexuskernel/userworld/wlog"
)

// FlushTask is one unit of periodic flush work - typically "take the
// object's semaphore, call Cache.Fsync, release it", assembled by whatever
// owns the descriptor table. vmfs itself has no notion of a descriptor
// table or an object lock; that wiring belongs to the caller that
// constructs the Discoverer.
type FlushTask func() error

// Discoverer enumerates the FlushTasks due on the next tick.
type Discoverer func() []FlushTask

// Flusher runs Discoverer's tasks concurrently (one errgroup goroutine per
// task, with no concurrency limit) on a fixed interval, the way a cartel keeps every open VMFS
// file's dirty window bounded without waiting for an explicit Fsync.
type Flusher struct {
	interval time.Duration
	discover Discoverer

	mu      sync.Mutex
	ticker  *time.Ticker
	done    chan struct{}
	stopped chan struct{}
}

// NewFlusher builds a Flusher that is not yet running; call Start.
func NewFlusher(interval time.Duration, discover Discoverer) *Flusher {
	return &Flusher{interval: interval, discover: discover}
}

// Start begins the periodic tick in a background goroutine. Calling Start
// twice without an intervening Stop is a caller bug.
func (f *Flusher) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ticker = time.NewTicker(f.interval)
	f.done = make(chan struct{})
	f.stopped = make(chan struct{})

	ticker := f.ticker
	done := f.done
	stopped := f.stopped

	go func() {
		defer close(stopped)
		for {
			select {
			case <-ticker.C:
				if err := f.flushOnce(context.Background()); err != nil {
					wlog.Default().Error("vmfs: periodic flush reported errors", nil, err)
				}
			case <-done:
				return
			}
		}
	}()
}

// Stop cancels the ticker and blocks until the flush goroutine has exited,
// so a cartel teardown never races a flush against the descriptor table
// being torn down underneath it.
func (f *Flusher) Stop() {
	f.mu.Lock()
	ticker, done, stopped := f.ticker, f.done, f.stopped
	f.mu.Unlock()

	if ticker == nil {
		return
	}
	ticker.Stop()
	close(done)
	<-stopped
}

// flushOnce runs every discovered task concurrently, collecting every
// failure rather than stopping at the first - one stuck file must not
// suppress the flush of every other open file on the same tick.
func (f *Flusher) flushOnce(ctx context.Context) error {
	tasks := f.discover()

	var mu sync.Mutex
	var result *multierror.Error

	g, _ := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			if err := task(); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return result.ErrorOrNil()
}
