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

package main

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/nexuskernel/userworld/cartel"
	"github.com/nexuskernel/userworld/objerr"
	"github.com/nexuskernel/userworld/pathwalk"
	"github.com/nexuskernel/userworld/proxy"
	"github.com/nexuskernel/userworld/unixsocket"
	"github.com/nexuskernel/userworld/wlog"
)

// registry owns every cartel uwvmkd has spawned, keyed by the cartel id a
// world's attach handshake names. One process-wide unix socket namespace is
// shared across all of them, mirroring how AF_UNIX bind names are visible
// host-wide rather than scoped to a single emulated process.
type registry struct {
	cfg       daemonConfig
	ns        *unixsocket.Namespace
	root      pathwalk.RootFunc
	opener    pathwalk.Opener
	dialProxy func() (proxy.Transport, error)

	mu   sync.Mutex
	byID map[uint64]*cartel.Cartel
}

func newRegistry(cfg daemonConfig) *registry {
	return &registry{
		cfg:       cfg,
		ns:        unixsocket.NewNamespace(),
		root:      newRoot(cfg.RootPath),
		opener:    osOpener{},
		dialProxy: func() (proxy.Transport, error) { return dialUnixTransport(cfg.ProxySocket) },
		byID:      make(map[uint64]*cartel.Cartel),
	}
}

// Spawn dials a fresh proxy connection and assembles a Cartel for id, or
// returns the one already running if id is already attached.
func (r *registry) Spawn(ctx context.Context, id uint64, uid, gid uint32) (*cartel.Cartel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.byID[id]; ok {
		return c, nil
	}

	t, err := r.dialProxy()
	if err != nil {
		return nil, objerr.New(objerr.IsDisconnected, err)
	}
	px := proxy.Dial(t, id, r.cfg.Cartel.Backoff)

	c, err := cartel.New(ctx, id, r.cfg.Cartel, uid, gid, px, r.ns, r.root, r.opener)
	if err != nil {
		return nil, err
	}
	c.Flush.Start()

	r.byID[id] = c
	wlog.Default().Info("cartel attached", wlog.Fields{"cartel": id, "uid": uid, "gid": gid})
	return c, nil
}

// Lookup returns the running cartel for id, if any.
func (r *registry) Lookup(id uint64) (*cartel.Cartel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	return c, ok
}

// Detach tears down and forgets the cartel for id.
func (r *registry) Detach(ctx context.Context, id uint64) error {
	r.mu.Lock()
	c, ok := r.byID[id]
	delete(r.byID, id)
	r.mu.Unlock()

	if !ok {
		return objerr.New(objerr.NotFound)
	}
	wlog.Default().Info("cartel detached", wlog.Fields{"cartel": id})
	return c.Teardown(ctx)
}

// Shutdown tears down every running cartel, aggregating every failure
// rather than stopping at the first.
func (r *registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	cartels := make([]*cartel.Cartel, 0, len(r.byID))
	for _, c := range r.byID {
		cartels = append(cartels, c)
	}
	r.byID = make(map[uint64]*cartel.Cartel)
	r.mu.Unlock()

	var result *multierror.Error
	for _, c := range cartels {
		if err := c.Teardown(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
