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
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexuskernel/userworld/objerr"
	"github.com/nexuskernel/userworld/pollcache"
	"github.com/nexuskernel/userworld/wconfig"
	"golang.org/x/sync/semaphore"
)

// Transport is the out-of-scope collaborator a Conn speaks fragments
// through - a real deployment backs it with whatever channel the host
// resource proxy uses; tests back it with an in-memory pair.
type Transport interface {
	Send(fragment []byte) error
	Recv(ctx context.Context) ([]byte, error)
}

// OpCode names a proxy operation; the catalogue lives with the cartel
// facade that issues calls, not with the wire layer.
type OpCode uint32

// Conn is one cartel's connection to the host resource proxy.
type Conn struct {
	transport    Transport
	cartelID     uint64
	backoff      wconfig.Backoff
	sendSema     *semaphore.Weighted
	nextToken    uint32 // atomic
	disconnected atomic.Bool

	mu       sync.Mutex
	inFlight map[Token]chan frame

	pollLookupMu sync.Mutex
	pollLookup   func(fileHandle uint32) *pollcache.Cache

	recvDone chan struct{}
}

// Dial starts a Conn over an already-established Transport and begins its
// receive loop. The receive loop runs until Transport.Recv returns an
// error, at which point every in-flight call is failed with
// IsDisconnected.
func Dial(t Transport, cartelID uint64, backoff wconfig.Backoff) *Conn {
	c := &Conn{
		transport: t,
		cartelID:  cartelID,
		backoff:   backoff,
		sendSema:  semaphore.NewWeighted(1),
		inFlight:  make(map[Token]chan frame),
		recvDone:  make(chan struct{}),
	}
	go c.recvLoop()
	return c
}

// SetPollLookup installs the callback Conn uses to resolve an
// asynchronously-pushed "object ready" notification to the poll cache it
// updates (spec §4.5: addressed by {world, fileHandle}, reachable from any
// cartel).
func (c *Conn) SetPollLookup(f func(fileHandle uint32) *pollcache.Cache) {
	c.pollLookupMu.Lock()
	defer c.pollLookupMu.Unlock()
	c.pollLookup = f
}

// Disconnected reports whether the connection has given up after an
// unrecoverable transport failure.
func (c *Conn) Disconnected() bool { return c.disconnected.Load() }

func (c *Conn) disconnect() {
	c.disconnected.Store(true)
}

func (c *Conn) recvLoop() {
	defer close(c.recvDone)
	for {
		raw, err := c.transport.Recv(context.Background())
		if err != nil {
			c.disconnect()
			c.failAll(objerr.New(objerr.IsDisconnected, err))
			return
		}

		fr, err := decodeFrame(raw)
		if err != nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.inFlight[fr.Token]
		c.mu.Unlock()

		if ok {
			ch <- fr
			continue
		}

		// Unmatched token: an asynchronous "object ready" push addressed
		// by file handle rather than a pending call.
		if fr.Poll != nil {
			c.deliverAsyncNotify(fr.Header, *fr.Poll)
		}
	}
}

func (c *Conn) deliverAsyncNotify(h *Header, poll PollUpdate) {
	if h == nil {
		return
	}
	c.pollLookupMu.Lock()
	lookup := c.pollLookup
	c.pollLookupMu.Unlock()
	if lookup == nil {
		return
	}
	if cache := lookup(h.FileHandle); cache != nil {
		cache.Update(poll.Generation, pollcache.EventMask(poll.Events))
	}
}

func (c *Conn) failAll(err error) {
	c.mu.Lock()
	pending := c.inFlight
	c.inFlight = make(map[Token]chan frame)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- frame{Header: &Header{Status: objerr.KindOf(err)}, Final: true}
	}
}

// Call sends req (already payload-encoded by the caller) under opcode op
// and waits for the matching reply, merging any piggybacked PollUpdate
// into pollTarget when non-nil. A severe-error reply is returned
// immediately without ever touching pollTarget (spec §4.5/§9).
func (c *Conn) Call(ctx context.Context, op OpCode, payload []byte, pollTarget *pollcache.Cache) ([]byte, error) {
	if c.disconnected.Load() {
		return nil, objerr.New(objerr.IsDisconnected)
	}

	token := Token(atomic.AddUint32(&c.nextToken, 1))
	ch := make(chan frame, 8)

	c.mu.Lock()
	c.inFlight[token] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inFlight, token)
		c.mu.Unlock()
	}()

	if err := c.sendMessage(token, op, payload); err != nil {
		return nil, err
	}

	fr, err := c.awaitReply(ctx, token, ch)
	if err != nil {
		return nil, err
	}

	if fr.Header == nil {
		return fr.Payload, nil
	}

	if status, severe := objerr.Severe(fr.Header.Status); severe {
		return nil, objerr.New(status)
	}

	if pollTarget != nil && fr.Poll != nil {
		pollTarget.Update(fr.Poll.Generation, pollcache.EventMask(fr.Poll.Events))
	}

	if fr.Header.Status != objerr.Ok {
		return nil, objerr.New(fr.Header.Status)
	}
	return fr.Payload, nil
}

// Cancel fires a one-shot cancellation for tok; the peer still replies to
// it (possibly with WaitInterrupted).
func (c *Conn) Cancel(tok Token) error {
	raw, err := encodeFrame(frame{Token: tok, Final: true, Cancel: true})
	if err != nil {
		return err
	}
	return c.transport.Send(raw)
}

func (c *Conn) sendMessage(token Token, op OpCode, payload []byte) error {
	if err := c.sendSema.Acquire(context.Background(), 1); err != nil {
		return objerr.New(objerr.IsDisconnected, err)
	}
	defer c.sendSema.Release(1)

	const headerBudget = 24 // rough CBOR framing overhead within FragmentSize
	chunkSize := FragmentSize - headerBudget
	if chunkSize <= 0 {
		chunkSize = 1
	}

	if len(payload) == 0 {
		return c.sendFragment(frame{Token: token, Final: true, OpCode: uint32(op)})
	}

	for offset := 0; offset < len(payload); offset += chunkSize {
		end := offset + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		fr := frame{
			Token:   token,
			Final:   end == len(payload),
			Payload: payload[offset:end],
		}
		if offset == 0 {
			fr.OpCode = uint32(op)
		}
		if err := c.sendFragment(fr); err != nil {
			return err
		}
	}
	return nil
}

// sendFragment transmits one fragment, retrying a transient full-queue
// condition on a bounded backoff before forcing a disconnect.
func (c *Conn) sendFragment(fr frame) error {
	raw, err := encodeFrame(fr)
	if err != nil {
		return err
	}

	delay := time.Duration(c.backoff.StartMS) * time.Millisecond
	step := time.Duration(c.backoff.StepMS) * time.Millisecond
	cap_ := time.Duration(c.backoff.CapMS) * time.Millisecond
	deadline := time.Now().Add(c.backoff.GiveUp)

	for {
		sendErr := c.transport.Send(raw)
		if sendErr == nil {
			return nil
		}
		if sendErr != ErrTransientFull || time.Now().After(deadline) {
			c.disconnect()
			return objerr.New(objerr.IsDisconnected, sendErr)
		}

		time.Sleep(delay)
		delay += step
		if delay > cap_ {
			delay = cap_
		}
	}
}

// awaitReply assembles fragments for token until Final. A ctx
// cancellation on the first wait sends a cancel token and retries
// uninterruptibly (context.Background()), so a second interruption is
// structurally impossible (spec §7).
func (c *Conn) awaitReply(ctx context.Context, token Token, ch chan frame) (frame, error) {
	assembled, err := c.receiveUntilFinal(ctx, ch)
	if err == nil || objerr.KindOf(err) != objerr.WaitInterrupted {
		return assembled, err
	}

	_ = c.Cancel(token)
	return c.receiveUntilFinal(context.Background(), ch)
}

func (c *Conn) receiveUntilFinal(ctx context.Context, ch chan frame) (frame, error) {
	var payload []byte
	for {
		select {
		case fr := <-ch:
			payload = append(payload, fr.Payload...)
			if fr.Final {
				fr.Payload = payload
				return fr, nil
			}
		case <-ctx.Done():
			return frame{}, objerr.New(objerr.WaitInterrupted)
		}
	}
}
