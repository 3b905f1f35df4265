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

package unixsocket

import (
	"context"
	"sync"

	"github.com/nexuskernel/userworld/objerr"
	"github.com/nexuskernel/userworld/pipe"
	"github.com/nexuskernel/userworld/pollcache"
)

// State is a socket's position in the Generic → Connecting → Connected
// lifecycle; a Data object has no State of its own, since reaching Data
// means the handshake is over.
type State uint8

const (
	NotConnected State = iota
	Connecting
	Connected
)

// CartelRef identifies the cartel on one end of a connection, reused as
// pipe.CartelRef so the cross-wired pipes can target SIGPIPE correctly.
type CartelRef = pipe.CartelRef

// Generic is a socket object before it has completed a connect/accept
// handshake. Once the handshake finishes, the caller (the cartel facade)
// replaces the fd-table entry wrapping this Generic with one wrapping the
// resulting *Data - Generic itself never mutates into a Data in place.
type Generic struct {
	mu    sync.Mutex
	state State
}

// State reports the socket's current lifecycle position.
func (g *Generic) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

type pendingConn struct {
	worldID uint64
	cartel  CartelRef
	done    chan struct{}
	data    *Data
	refused bool
}

// Server is a bound, optionally listening socket name. The backlog is a
// bounded slice acting as the connect-waiter ring from spec §4.4; only one
// goroutine may be the accept-waiter at a time, enforced by hasWaiter.
type Server struct {
	mu         sync.Mutex
	name       string
	listening  bool
	maxBacklog int
	backlog    []*pendingConn
	acceptCh   chan struct{}
	hasWaiter  bool
}

// Listen marks s as accepting connects; backlog, if positive, overrides
// the capacity passed to Bind.
func (s *Server) Listen(backlog int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if backlog > 0 {
		s.maxBacklog = backlog
	}
	s.listening = true
}

func (s *Server) ringDoorbell() {
	select {
	case s.acceptCh <- struct{}{}:
	default:
	}
}

// Connect enrolls g on s's connect-waiter ring and blocks (unless
// nonblock) until an Accept completes the handshake or the server goes
// away. Returns LimitExceeded if the ring is already at maxBacklog (spec
// §8 scenario 4: a sixth connect is refused, a seventh succeeds after one
// accept drains the ring).
func (g *Generic) Connect(ctx context.Context, s *Server, cartel CartelRef, worldID uint64, nonblock bool) (*Data, error) {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return nil, objerr.New(objerr.EConnRefused)
	}
	if len(s.backlog) >= s.maxBacklog {
		s.mu.Unlock()
		return nil, objerr.New(objerr.LimitExceeded)
	}

	pc := &pendingConn{worldID: worldID, cartel: cartel, done: make(chan struct{})}
	s.backlog = append(s.backlog, pc)
	s.mu.Unlock()
	s.ringDoorbell()

	g.mu.Lock()
	g.state = Connecting
	g.mu.Unlock()

	if nonblock {
		return nil, objerr.New(objerr.WouldBlock)
	}

	select {
	case <-pc.done:
	case <-ctx.Done():
		return nil, objerr.New(objerr.WaitInterrupted)
	}

	if pc.refused {
		g.mu.Lock()
		g.state = NotConnected
		g.mu.Unlock()
		return nil, objerr.New(objerr.EConnRefused)
	}
	return pc.data, nil
}

// Accept pops the oldest waiting connect, cross-wires a pipe pair for each
// direction, and returns the accepting side's Data. Only one goroutine may
// be registered as the accept-waiter at a time.
func (s *Server) Accept(ctx context.Context, cartel CartelRef, nonblock bool) (*Data, error) {
	for {
		s.mu.Lock()
		if !s.listening {
			s.mu.Unlock()
			return nil, objerr.New(objerr.NotASocket)
		}
		if len(s.backlog) > 0 {
			pc := s.backlog[0]
			s.backlog = s.backlog[1:]
			s.mu.Unlock()
			return completeHandshake(pc, cartel), nil
		}
		if nonblock {
			s.mu.Unlock()
			return nil, objerr.New(objerr.WouldBlock)
		}
		if s.hasWaiter {
			s.mu.Unlock()
			return nil, objerr.New(objerr.Busy)
		}
		s.hasWaiter = true
		s.mu.Unlock()

		select {
		case <-s.acceptCh:
		case <-ctx.Done():
			s.mu.Lock()
			s.hasWaiter = false
			s.mu.Unlock()
			return nil, objerr.New(objerr.WaitInterrupted)
		}

		s.mu.Lock()
		s.hasWaiter = false
		s.mu.Unlock()
	}
}

func completeHandshake(pc *pendingConn, acceptCartel CartelRef) *Data {
	acceptRead, connectWrite := pipe.New(acceptCartel, pc.cartel)
	connectRead, acceptWrite := pipe.New(pc.cartel, acceptCartel)

	pc.data = &Data{read: connectRead, write: connectWrite}
	close(pc.done)

	return &Data{read: acceptRead, write: acceptWrite}
}

// refuseAll wakes every still-pending connect with a refused signal,
// called when the server's name is unlinked.
func (s *Server) refuseAll() {
	s.mu.Lock()
	pending := s.backlog
	s.backlog = nil
	s.listening = false
	s.mu.Unlock()

	for _, pc := range pending {
		pc.refused = true
		close(pc.done)
	}
}

// Data is a connected socket's I/O surface: a read end and a write end
// from two independently cross-wired pipes.
type Data struct {
	read, write *pipe.End
}

func (d *Data) Read(ctx context.Context, p []byte, nonblock bool) (int, error) {
	return d.read.Read(ctx, p, nonblock)
}

func (d *Data) Write(ctx context.Context, p []byte, nonblock bool) (int, error) {
	return d.write.Write(ctx, p, nonblock)
}

func (d *Data) Close() error {
	rErr := d.read.Close()
	wErr := d.write.Close()
	if rErr != nil {
		return rErr
	}
	return wErr
}

func (d *Data) Poll(in pollcache.EventMask) pollcache.EventMask {
	return d.read.Poll(in) | d.write.Poll(in)
}

func (d *Data) SendFD(id int32) error  { return d.write.SendFD(id) }
func (d *Data) RecvFD() (int32, error) { return d.read.RecvFD() }
