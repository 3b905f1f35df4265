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

// The control plane this file implements - one request/reply per world
// syscall, framed the same way streamTransport frames proxy fragments - is
// uwvmkd's own invention: nothing upstream of the cartel facade specifies
// how a world's syscalls actually reach it, only what the facade must do
// once they arrive. It is deliberately the simplest thing that could work:
// one CBOR struct in, one CBOR struct out, no pipelining.
package main

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nexuskernel/userworld/object"
	"github.com/nexuskernel/userworld/objerr"
	"github.com/nexuskernel/userworld/pollcache"
	"github.com/nexuskernel/userworld/wlog"
)

// listenUnix binds path as a unix stream socket, clearing a stale socket
// file left behind by a previous run that did not shut down cleanly.
func listenUnix(path string) (net.Listener, error) {
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	return net.Listen("unix", path)
}

// request is one world syscall crossing the control socket. Only the
// fields an Op actually needs are populated; the rest are left zero.
type request struct {
	Op      string   `cbor:"1,keyasint"`
	CartelID uint64  `cbor:"2,keyasint"`
	UID     uint32   `cbor:"3,keyasint,omitempty"`
	GID     uint32   `cbor:"4,keyasint,omitempty"`
	Fd      int      `cbor:"5,keyasint,omitempty"`
	Fd2     int      `cbor:"6,keyasint,omitempty"`
	Path    string   `cbor:"7,keyasint,omitempty"`
	Flags   uint32   `cbor:"8,keyasint,omitempty"`
	Mode    uint32   `cbor:"9,keyasint,omitempty"`
	Data    []byte   `cbor:"10,keyasint,omitempty"`
	Offset  int64    `cbor:"11,keyasint,omitempty"`
	Whence  int      `cbor:"12,keyasint,omitempty"`
	Fds     []int    `cbor:"13,keyasint,omitempty"`
	Masks   []uint32 `cbor:"14,keyasint,omitempty"`
	TimeoutMS int64  `cbor:"15,keyasint,omitempty"`
	Backlog int      `cbor:"16,keyasint,omitempty"`
	Nonblock bool    `cbor:"17,keyasint,omitempty"`
	How     int      `cbor:"18,keyasint,omitempty"`
	Len     int      `cbor:"19,keyasint,omitempty"`
}

type pollReply struct {
	Fd     int    `cbor:"1,keyasint"`
	Events uint32 `cbor:"2,keyasint"`
}

// response is the reply to a request. Err is empty on success.
type response struct {
	Err      string      `cbor:"1,keyasint,omitempty"`
	Fd       int         `cbor:"2,keyasint,omitempty"`
	N        int         `cbor:"3,keyasint,omitempty"`
	Data     []byte      `cbor:"4,keyasint,omitempty"`
	Offset   int64       `cbor:"5,keyasint,omitempty"`
	Name     string      `cbor:"6,keyasint,omitempty"`
	Polled   []pollReply `cbor:"7,keyasint,omitempty"`
	Size     uint64      `cbor:"8,keyasint,omitempty"`
	Seekable bool        `cbor:"9,keyasint,omitempty"`
}

func errResponse(err error) response {
	if err == nil {
		return response{}
	}
	return response{Err: err.Error()}
}

// serveControl accepts world connections on ln until ctx is cancelled,
// handling each on its own goroutine.
func serveControl(ctx context.Context, ln net.Listener, reg *registry) {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wlog.Default().Warn("control: accept failed", wlog.Fields{"error": err.Error()})
			continue
		}
		go handleControlConn(ctx, conn, reg)
	}
}

func handleControlConn(ctx context.Context, conn net.Conn, reg *registry) {
	defer conn.Close()

	for {
		req, err := readRequest(conn)
		if err != nil {
			if err != io.EOF {
				wlog.Default().Debug("control: connection closed", wlog.Fields{"error": err.Error()})
			}
			return
		}

		resp := dispatch(ctx, reg, req)
		if err := writeResponse(conn, resp); err != nil {
			wlog.Default().Warn("control: write failed", wlog.Fields{"error": err.Error()})
			return
		}
	}
}

func readRequest(conn net.Conn) (request, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return request{}, err
	}
	buf := make([]byte, binary.BigEndian.Uint32(hdr[:]))
	if _, err := io.ReadFull(conn, buf); err != nil {
		return request{}, err
	}
	var req request
	if err := cbor.Unmarshal(buf, &req); err != nil {
		return request{}, err
	}
	return req, nil
}

func writeResponse(conn net.Conn, resp response) error {
	b, err := cbor.Marshal(resp)
	if err != nil {
		return err
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
	if _, err := conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err = conn.Write(b)
	return err
}

// dispatch runs one request against the cartel it names. Only "attach"
// spawns a cartel; any other op naming a cartel that is not attached fails
// with InvalidHandle, so a world's first request on a fresh connection is
// "attach".
func dispatch(ctx context.Context, reg *registry, req request) response {
	if req.Op == "attach" {
		if _, err := reg.Spawn(ctx, req.CartelID, req.UID, req.GID); err != nil {
			return errResponse(err)
		}
		return response{}
	}
	if req.Op == "detach" {
		return errResponse(reg.Detach(ctx, req.CartelID))
	}

	c, ok := reg.Lookup(req.CartelID)
	if !ok {
		return errResponse(objerr.New(objerr.InvalidHandle))
	}

	switch req.Op {
	case "open":
		fd, err := c.Open(ctx, req.Path, object.Flags(req.Flags), req.Mode)
		if err != nil {
			return errResponse(err)
		}
		return response{Fd: fd}

	case "close":
		return errResponse(c.Close(ctx, req.Fd))

	case "read":
		buf := make([]byte, req.Len)
		n, err := c.Read(ctx, req.Fd, buf)
		if err != nil {
			return errResponse(err)
		}
		return response{N: n, Data: buf[:n]}

	case "write":
		n, err := c.Write(ctx, req.Fd, req.Data)
		if err != nil {
			return errResponse(err)
		}
		return response{N: n}

	case "seek":
		off, err := c.Seek(ctx, req.Fd, req.Offset, req.Whence)
		if err != nil {
			return errResponse(err)
		}
		return response{Offset: off}

	case "dup":
		fd, err := c.Dup(req.Fd, req.Fd2)
		if err != nil {
			return errResponse(err)
		}
		return response{Fd: fd}

	case "dup2":
		fd, err := c.Dup2(ctx, req.Fd, req.Fd2)
		if err != nil {
			return errResponse(err)
		}
		return response{Fd: fd}

	case "chdir":
		return errResponse(c.Chdir(ctx, req.Path))

	case "unlink":
		return errResponse(c.Unlink(ctx, req.Path))

	case "fsync":
		return errResponse(c.Fsync(ctx, req.Fd))

	case "truncate":
		return errResponse(c.Truncate(ctx, req.Fd, uint64(req.Offset)))

	case "stat":
		st, err := c.Stat(ctx, req.Fd)
		if err != nil {
			return errResponse(err)
		}
		return response{Size: st.Size, Seekable: st.Seekable}

	case "getname":
		name, err := c.GetName(ctx, req.Fd)
		if err != nil {
			return errResponse(err)
		}
		return response{Name: name}

	case "poll":
		masks := make([]pollcache.EventMask, len(req.Masks))
		for i, m := range req.Masks {
			masks[i] = pollcache.EventMask(m)
		}
		results, err := c.Poll(ctx, req.Fds, masks, time.Duration(req.TimeoutMS)*time.Millisecond)
		if err != nil {
			return errResponse(err)
		}
		polled := make([]pollReply, len(results))
		for i, r := range results {
			polled[i] = pollReply{Fd: r.Fd, Events: uint32(r.Events)}
		}
		return response{Polled: polled}

	case "bind":
		fd, err := c.Bind(req.Path, req.Backlog)
		if err != nil {
			return errResponse(err)
		}
		return response{Fd: fd}

	case "listen":
		return errResponse(c.Listen(ctx, req.Fd, req.Backlog))

	case "accept":
		fd, err := c.Accept(ctx, req.Fd, req.Nonblock)
		if err != nil {
			return errResponse(err)
		}
		return response{Fd: fd}

	case "connect":
		fd, err := c.Connect(ctx, req.Path, req.Nonblock)
		if err != nil {
			return errResponse(err)
		}
		return response{Fd: fd}

	case "shutdown":
		return errResponse(c.Shutdown(ctx, req.Fd, req.How))

	default:
		return errResponse(objerr.New(objerr.NotImplemented))
	}
}
