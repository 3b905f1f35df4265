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
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"
)

// streamTransport implements proxy.Transport over a length-prefixed byte
// stream - a real deployment's connection to the host resource proxy is a
// unix-domain socket, but anything satisfying net.Conn works.
type streamTransport struct {
	conn net.Conn

	writeMu sync.Mutex
}

func newStreamTransport(conn net.Conn) *streamTransport {
	return &streamTransport{conn: conn}
}

// dialUnixTransport opens a fresh connection to the host resource proxy's
// control socket at path.
func dialUnixTransport(path string) (*streamTransport, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	return newStreamTransport(conn), nil
}

func (t *streamTransport) Send(fragment []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(fragment)))
	if _, err := t.conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := t.conn.Write(fragment)
	return err
}

// Recv blocks for the next fragment, unblocking early via a read deadline
// if ctx is cancelled first.
func (t *streamTransport) Recv(ctx context.Context) ([]byte, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = t.conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	var hdr [4]byte
	if _, err := io.ReadFull(t.conn, hdr[:]); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	n := binary.BigEndian.Uint32(hdr[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (t *streamTransport) Close() error {
	return t.conn.Close()
}
