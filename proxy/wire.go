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
	"errors"

	"github.com/fxamacker/cbor/v2"
	"github.com/nexuskernel/userworld/objerr"
)

// FragmentSize is the maximum encoded size of one wire fragment.
const FragmentSize = 64

// Token routes an in-flight fragment to its call, the way encoding/mux
// routes a line to its channel by rune key. A cancellation reuses the
// Token of the call it targets, tagged with Cancel, rather than a
// dedicated sentinel value.
type Token uint32

// Header is the common reply prefix: total size, closed-enum status (with
// the severe-error bit possibly set), and the remote file handle the reply
// concerns.
type Header struct {
	Size       uint32      `cbor:"1,keyasint"`
	Status     objerr.Kind `cbor:"2,keyasint"`
	FileHandle uint32      `cbor:"3,keyasint"`
}

// PollUpdate is the generation-tagged readiness snapshot piggybacked on a
// reply for a pollable handle.
type PollUpdate struct {
	Events     int16  `cbor:"1,keyasint"`
	Generation uint32 `cbor:"2,keyasint"`
}

// frame is one wire fragment. A full message is one or more frames sharing
// Token; Final marks the last.
type frame struct {
	Token   Token       `cbor:"1,keyasint"`
	Final   bool        `cbor:"2,keyasint"`
	Cancel  bool        `cbor:"3,keyasint,omitempty"`
	Header  *Header     `cbor:"4,keyasint,omitempty"`
	Poll    *PollUpdate `cbor:"5,keyasint,omitempty"`
	Payload []byte      `cbor:"6,keyasint,omitempty"`
	OpCode  uint32      `cbor:"7,keyasint,omitempty"`
}

func encodeFrame(fr frame) ([]byte, error) {
	b, err := cbor.Marshal(fr)
	if err != nil {
		return nil, objerr.New(objerr.BadParam, err)
	}
	return b, nil
}

func decodeFrame(b []byte) (frame, error) {
	var fr frame
	if err := cbor.Unmarshal(b, &fr); err != nil {
		return frame{}, objerr.New(objerr.BadParam, err)
	}
	return fr, nil
}

// ErrTransientFull is the sentinel a Transport returns from Send to signal
// a backoff-worthy full-queue condition rather than a fatal disconnect.
var ErrTransientFull = errors.New("proxy: transport queue full")
