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

package objerr

// Kind is the closed error enumeration surfaced by every operation in the
// subsystem. Unlike an HTTP-style numeric CodeError, Kind is a fixed set: no
// caller is expected to register new values at runtime.
type Kind uint32

const (
	Ok Kind = iota
	Exists
	NotFound
	NoAccess
	NotADirectory
	IsADirectory
	IsSymlink
	NameTooLong
	CrossDevice
	BadParam
	InvalidHandle
	NoMemory
	NoResources
	NoFreeHandles
	BrokenPipe
	WouldBlock
	StatusPending
	WaitInterrupted
	Timeout
	IsDisconnected
	LimitExceeded
	NotSupported
	NotImplemented
	IllegalSeek
	NotASocket
	AddrFamUnsupp
	EConnRefused
	EAddrInUse
	Busy
)

// severeBit mirrors the wire-level severe-error flag from spec §6/§7: a proxy
// reply may OR this into its status word to mean "the remote could not marshal
// a full reply; treat what arrived as fully failed". It never appears in a Kind
// value once Severe has stripped it back out.
const severeBit Kind = 1 << 31

var kindNames = map[Kind]string{
	Ok:              "ok",
	Exists:          "exists",
	NotFound:        "not found",
	NoAccess:        "no access",
	NotADirectory:   "not a directory",
	IsADirectory:    "is a directory",
	IsSymlink:       "is a symlink",
	NameTooLong:     "name too long",
	CrossDevice:     "cross device",
	BadParam:        "bad parameter",
	InvalidHandle:   "invalid handle",
	NoMemory:        "no memory",
	NoResources:     "no resources",
	NoFreeHandles:   "no free handles",
	BrokenPipe:      "broken pipe",
	WouldBlock:      "would block",
	StatusPending:   "status pending",
	WaitInterrupted: "wait interrupted",
	Timeout:         "timeout",
	IsDisconnected:  "disconnected",
	LimitExceeded:   "limit exceeded",
	NotSupported:    "not supported",
	NotImplemented:  "not implemented",
	IllegalSeek:     "illegal seek",
	NotASocket:      "not a socket",
	AddrFamUnsupp:   "address family unsupported",
	EConnRefused:    "connection refused",
	EAddrInUse:      "address in use",
	Busy:            "busy",
}

// String implements fmt.Stringer. An unregistered Kind (which should not occur
// for values produced by this package) prints as its numeric form.
func (k Kind) String() string {
	if k.isSevere() {
		return "severe:" + k.stripSevere().String()
	}
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "kind(" + itoa(uint32(k)) + ")"
}

func (k Kind) isSevere() bool     { return k&severeBit != 0 }
func (k Kind) stripSevere() Kind  { return k &^ severeBit }
func MarkSevere(k Kind) Kind      { return k | severeBit }
func Severe(k Kind) (Kind, bool)  { return k.stripSevere(), k.isSevere() }

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
