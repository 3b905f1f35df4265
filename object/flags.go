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

package object

import "github.com/bits-and-blooms/bitset"

// Flags is the open-flags bitset carried by every Object. The bit values are
// the wire-compatible ones from spec §6 so the proxy layer can pass them
// through unchanged; accessed through a bitset.BitSet so the wire's superset
// bitmap and the local flag space never drift out of sync even as more bits
// are added.
type Flags uint32

const (
	AccessMask Flags = 0x3 // low two bits: RDONLY=0, WRONLY=1, RDWR=2
	ORdOnly    Flags = 0
	OWrOnly    Flags = 1
	ORdWr      Flags = 2
	OStat      Flags = 0x80000003

	OCreate    Flags = 0x40
	OExclusive Flags = 0x80
	OTruncate  Flags = 0x200
	OAppend    Flags = 0x400
	ONonBlock  Flags = 0x800
	OSync      Flags = 0x1000
	ODirectory Flags = 0x10000
	ONoFollow  Flags = 0x20000
)

// bits renders f as a bitset.BitSet for membership tests that read more
// naturally than repeated `&` against 32 literal constants.
func (f Flags) bits() *bitset.BitSet {
	b := bitset.New(32)
	for i := uint(0); i < 32; i++ {
		if f&(1<<i) != 0 {
			b.Set(i)
		}
	}
	return b
}

// Has reports whether every bit in mask is set in f.
func (f Flags) Has(mask Flags) bool {
	return f.bits().IsSuperSet(mask.bits())
}

// Access returns the access-mode low bits (RDONLY/WRONLY/RDWR/STAT).
func (f Flags) Access() Flags {
	if f&OStat == OStat {
		return OStat
	}
	return f & AccessMask
}

// Readable/Writable report whether the access mode permits the given
// direction; STAT-only opens permit neither.
func (f Flags) Readable() bool {
	a := f.Access()
	return a == ORdOnly || a == ORdWr
}

func (f Flags) Writable() bool {
	a := f.Access()
	return a == OWrOnly || a == ORdWr
}
