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

import (
	"fmt"
	"runtime"
)

// Error is the concrete error type returned throughout the subsystem. It
// carries a Kind, an optional parent (the error being wrapped, e.g. a
// transport failure translated into IsDisconnected), and the call site that
// constructed it.
type Error struct {
	kind   Kind
	parent error
	file   string
	line   int
}

// New constructs an Error of the given kind, optionally wrapping a parent.
// Ok always returns nil, the same way http.StatusOK-shaped sentinels are
// never materialized as errors.
func New(kind Kind, parent ...error) error {
	if kind == Ok {
		return nil
	}

	e := &Error{kind: kind}
	if len(parent) > 0 {
		e.parent = parent[0]
	}

	if _, file, line, ok := runtime.Caller(1); ok {
		e.file, e.line = file, line
	}

	return e
}

func (e *Error) Error() string {
	if e.parent != nil {
		return fmt.Sprintf("%s: %s", e.kind.String(), e.parent.Error())
	}
	return e.kind.String()
}

func (e *Error) Unwrap() error { return e.parent }

// Kind returns the closed error code for e. KindOf is the usual entry point
// from outside this package (handles nil and foreign errors).
func (e *Error) Kind() Kind { return e.kind }

// Where returns the file:line that constructed e, for debug logging only.
func (e *Error) Where() (file string, line int) { return e.file, e.line }

// KindOf extracts the Kind carried by err, or Ok if err is nil, or BadParam
// if err is a foreign error this package did not construct (the facade must
// never panic on an error it cannot classify).
func KindOf(err error) Kind {
	if err == nil {
		return Ok
	}
	if e, ok := err.(*Error); ok {
		return e.kind
	}
	return BadParam
}

// Is reports whether err carries the given Kind, as KindOf reports it: only
// err itself is examined, and an *Error wrapped inside a foreign error is not
// unwrapped.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Partial implements spec §7 "partial progress": any operation that
// completed at least one byte of user work suppresses a trailing non-Ok
// status to Ok; the next call observes the error. Callers pass the error
// they were about to return and the number of bytes actually transferred.
func Partial(n int, err error) error {
	if n > 0 {
		return nil
	}
	return err
}
