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

package pathwalk

import (
	"context"
	"strings"

	"github.com/nexuskernel/userworld/object"
	"github.com/nexuskernel/userworld/objerr"
)

// Flags controls traversal behaviour, distinct from object.Flags which
// controls how the final arc is opened.
type Flags uint32

const (
	IgnTrailing Flags = 1 << iota
	NoFollow
	Penultimate
	Create
	Exclusive
)

func (f Flags) has(m Flags) bool { return f&m != 0 }

const (
	MaxArcLen       = 255
	MaxPathLen      = 255
	MaxSymlinkDepth = 10
)

// RootFunc resolves the cartel's root object, called for every absolute
// path and every absolute symlink target encountered during a walk.
type RootFunc func(ctx context.Context) (*object.Object, error)

// Opener performs the single-arc descend that only a directory-shaped
// variant (a VMFS directory, a proxy-backed directory) knows how to do.
// pathwalk itself never type-asserts an object's variant.
type Opener interface {
	// OpenArc resolves arc within dir using flags/mode. When the arc names
	// a symlink and flags does not itself resolve it, OpenArc returns both
	// the symlink object and an IsSymlink-kind error so the caller can read
	// its target with ReadLink before releasing it.
	OpenArc(ctx context.Context, dir *object.Object, arc string, flags object.Flags, mode uint32) (*object.Object, error)

	// ReadLink returns the stored target of a symlink object returned by
	// OpenArc alongside an IsSymlink error.
	ReadLink(ctx context.Context, o *object.Object) (string, error)
}

// Result is either a fully resolved object (Arc == "") or the last
// directory walked plus the single remaining arc name - the latter shape
// covers both "final component does not exist" and Penultimate lookups.
type Result struct {
	Obj *object.Object
	Dir *object.Object
	Arc string
}

// Walk resolves path starting from start (relative paths) or the cartel
// root (absolute paths, via root), applying traversal flags and opening
// the final arc with objFlags/mode.
func Walk(ctx context.Context, start *object.Object, root RootFunc, opener Opener, path string, flags Flags, objFlags object.Flags, mode uint32) (Result, error) {
	if len(path) > MaxPathLen {
		return Result{}, objerr.New(objerr.NameTooLong)
	}

	var cur *object.Object
	var remaining string

	if strings.HasPrefix(path, "/") {
		r, err := root(ctx)
		if err != nil {
			return Result{}, err
		}
		cur = r
		remaining = path[1:]
	} else {
		cur = start.Retain()
		remaining = path
	}

	arcs := splitArcs(remaining)
	if strings.HasSuffix(path, "/") && path != "/" && !flags.has(IgnTrailing) {
		arcs = append(arcs, "")
	}

	return walkLoop(ctx, cur, root, opener, arcs, flags, objFlags, mode, 0)
}

func splitArcs(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func release(ctx context.Context, o *object.Object) {
	if o != nil {
		_ = o.Release(ctx)
	}
}

func walkLoop(ctx context.Context, cur *object.Object, root RootFunc, opener Opener, arcs []string, flags Flags, objFlags object.Flags, mode uint32, depth int) (Result, error) {
	for {
		if len(arcs) == 0 {
			return Result{Obj: cur}, nil
		}

		arc := arcs[0]
		rest := arcs[1:]
		isFinal := len(rest) == 0

		if isFinal && flags.has(Penultimate) {
			return Result{Dir: cur, Arc: arc}, nil
		}

		if len(arc) > MaxArcLen {
			release(ctx, cur)
			return Result{}, objerr.New(objerr.NameTooLong)
		}

		// arc == "" only occurs as the trailing-slash marker (rule 2):
		// verify cur is itself open-able as a directory.
		if arc == "" {
			sub, err := opener.OpenArc(ctx, cur, ".", object.OStat, 0)
			release(ctx, cur)
			if err != nil {
				return Result{}, err
			}
			cur = sub
			arcs = rest
			continue
		}

		wantFlags := object.OStat
		if isFinal {
			wantFlags = objFlags
			if flags.has(Create) {
				wantFlags |= object.OCreate
			}
			if flags.has(Exclusive) {
				wantFlags |= object.OExclusive
			}
		}

		child, err := opener.OpenArc(ctx, cur, arc, wantFlags, mode)
		if err != nil {
			kind := objerr.KindOf(err)

			if kind == objerr.IsSymlink && isFinal && flags.has(NoFollow) {
				// Final arc, NoFollow: the symlink itself is the result.
				release(ctx, cur)
				return Result{Obj: child}, nil
			}

			if kind == objerr.IsSymlink {
				if depth >= MaxSymlinkDepth {
					release(ctx, cur)
					release(ctx, child)
					return Result{}, objerr.New(objerr.LimitExceeded)
				}

				target, lerr := opener.ReadLink(ctx, child)
				release(ctx, child)
				if lerr != nil {
					release(ctx, cur)
					return Result{}, lerr
				}

				var newArcs []string
				if strings.HasPrefix(target, "/") {
					r, rerr := root(ctx)
					if rerr != nil {
						release(ctx, cur)
						return Result{}, rerr
					}
					release(ctx, cur)
					cur = r
					newArcs = splitArcs(target[1:])
				} else {
					newArcs = splitArcs(target)
				}

				arcs = append(newArcs, rest...)
				depth++
				continue
			}

			if isFinal && kind == objerr.NotFound && !flags.has(Create) {
				return Result{Dir: cur, Arc: arc}, nil
			}

			release(ctx, cur)
			return Result{}, err
		}

		if !isFinal {
			release(ctx, cur)
			cur = child
			arcs = rest
			continue
		}

		release(ctx, cur)
		return Result{Obj: child}, nil
	}
}
