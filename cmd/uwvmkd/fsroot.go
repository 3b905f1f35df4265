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
	"os"
	"path/filepath"

	"github.com/nexuskernel/userworld/cartel"
	"github.com/nexuskernel/userworld/object"
	"github.com/nexuskernel/userworld/objerr"
	"github.com/nexuskernel/userworld/pathwalk"
)

// osBacking is a vmfs.Backing over one real file on the host, standing in
// for the VMFS volume a production vmkernel would address directly.
type osBacking struct {
	f *os.File
}

func (b *osBacking) ReadAt(p []byte, off int64) (int, error)  { return b.f.ReadAt(p, off) }
func (b *osBacking) WriteAt(p []byte, off int64) (int, error) { return b.f.WriteAt(p, off) }

func (b *osBacking) Size() (uint64, error) {
	fi, err := b.f.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(fi.Size()), nil
}

func (b *osBacking) Truncate(size uint64) error {
	return b.f.Truncate(int64(size))
}

// osDir is the directory-node variant: an absolute host path.
type osDir struct {
	path string
}

func dirObject(path string) *object.Object {
	return object.New(object.TypeFile, object.UnimplementedMethods{}, &osDir{path: path}, object.OStat|object.ODirectory)
}

// newRoot returns the pathwalk.RootFunc a Cartel resolves relative paths
// against, rooted at base on the host filesystem.
func newRoot(base string) pathwalk.RootFunc {
	return func(context.Context) (*object.Object, error) {
		return dirObject(base), nil
	}
}

// osOpener resolves one path arc at a time against the host filesystem,
// mirroring pathwalk's own test fixture shape but backed by real files
// instead of an in-memory tree.
type osOpener struct{}

func osFlagsFor(flags object.Flags) int {
	var f int
	switch flags.Access() {
	case object.OWrOnly:
		f = os.O_WRONLY
	case object.ORdWr:
		f = os.O_RDWR
	default:
		f = os.O_RDONLY
	}
	if flags.Has(object.OCreate) {
		f |= os.O_CREATE
	}
	if flags.Has(object.OExclusive) {
		f |= os.O_EXCL
	}
	if flags.Has(object.OTruncate) {
		f |= os.O_TRUNC
	}
	if flags.Has(object.OAppend) {
		f |= os.O_APPEND
	}
	return f
}

func (osOpener) OpenArc(_ context.Context, dir *object.Object, arc string, flags object.Flags, mode uint32) (*object.Object, error) {
	dn, ok := dir.Variant().(*osDir)
	if !ok {
		return nil, objerr.New(objerr.NotADirectory)
	}
	if arc == "." {
		return dirObject(dn.path), nil
	}
	child := filepath.Join(dn.path, arc)

	fi, statErr := os.Lstat(child)
	switch {
	case statErr == nil && fi.IsDir():
		return dirObject(child), nil
	case statErr == nil:
		f, err := os.OpenFile(child, osFlagsFor(flags), os.FileMode(mode))
		if err != nil {
			return nil, objerr.New(objerr.BadParam, err)
		}
		return cartel.NewFileObject(arc, &osBacking{f: f}, flags), nil
	case !os.IsNotExist(statErr):
		return nil, objerr.New(objerr.BadParam, statErr)
	case !flags.Has(object.OCreate):
		return nil, objerr.New(objerr.NotFound)
	case flags.Has(object.ODirectory):
		if err := os.Mkdir(child, os.FileMode(mode)|0700); err != nil {
			return nil, objerr.New(objerr.BadParam, err)
		}
		return dirObject(child), nil
	default:
		f, err := os.OpenFile(child, osFlagsFor(flags), os.FileMode(mode))
		if err != nil {
			return nil, objerr.New(objerr.BadParam, err)
		}
		return cartel.NewFileObject(arc, &osBacking{f: f}, flags), nil
	}
}

func (osOpener) ReadLink(_ context.Context, o *object.Object) (string, error) {
	dn, ok := o.Variant().(*osDir)
	if !ok {
		return "", objerr.New(objerr.NotSupported)
	}
	target, err := os.Readlink(dn.path)
	if err != nil {
		return "", objerr.New(objerr.BadParam, err)
	}
	return target, nil
}

func (osOpener) Unlink(_ context.Context, dir *object.Object, arc string) error {
	dn, ok := dir.Variant().(*osDir)
	if !ok {
		return objerr.New(objerr.NotADirectory)
	}
	if err := os.Remove(filepath.Join(dn.path, arc)); err != nil {
		if os.IsNotExist(err) {
			return objerr.New(objerr.NotFound)
		}
		return objerr.New(objerr.BadParam, err)
	}
	return nil
}
