package cartel_test

import (
	"context"

	"github.com/nexuskernel/userworld/cartel"
	"github.com/nexuskernel/userworld/object"
	"github.com/nexuskernel/userworld/objerr"
	"github.com/nexuskernel/userworld/vmfs"
)

// memBacking is an in-memory vmfs.Backing, the same shape vmfs' own tests
// use, kept small since cartel's tests only need to prove files round-trip
// through the descriptor table, not exercise the cache itself.
type memBacking struct {
	data []byte
}

func (b *memBacking) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b.data)) {
		return 0, nil
	}
	n := copy(p, b.data[off:])
	return n, nil
}

func (b *memBacking) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[off:end], p)
	return len(p), nil
}

func (b *memBacking) Size() (uint64, error) { return uint64(len(b.data)), nil }

func (b *memBacking) Truncate(size uint64) error {
	if int64(size) <= int64(len(b.data)) {
		b.data = b.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, b.data)
	b.data = grown
	return nil
}

// fakeNode is an in-memory directory-tree node, the same fixture shape
// pathwalk's own tests use.
type fakeNode struct {
	isDir    bool
	isFile   bool
	backing  *memBacking
	children map[string]*fakeNode
}

func dirObject(n *fakeNode) *object.Object {
	return object.New(object.TypeFile, object.UnimplementedMethods{}, n, object.OStat|object.ODirectory)
}

type fakeOpener struct{}

func (fakeOpener) OpenArc(ctx context.Context, dir *object.Object, arc string, flags object.Flags, mode uint32) (*object.Object, error) {
	dn, ok := dir.Variant().(*fakeNode)
	if !ok || !dn.isDir {
		return nil, objerr.New(objerr.NotADirectory)
	}
	if arc == "." {
		return dirObject(dn), nil
	}

	child, ok := dn.children[arc]
	if !ok {
		if !flags.Has(object.OCreate) {
			return nil, objerr.New(objerr.NotFound)
		}
		if flags.Has(object.ODirectory) {
			nc := &fakeNode{isDir: true, children: map[string]*fakeNode{}}
			dn.children[arc] = nc
			return dirObject(nc), nil
		}
		nc := &fakeNode{isFile: true, backing: &memBacking{}}
		dn.children[arc] = nc
		return cartel.NewFileObject(arc, nc.backing, flags), nil
	}

	if child.isDir {
		return dirObject(child), nil
	}
	return cartel.NewFileObject(arc, child.backing, flags), nil
}

func (fakeOpener) ReadLink(context.Context, *object.Object) (string, error) {
	return "", objerr.New(objerr.NotSupported)
}

func (fakeOpener) Unlink(ctx context.Context, dir *object.Object, arc string) error {
	dn := dir.Variant().(*fakeNode)
	if _, ok := dn.children[arc]; !ok {
		return objerr.New(objerr.NotFound)
	}
	delete(dn.children, arc)
	return nil
}

func newRoot() (*object.Object, *fakeNode) {
	root := &fakeNode{isDir: true, children: map[string]*fakeNode{}}
	return dirObject(root), root
}
