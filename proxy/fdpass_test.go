package proxy

import (
	"context"

	"github.com/nexuskernel/userworld/descriptor"
	"github.com/nexuskernel/userworld/object"
	"github.com/nexuskernel/userworld/objerr"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeFileMethods struct {
	object.UnimplementedMethods
}

func newProxyObj() *object.Object {
	return object.New(object.TypeProxyFile, fakeFileMethods{}, nil, 0)
}

var _ = Describe("fd passing", func() {
	It("installs a batch of incoming objects atomically", func() {
		tbl := descriptor.NewTable(4)
		objs := []*object.Object{newProxyObj(), newProxyObj(), newProxyObj()}

		fds, err := IncomingFDs(context.Background(), tbl, objs)
		Expect(err).NotTo(HaveOccurred())
		Expect(fds).To(HaveLen(3))

		for _, fd := range fds {
			found, err := tbl.Find(fd)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.Type()).To(Equal(object.TypeProxyFile))
			Expect(found.Release(context.Background())).To(Succeed())
		}
	})

	It("rolls back every reserved slot when the table is too small for the batch", func() {
		tbl := descriptor.NewTable(2)
		objs := []*object.Object{newProxyObj(), newProxyObj(), newProxyObj()}

		fds, err := IncomingFDs(context.Background(), tbl, objs)
		Expect(err).To(HaveOccurred())
		Expect(fds).To(BeNil())

		more, _, err := tbl.Reserve()
		Expect(err).NotTo(HaveOccurred())
		_, _, err = tbl.Reserve()
		Expect(err).NotTo(HaveOccurred())
		tbl.Unreserve(more)
	})

	It("resolves a batch of outgoing descriptors and releases them together", func() {
		tbl := descriptor.NewTable(4)
		fd, unreserve, err := tbl.Reserve()
		Expect(err).NotTo(HaveOccurred())
		o := newProxyObj()
		Expect(tbl.Attach(fd, o)).To(Succeed())
		_ = unreserve

		objs, release, err := OutgoingFDs(context.Background(), tbl, []int{fd})
		Expect(err).NotTo(HaveOccurred())
		Expect(objs).To(HaveLen(1))
		Expect(o.RefCount()).To(Equal(int32(2)))

		release()
		Expect(o.RefCount()).To(Equal(int32(1)))
	})

	It("reports InvalidHandle and releases prior lookups when one descriptor is bad", func() {
		tbl := descriptor.NewTable(4)
		fd, _, err := tbl.Reserve()
		Expect(err).NotTo(HaveOccurred())
		o := newProxyObj()
		Expect(tbl.Attach(fd, o)).To(Succeed())

		_, _, err = OutgoingFDs(context.Background(), tbl, []int{fd, 99})
		Expect(objerr.KindOf(err)).To(Equal(objerr.InvalidHandle))
		Expect(o.RefCount()).To(Equal(int32(1)))
	})
})
