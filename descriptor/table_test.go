package descriptor_test

import (
	"context"

	"github.com/nexuskernel/userworld/descriptor"
	"github.com/nexuskernel/userworld/object"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newFileObject() *object.Object {
	return object.New(object.TypeFile, object.UnimplementedMethods{}, nil, object.ORdWr)
}

var _ = Describe("Table", func() {
	var (
		ctx context.Context
		tbl *descriptor.Table
	)

	BeforeEach(func() {
		ctx = context.Background()
		tbl = descriptor.NewTable(4)
	})

	It("reserves the lowest free slot and rejects lookup before attach", func() {
		fd, unreserve, err := tbl.Reserve()
		Expect(err).NotTo(HaveOccurred())
		Expect(fd).To(Equal(0))

		_, err = tbl.Find(fd)
		Expect(err).To(HaveOccurred())

		unreserve()
		fd2, _, err := tbl.Reserve()
		Expect(err).NotTo(HaveOccurred())
		Expect(fd2).To(Equal(0))
	})

	It("attaches an object and makes it visible to Find with a bumped refcount", func() {
		fd, _, err := tbl.Reserve()
		Expect(err).NotTo(HaveOccurred())

		o := newFileObject()
		Expect(tbl.Attach(fd, o)).To(Succeed())

		found, err := tbl.Find(fd)
		Expect(err).NotTo(HaveOccurred())
		Expect(found.RefCount()).To(Equal(int32(2)))
		Expect(found.Release(ctx)).To(Succeed())
	})

	It("exhausts capacity with NoFreeHandles", func() {
		for i := 0; i < 4; i++ {
			_, _, err := tbl.Reserve()
			Expect(err).NotTo(HaveOccurred())
		}
		_, _, err := tbl.Reserve()
		Expect(err).To(HaveOccurred())
	})

	It("short-circuits dup2(fd, fd) to success without touching refcount", func() {
		fd, _, _ := tbl.Reserve()
		o := newFileObject()
		Expect(tbl.Attach(fd, o)).To(Succeed())

		got, err := tbl.Dup2(ctx, fd, fd)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(fd))
		Expect(o.RefCount()).To(Equal(int32(1)))
	})

	It("dup2 closes whatever dst previously held", func() {
		srcFd, _, _ := tbl.Reserve()
		src := newFileObject()
		Expect(tbl.Attach(srcFd, src)).To(Succeed())

		dstFd, _, _ := tbl.Reserve()
		dst := newFileObject()
		Expect(tbl.Attach(dstFd, dst)).To(Succeed())

		_, err := tbl.Dup2(ctx, srcFd, dstFd)
		Expect(err).NotTo(HaveOccurred())
		Expect(dst.RefCount()).To(Equal(int32(0)))

		found, err := tbl.Find(dstFd)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeIdenticalTo(src))
		Expect(found.Release(ctx)).To(Succeed())
	})

	It("rejects Find, Dup, Dup2, Close on an invalid fd", func() {
		_, err := tbl.Find(99)
		Expect(err).To(HaveOccurred())

		_, err = tbl.Dup(99, 0)
		Expect(err).To(HaveOccurred())

		_, err = tbl.Dup2(ctx, 99, 0)
		Expect(err).To(HaveOccurred())

		err = tbl.Close(ctx, 99)
		Expect(err).To(HaveOccurred())
	})

	It("Dump reports fd, type and refcount for populated slots only", func() {
		fd, _, _ := tbl.Reserve()
		Expect(tbl.Attach(fd, newFileObject())).To(Succeed())

		entries := tbl.Dump()
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Fd).To(Equal(fd))
		Expect(entries[0].Type).To(Equal(object.TypeFile.String()))
		Expect(entries[0].RefCount).To(Equal(int32(1)))
	})

	It("Close releases the object and frees the slot for reuse", func() {
		fd, _, _ := tbl.Reserve()
		o := newFileObject()
		Expect(tbl.Attach(fd, o)).To(Succeed())

		Expect(tbl.Close(ctx, fd)).To(Succeed())
		Expect(o.RefCount()).To(Equal(int32(0)))

		_, err := tbl.Find(fd)
		Expect(err).To(HaveOccurred())
	})
})
