package cartel_test

import (
	"context"
	"io"
	"time"

	"github.com/nexuskernel/userworld/cartel"
	"github.com/nexuskernel/userworld/object"
	"github.com/nexuskernel/userworld/objerr"
	"github.com/nexuskernel/userworld/pipe"
	"github.com/nexuskernel/userworld/pollcache"
	"github.com/nexuskernel/userworld/unixsocket"
	"github.com/nexuskernel/userworld/wconfig"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newCartel() *cartel.Cartel {
	root, _ := newRoot()
	rootFn := func(context.Context) (*object.Object, error) { return root.Retain(), nil }
	cfg := wconfig.Default()
	cfg.DescriptorCap = 16
	c, err := cartel.New(context.Background(), 1, cfg, 0, 0, nil, unixsocket.NewNamespace(), rootFn, fakeOpener{})
	Expect(err).NotTo(HaveOccurred())
	return c
}

var _ = Describe("Cartel", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("opens, writes, reads back and closes a file", func() {
		c := newCartel()

		fd, err := c.Open(ctx, "greeting.txt", object.ORdWr|object.OCreate, 0)
		Expect(err).NotTo(HaveOccurred())

		n, err := c.Write(ctx, fd, []byte("hello"))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(5))

		_, err = c.Seek(ctx, fd, 0, io.SeekStart)
		Expect(err).NotTo(HaveOccurred())

		buf := make([]byte, 5)
		n, err = c.Read(ctx, fd, buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(buf[:n]).To(Equal([]byte("hello")))

		Expect(c.Close(ctx, fd)).To(Succeed())
		_, err = c.Read(ctx, fd, buf)
		Expect(err).To(HaveOccurred())
	})

	It("reports NotFound opening a missing path without OCreate", func() {
		c := newCartel()
		_, err := c.Open(ctx, "nope.txt", object.ORdOnly, 0)
		Expect(objerr.KindOf(err)).To(Equal(objerr.NotFound))
	})

	It("dups a descriptor so both fds share the same underlying object", func() {
		c := newCartel()
		fd, err := c.Open(ctx, "a.txt", object.ORdWr|object.OCreate, 0)
		Expect(err).NotTo(HaveOccurred())

		dup, err := c.Dup(fd, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(dup).NotTo(Equal(fd))

		Expect(c.Close(ctx, fd)).To(Succeed())
		_, err = c.Write(ctx, dup, []byte("y"))
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Close(ctx, dup)).To(Succeed())
	})

	It("dup2 closes whatever dst previously held", func() {
		c := newCartel()
		a, err := c.Open(ctx, "a.txt", object.ORdWr|object.OCreate, 0)
		Expect(err).NotTo(HaveOccurred())
		b, err := c.Open(ctx, "b.txt", object.ORdWr|object.OCreate, 0)
		Expect(err).NotTo(HaveOccurred())

		got, err := c.Dup2(ctx, a, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(b))
	})

	It("creates a subdirectory and chdirs into it", func() {
		c := newCartel()
		Expect(c.Chdir(ctx, "sub")).NotTo(Succeed()) // "sub" does not exist yet

		fd, err := c.Open(ctx, "sub", object.OStat|object.ODirectory|object.OCreate, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Close(ctx, fd)).To(Succeed())

		Expect(c.Chdir(ctx, "sub")).To(Succeed())
	})

	It("unlinks a name out of its parent directory", func() {
		c := newCartel()
		fd, err := c.Open(ctx, "doomed.txt", object.ORdWr|object.OCreate, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Close(ctx, fd)).To(Succeed())

		Expect(c.Unlink(ctx, "doomed.txt")).To(Succeed())
		Expect(c.Unlink(ctx, "doomed.txt")).NotTo(Succeed())
	})

	It("dumps the live descriptor table", func() {
		c := newCartel()
		fd, err := c.Open(ctx, "dumped.txt", object.ORdWr|object.OCreate, 0)
		Expect(err).NotTo(HaveOccurred())

		entries := c.Dump()
		Expect(entries).To(ContainElement(HaveField("Fd", fd)))
	})

	It("tears down by closing every live descriptor and stopping the flusher", func() {
		c := newCartel()
		_, err := c.Open(ctx, "t1.txt", object.ORdWr|object.OCreate, 0)
		Expect(err).NotTo(HaveOccurred())
		_, err = c.Open(ctx, "t2.txt", object.ORdWr|object.OCreate, 0)
		Expect(err).NotTo(HaveOccurred())

		Expect(c.Teardown(ctx)).To(Succeed())
		Expect(c.Dump()).To(BeEmpty())
	})

	It("reports a syscall outside this tree's backing as NotImplemented", func() {
		c := newCartel()
		err := c.Mkdir(ctx, "newdir", 0)
		Expect(objerr.KindOf(err)).To(Equal(objerr.NotImplemented))
	})

	Describe("Poll", func() {
		attachPipeRead := func(c *cartel.Cartel) (int, *pipe.End) {
			r, w := pipe.New(1, 2)
			fd, unreserve, err := c.Desc.Reserve()
			Expect(err).NotTo(HaveOccurred())
			obj := object.New(object.TypePipeRead, cartel.PipeMethods(), r, object.ORdOnly)
			Expect(c.Desc.Attach(fd, obj)).To(Succeed())
			_ = unreserve
			return fd, w
		}

		It("returns immediately when a descriptor is already readable", func() {
			c := newCartel()
			fd, w := attachPipeRead(c)
			_, err := w.Write(ctx, []byte("x"), false)
			Expect(err).NotTo(HaveOccurred())

			results, err := c.Poll(ctx, []int{fd}, []pollcache.EventMask{pollcache.EventRead}, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Fd).To(Equal(fd))
		})

		It("returns nil after the timeout when nothing becomes ready", func() {
			c := newCartel()
			fd, _ := attachPipeRead(c)

			results, err := c.Poll(ctx, []int{fd}, []pollcache.EventMask{pollcache.EventRead}, 30*time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("wakes once a previously-unready descriptor becomes ready mid-wait", func() {
			c := newCartel()
			fd, w := attachPipeRead(c)

			go func() {
				time.Sleep(30 * time.Millisecond)
				_, _ = w.Write(ctx, []byte("late"), false)
			}()

			results, err := c.Poll(ctx, []int{fd}, []pollcache.EventMask{pollcache.EventRead}, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
		})
	})

	Describe("unix-domain sockets", func() {
		It("binds, listens, connects and accepts a handshake", func() {
			c := newCartel()

			srvFd, err := c.Bind("svc", 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Listen(ctx, srvFd, 4)).To(Succeed())

			type acceptResult struct {
				fd  int
				err error
			}
			done := make(chan acceptResult, 1)
			go func() {
				fd, err := c.Accept(ctx, srvFd, false)
				done <- acceptResult{fd, err}
			}()

			time.Sleep(10 * time.Millisecond)

			clientFd, err := c.Connect(ctx, "svc", false)
			Expect(err).NotTo(HaveOccurred())

			res := <-done
			Expect(res.err).NotTo(HaveOccurred())
			Expect(res.fd).NotTo(Equal(-1))

			Expect(c.Shutdown(ctx, clientFd, 0)).To(Succeed())
			Expect(c.Shutdown(ctx, res.fd, 0)).To(Succeed())
		})

		It("fails to connect to a name nobody bound", func() {
			c := newCartel()
			_, err := c.Connect(ctx, "nobody", false)
			Expect(objerr.KindOf(err)).To(Equal(objerr.NotFound))
		})
	})
})
