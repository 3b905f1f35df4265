package pipe_test

import (
	"context"
	"time"

	"github.com/nexuskernel/userworld/objerr"
	"github.com/nexuskernel/userworld/pipe"
	"github.com/nexuskernel/userworld/pollcache"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeSignaler struct{ raised chan pipe.CartelRef }

func (f *fakeSignaler) Raise(c pipe.CartelRef) error {
	f.raised <- c
	return nil
}

var _ = Describe("Pipe", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("reads back exactly what was written", func() {
		r, w := pipe.New(1, 2)
		n, err := w.Write(ctx, []byte("hello"), false)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(5))

		buf := make([]byte, 16)
		n, err = r.Read(ctx, buf, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf[:n])).To(Equal("hello"))
	})

	It("returns EOF after writer close once the buffer drains", func() {
		r, w := pipe.New(1, 2)
		_, _ = w.Write(ctx, []byte("hi"), false)
		Expect(w.Close()).To(Succeed())

		buf := make([]byte, 16)
		n, err := r.Read(ctx, buf, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf[:n])).To(Equal("hi"))

		n, err = r.Read(ctx, buf, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
	})

	It("blocks a write larger than the writable window at exactly 513 bytes", func() {
		r, w := pipe.New(1, 2)
		big := make([]byte, pipe.BufferSize+1)

		done := make(chan struct{})
		go func() {
			n, err := w.Write(ctx, big, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(len(big)))
			close(done)
		}()

		time.Sleep(20 * time.Millisecond)
		buf := make([]byte, len(big))
		total := 0
		for total < len(big) {
			n, err := r.Read(ctx, buf[total:], false)
			Expect(err).NotTo(HaveOccurred())
			total += n
		}
		Eventually(done).Should(BeClosed())
	})

	It("rejects a non-blocking write that cannot fit atomically", func() {
		r, w := pipe.New(1, 2)
		_ = r // keep reader open so writer does not see BrokenPipe
		_, err := w.Write(ctx, make([]byte, 400), true)
		Expect(err).NotTo(HaveOccurred())

		_, err = w.Write(ctx, make([]byte, 200), true)
		Expect(objerr.KindOf(err)).To(Equal(objerr.WouldBlock))
	})

	It("wakes a blocked reader and delivers written bytes", func() {
		r, w := pipe.New(1, 2)

		result := make(chan string, 1)
		go func() {
			buf := make([]byte, 16)
			n, err := r.Read(ctx, buf, false)
			Expect(err).NotTo(HaveOccurred())
			result <- string(buf[:n])
		}()

		time.Sleep(20 * time.Millisecond)
		_, err := w.Write(ctx, []byte("woken"), false)
		Expect(err).NotTo(HaveOccurred())

		Eventually(result).Should(Receive(Equal("woken")))
	})

	It("raises SIGPIPE at the writer and fails the write with BrokenPipe on reader close", func() {
		signaler := &fakeSignaler{raised: make(chan pipe.CartelRef, 2)}
		r, w := pipe.NewWithSignaler(1, 2, signaler)

		Expect(r.Close()).To(Succeed())
		_, err := w.Write(ctx, []byte("x"), false)
		Expect(objerr.KindOf(err)).To(Equal(objerr.BrokenPipe))
		Expect(<-signaler.raised).To(Equal(pipe.CartelRef(2)))
	})

	It("reports poll readiness per end", func() {
		r, w := pipe.New(1, 2)

		Expect(w.Poll(0) & pollcache.EventWrite).NotTo(BeZero())
		Expect(r.Poll(0) & pollcache.EventRead).To(BeZero())

		_, _ = w.Write(ctx, []byte("x"), false)
		Expect(r.Poll(0) & pollcache.EventRead).NotTo(BeZero())

		Expect(w.Close()).To(Succeed())
		_, _ = r.Read(ctx, make([]byte, 1), false)
		Expect(r.Poll(0) & pollcache.EventWrHup).NotTo(BeZero())
	})

	It("passes a single fd through the single-slot mechanism", func() {
		r, w := pipe.New(1, 2)

		Expect(w.SendFD(7)).To(Succeed())
		Expect(objerr.KindOf(w.SendFD(8))).To(Equal(objerr.LimitExceeded))

		id, err := r.RecvFD()
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal(int32(7)))

		_, err = r.RecvFD()
		Expect(objerr.KindOf(err)).To(Equal(objerr.NotFound))
	})
})
