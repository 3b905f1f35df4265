package main

import (
	"context"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("streamTransport", func() {
	It("round-trips a fragment across a connected pair", func() {
		a, b := net.Pipe()
		defer a.Close()
		defer b.Close()

		ta := newStreamTransport(a)
		tb := newStreamTransport(b)

		done := make(chan []byte, 1)
		go func() {
			frag, err := tb.Recv(context.Background())
			Expect(err).NotTo(HaveOccurred())
			done <- frag
		}()

		Expect(ta.Send([]byte("fragment-payload"))).To(Succeed())
		Eventually(done).Should(Receive(Equal([]byte("fragment-payload"))))
	})

	It("unblocks Recv when its context is cancelled", func() {
		a, b := net.Pipe()
		defer a.Close()
		defer b.Close()

		tb := newStreamTransport(b)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := tb.Recv(ctx)
		Expect(err).To(HaveOccurred())
	})
})
