package unixsocket_test

import (
	"context"
	"time"

	"github.com/nexuskernel/userworld/objerr"
	"github.com/nexuskernel/userworld/unixsocket"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Namespace and Server", func() {
	var (
		ctx context.Context
		ns  *unixsocket.Namespace
	)

	BeforeEach(func() {
		ctx = context.Background()
		ns = unixsocket.NewNamespace()
	})

	It("rejects a second bind of the same name with Exists", func() {
		_, err := ns.Bind("/ns", 8)
		Expect(err).NotTo(HaveOccurred())

		_, err = ns.Bind("/ns", 8)
		Expect(objerr.KindOf(err)).To(Equal(objerr.Exists))
	})

	It("connects and accepts end-to-end with working data I/O", func() {
		s, err := ns.Bind("/ns", 8)
		Expect(err).NotTo(HaveOccurred())
		s.Listen(8)

		g := &unixsocket.Generic{}
		connectResult := make(chan *unixsocket.Data, 1)
		go func() {
			d, err := g.Connect(ctx, s, 1, 42, false)
			Expect(err).NotTo(HaveOccurred())
			connectResult <- d
		}()

		time.Sleep(20 * time.Millisecond)
		accepted, err := s.Accept(ctx, 2, false)
		Expect(err).NotTo(HaveOccurred())

		var connected *unixsocket.Data
		Eventually(connectResult).Should(Receive(&connected))

		n, err := connected.Write(ctx, []byte("ping"), false)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(4))

		buf := make([]byte, 16)
		n, err = accepted.Read(ctx, buf, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf[:n])).To(Equal("ping"))
	})

	It("refuses the sixth connect and admits a seventh after one accept (spec boundary scenario)", func() {
		s, err := ns.Bind("/ns", 5)
		Expect(err).NotTo(HaveOccurred())
		s.Listen(5)

		for i := 0; i < 5; i++ {
			g := &unixsocket.Generic{}
			go g.Connect(ctx, s, unixsocket.CartelRef(i+1), uint64(i+1), false)
		}
		time.Sleep(20 * time.Millisecond)

		sixth := &unixsocket.Generic{}
		_, err = sixth.Connect(ctx, s, 99, 99, true)
		Expect(objerr.KindOf(err)).To(Equal(objerr.LimitExceeded))

		_, err = s.Accept(ctx, 100, false)
		Expect(err).NotTo(HaveOccurred())

		seventh := &unixsocket.Generic{}
		_, err = seventh.Connect(ctx, s, 101, 101, true)
		Expect(objerr.KindOf(err)).To(Equal(objerr.WouldBlock))
	})

	It("refuses all pending connects when the name is unlinked", func() {
		s, err := ns.Bind("/ns", 4)
		Expect(err).NotTo(HaveOccurred())
		s.Listen(4)

		g := &unixsocket.Generic{}
		result := make(chan error, 1)
		go func() {
			_, err := g.Connect(ctx, s, 1, 1, false)
			result <- err
		}()

		time.Sleep(20 * time.Millisecond)
		ns.Unlink("/ns")

		var connectErr error
		Eventually(result).Should(Receive(&connectErr))
		Expect(objerr.KindOf(connectErr)).To(Equal(objerr.EConnRefused))
	})

	It("returns EConnRefused connecting to a name that is bound but not listening", func() {
		s, err := ns.Bind("/ns", 4)
		Expect(err).NotTo(HaveOccurred())

		g := &unixsocket.Generic{}
		_, err = g.Connect(ctx, s, 1, 1, true)
		Expect(objerr.KindOf(err)).To(Equal(objerr.EConnRefused))
	})
})
