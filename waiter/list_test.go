package waiter_test

import (
	"github.com/nexuskernel/userworld/waiter"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("List", func() {
	var l *waiter.List

	BeforeEach(func() {
		l = &waiter.List{}
	})

	It("wakes only waiters whose mask intersects the event", func() {
		n1 := l.Add(1, waiter.EventRead)
		n2 := l.Add(2, waiter.EventWrite)
		Expect(l.Len()).To(Equal(2))

		woken := l.Wake(waiter.EventRead)
		Expect(woken).To(ConsistOf(uint64(1)))
		Expect(l.Len()).To(Equal(1))

		// n1 already removed by Wake; Remove is a no-op, n2 still there.
		l.Remove(n1)
		Expect(l.Len()).To(Equal(1))
		l.Remove(n2)
		Expect(l.Len()).To(Equal(0))
	})

	It("wakes every waiter when an error-mask bit is set, regardless of mask", func() {
		l.Add(1, waiter.EventRead)
		l.Add(2, waiter.EventWrite)
		l.Add(3, waiter.EventWrite)

		woken := l.Wake(waiter.EventRdHup)
		Expect(woken).To(ConsistOf(uint64(1), uint64(2), uint64(3)))
		Expect(l.Len()).To(Equal(0))
	})

	It("Remove is idempotent under races with Wake", func() {
		n := l.Add(1, waiter.EventRead)
		l.Remove(n)
		Expect(func() { l.Remove(n) }).NotTo(Panic())
		Expect(l.Len()).To(Equal(0))
	})

	It("WakeAll drains every node irrespective of mask", func() {
		l.Add(1, waiter.EventRead)
		l.Add(2, waiter.EventWrite)
		Expect(l.WakeAll()).To(HaveLen(2))
		Expect(l.Len()).To(Equal(0))
	})
})
