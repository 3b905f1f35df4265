package pollcache_test

import (
	"github.com/nexuskernel/userworld/pollcache"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Cache", func() {
	var c *pollcache.Cache

	BeforeEach(func() {
		c = pollcache.New()
		c.Enable()
	})

	It("drops an update with an older generation (spec §8 scenario 5)", func() {
		Expect(c.Update(10, pollcache.EventRead)).NotTo(BeNil())
		woken := c.Update(9, pollcache.EventWrite)
		Expect(woken).To(BeNil())

		events, gen := c.Snapshot()
		Expect(gen).To(Equal(uint32(10)))
		Expect(events).To(Equal(pollcache.EventRead))
	})

	It("drops an update with the same generation", func() {
		Expect(c.Update(5, pollcache.EventRead)).NotTo(BeNil())
		Expect(c.Update(5, pollcache.EventWrite)).To(BeNil())

		events, _ := c.Snapshot()
		Expect(events).To(Equal(pollcache.EventRead))
	})

	It("ignores updates while disabled", func() {
		d := pollcache.New()
		Expect(d.Update(1, pollcache.EventRead)).To(BeNil())
	})

	It("wakes only waiters whose mask intersects new events", func() {
		n1 := c.Wait(1, pollcache.EventRead)
		c.Wait(2, pollcache.EventWrite)

		woken := c.Update(1, pollcache.EventRead)
		Expect(woken).To(ConsistOf(uint64(1)))
		c.Cancel(n1)
	})

	It("wakes all waiters on an error-mask bit regardless of their mask", func() {
		c.Wait(1, pollcache.EventRead)
		c.Wait(2, pollcache.EventWrite)

		woken := c.Update(1, pollcache.EventRdHup)
		Expect(woken).To(ConsistOf(uint64(1), uint64(2)))
	})

	It("shares refcount across multiple owning objects", func() {
		Expect(c.RefCount()).To(Equal(int32(1)))
		c.Retain()
		Expect(c.RefCount()).To(Equal(int32(2)))
		c.Release()
		Expect(c.RefCount()).To(Equal(int32(1)))
	})
})
