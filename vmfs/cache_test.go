package vmfs_test

import (
	"sync"

	"github.com/nexuskernel/userworld/vmfs"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// memBacking is an in-memory Backing standing in for a proxy-backed file
// handle, with call counters so tests can assert the statsOnly fast path
// never touches ReadAt/WriteAt.
type memBacking struct {
	mu                            sync.Mutex
	data                          []byte
	readAtCalls, writeAtCalls     int
	sizeCalls, truncateCalls      int
}

func newMemBacking(initial string) *memBacking {
	return &memBacking{data: []byte(initial)}
}

func (b *memBacking) ReadAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readAtCalls++
	if off < 0 || int(off) >= len(b.data) {
		return 0, nil
	}
	n := copy(p, b.data[off:])
	return n, nil
}

func (b *memBacking) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeAtCalls++
	end := int(off) + len(p)
	if end > len(b.data) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[off:end], p)
	return len(p), nil
}

func (b *memBacking) Size() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sizeCalls++
	return uint64(len(b.data)), nil
}

func (b *memBacking) Truncate(size uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.truncateCalls++
	if int(size) <= len(b.data) {
		b.data = b.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, b.data)
	b.data = grown
	return nil
}

var _ = Describe("Cache", func() {
	It("reads back exactly what was on the backing", func() {
		b := newMemBacking("hello world")
		c := vmfs.NewCache(b)

		buf := make([]byte, 32)
		n, err := c.Read(buf, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf[:n])).To(Equal("hello world"))
	})

	It("returns a zero-length read at or past eof", func() {
		b := newMemBacking("hi")
		c := vmfs.NewCache(b)

		n, err := c.Read(make([]byte, 8), 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))

		n, err = c.Read(make([]byte, 8), 100)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
	})

	It("extends eof on write and flushes to the backing on Fsync", func() {
		b := newMemBacking("")
		c := vmfs.NewCache(b)

		n, err := c.Write([]byte("abcdef"), 0, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(6))

		// Not yet pushed to the backing.
		Expect(b.data).To(BeEmpty())

		Expect(c.Fsync()).To(Succeed())
		Expect(string(b.data)).To(Equal("abcdef"))

		sz, err := c.Size()
		Expect(err).NotTo(HaveOccurred())
		Expect(sz).To(Equal(uint64(6)))
	})

	It("serves an unaligned write's surrounding bytes as zero-filled before any backing data existed", func() {
		b := newMemBacking("")
		c := vmfs.NewCache(b)

		_, err := c.Write([]byte("X"), 600, false)
		Expect(err).NotTo(HaveOccurred())

		buf := make([]byte, 4)
		n, err := c.Read(buf, 598)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(3)) // eof is now 601; byte at 598,599 are zero, 600 is 'X'
		Expect(buf[:2]).To(Equal([]byte{0, 0}))
		Expect(buf[2]).To(Equal(byte('X')))
	})

	It("read-back-fills an unaligned write's neighboring sector bytes from existing backing data", func() {
		b := newMemBacking(string(make([]byte, 1024)))
		copy(b.data, "existing-data-before-the-write-offset")
		c := vmfs.NewCache(b)

		_, err := c.Write([]byte("Z"), 500, false)
		Expect(err).NotTo(HaveOccurred())

		buf := make([]byte, len("existing"))
		n, err := c.Read(buf, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf[:n])).To(Equal("existing"))
	})

	It("writes at the current eof in append mode regardless of the requested offset", func() {
		b := newMemBacking("abc")
		c := vmfs.NewCache(b)

		n, err := c.Write([]byte("def"), 0, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(3))

		Expect(c.Fsync()).To(Succeed())
		Expect(string(b.data)).To(Equal("abcdef"))
	})

	It("spans multiple cache windows for a write larger than CacheWindow", func() {
		b := newMemBacking("")
		c := vmfs.NewCache(b)

		payload := make([]byte, vmfs.CacheWindow+100)
		for i := range payload {
			payload[i] = byte(i % 251)
		}

		n, err := c.Write(payload, 0, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(len(payload)))
		Expect(c.Fsync()).To(Succeed())

		readBack := make([]byte, len(payload))
		rn, err := c.Read(readBack, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(rn).To(Equal(len(payload)))
		Expect(readBack).To(Equal(payload))
	})

	It("shrinks and invalidates the resident window on Truncate", func() {
		b := newMemBacking("abcdefgh")
		c := vmfs.NewCache(b)

		_, err := c.Read(make([]byte, 4), 0)
		Expect(err).NotTo(HaveOccurred())

		Expect(c.Truncate(3)).To(Succeed())
		sz, err := c.Size()
		Expect(err).NotTo(HaveOccurred())
		Expect(sz).To(Equal(uint64(3)))
		Expect(b.data).To(HaveLen(3))

		n, err := c.Read(make([]byte, 8), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(3))
	})

	It("answers Size via the statsOnly fast path without touching ReadAt/WriteAt", func() {
		b := newMemBacking("twelve-bytes")
		c := vmfs.NewCache(b)

		sz, err := c.Size()
		Expect(err).NotTo(HaveOccurred())
		Expect(sz).To(Equal(uint64(len("twelve-bytes"))))

		Expect(b.readAtCalls).To(Equal(0))
		Expect(b.writeAtCalls).To(Equal(0))
		Expect(b.sizeCalls).To(Equal(1))
	})
})
