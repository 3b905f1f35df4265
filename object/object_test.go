package object_test

import (
	"context"
	"sync/atomic"

	"github.com/nexuskernel/userworld/object"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// trackingMethods counts Close invocations so tests can assert the
// "last Release calls Close exactly once" invariant.
type trackingMethods struct {
	object.UnimplementedMethods
	closed int32
}

func (m *trackingMethods) Close(context.Context, *object.Object) error {
	atomic.AddInt32(&m.closed, 1)
	return nil
}

var _ = Describe("Object", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("starts with one reference and releases to Close at zero", func() {
		m := &trackingMethods{}
		o := object.New(object.TypeFile, m, nil, object.ORdWr)
		Expect(o.RefCount()).To(Equal(int32(1)))

		Expect(o.Release(ctx)).To(Succeed())
		Expect(atomic.LoadInt32(&m.closed)).To(Equal(int32(1)))
	})

	It("does not call Close until the last reference is released", func() {
		m := &trackingMethods{}
		o := object.New(object.TypeFile, m, nil, object.ORdOnly)
		o.Retain()
		Expect(o.RefCount()).To(Equal(int32(2)))

		Expect(o.Release(ctx)).To(Succeed())
		Expect(atomic.LoadInt32(&m.closed)).To(Equal(int32(0)))

		Expect(o.Release(ctx)).To(Succeed())
		Expect(atomic.LoadInt32(&m.closed)).To(Equal(int32(1)))
	})

	It("tracks a seek offset independent of the variant", func() {
		o := object.New(object.TypeFile, &trackingMethods{}, nil, object.ORdWr)
		Expect(o.Offset()).To(Equal(int64(0)))

		o.SetOffset(42)
		Expect(o.Offset()).To(Equal(int64(42)))

		Expect(o.AddOffset(8)).To(Equal(int64(50)))
	})

	It("serialises Lock/Unlock as a binary semaphore", func() {
		o := object.New(object.TypeFile, &trackingMethods{}, nil, object.ORdWr)

		Expect(o.Lock(ctx)).To(Succeed())

		lockCtx, cancel := context.WithCancel(ctx)
		cancel()
		Expect(o.Lock(lockCtx)).To(HaveOccurred())

		o.Unlock()
		Expect(o.Lock(ctx)).To(Succeed())
		o.Unlock()
	})

	It("reports the access mode through Flags", func() {
		o := object.New(object.TypeFile, &trackingMethods{}, nil, object.ORdOnly)
		Expect(o.Flags().Readable()).To(BeTrue())
		Expect(o.Flags().Writable()).To(BeFalse())
	})

	It("exposes variant-private state via Variant", func() {
		type fakeVariant struct{ tag string }
		v := &fakeVariant{tag: "pipe"}
		o := object.New(object.TypePipeRead, &trackingMethods{}, v, object.ORdOnly)
		Expect(o.Variant()).To(Equal(v))
	})
})
