package objerr_test

import (
	"errors"

	"github.com/nexuskernel/userworld/objerr"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("objerr", func() {
	Context("New", func() {
		It("returns nil for Ok", func() {
			Expect(objerr.New(objerr.Ok)).To(BeNil())
		})

		It("captures a parent error", func() {
			parent := errors.New("transport reset")
			err := objerr.New(objerr.IsDisconnected, parent)
			Expect(err).To(HaveOccurred())
			Expect(errors.Unwrap(err)).To(Equal(parent))
		})
	})

	Context("KindOf", func() {
		It("is Ok for a nil error", func() {
			Expect(objerr.KindOf(nil)).To(Equal(objerr.Ok))
		})

		It("recovers the constructed kind", func() {
			err := objerr.New(objerr.WouldBlock)
			Expect(objerr.KindOf(err)).To(Equal(objerr.WouldBlock))
		})

		It("maps foreign errors to BadParam rather than panicking", func() {
			Expect(objerr.KindOf(errors.New("boom"))).To(Equal(objerr.BadParam))
		})
	})

	Context("Severe/MarkSevere round-trip", func() {
		It("strips the severe bit back to the original kind", func() {
			marked := objerr.MarkSevere(objerr.InvalidHandle)
			kind, severe := objerr.Severe(marked)
			Expect(severe).To(BeTrue())
			Expect(kind).To(Equal(objerr.InvalidHandle))
		})

		It("reports non-severe kinds as such", func() {
			_, severe := objerr.Severe(objerr.NotFound)
			Expect(severe).To(BeFalse())
		})
	})

	Context("Partial", func() {
		It("suppresses a trailing error when bytes were transferred", func() {
			Expect(objerr.Partial(5, objerr.New(objerr.WouldBlock))).To(BeNil())
		})

		It("keeps the error when nothing was transferred", func() {
			err := objerr.New(objerr.WouldBlock)
			Expect(objerr.Partial(0, err)).To(Equal(err))
		})
	})
})
