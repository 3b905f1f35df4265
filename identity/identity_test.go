package identity_test

import (
	"github.com/nexuskernel/userworld/identity"
	"github.com/nexuskernel/userworld/objerr"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ID", func() {
	It("mirrors a privileged uid transition to the proxy before committing locally", func() {
		id := identity.New(0, 0)
		var mirrored identity.ID
		err := id.SetUID(100, 100, 100, func(next identity.ID) error {
			mirrored = next
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(mirrored.RUID).To(Equal(uint32(100)))
		Expect(id.Snapshot().EUID).To(Equal(uint32(100)))
	})

	It("leaves a component unchanged when Unchanged is passed", func() {
		id := identity.New(0, 0)
		Expect(id.SetUID(50, identity.Unchanged, 50, nil)).To(Succeed())
		snap := id.Snapshot()
		Expect(snap.RUID).To(Equal(uint32(50)))
		Expect(snap.EUID).To(Equal(uint32(0)))
		Expect(snap.SUID).To(Equal(uint32(50)))
	})

	It("does not commit locally when the proxy mirror fails", func() {
		id := identity.New(0, 0)
		err := id.SetUID(100, 100, 100, func(identity.ID) error {
			return objerr.New(objerr.IsDisconnected)
		})
		Expect(objerr.KindOf(err)).To(Equal(objerr.IsDisconnected))
		Expect(id.Snapshot().RUID).To(Equal(uint32(0)))
	})

	It("rejects an unprivileged caller setting a uid outside its current ruid/euid/suid", func() {
		id := identity.New(1000, 1000)
		err := id.SetUID(1000, 2000, 1000, nil)
		Expect(objerr.KindOf(err)).To(Equal(objerr.NoAccess))
	})

	It("allows an unprivileged caller to swap among its own ruid/euid/suid", func() {
		id := identity.New(1000, 1000)
		Expect(id.SetUID(identity.Unchanged, 1000, 1000, nil)).To(Succeed())
	})

	It("applies the same privilege rule to gid transitions, gated on euid not egid", func() {
		id := identity.New(1000, 1000)
		err := id.SetGID(1000, 2000, 1000, nil)
		Expect(objerr.KindOf(err)).To(Equal(objerr.NoAccess))
	})

	It("rejects setgroups from an unprivileged caller", func() {
		id := identity.New(1000, 1000)
		err := id.SetGroups([]uint32{1000, 1001}, nil)
		Expect(objerr.KindOf(err)).To(Equal(objerr.NoAccess))
	})

	It("rejects more than MaxGroups entries", func() {
		id := identity.New(0, 0)
		gids := make([]uint32, identity.MaxGroups+1)
		for idx := range gids {
			gids[idx] = uint32(idx)
		}
		err := id.SetGroups(gids, nil)
		Expect(objerr.KindOf(err)).To(Equal(objerr.LimitExceeded))
	})

	It("rejects a duplicate gid before ever reaching the proxy mirror", func() {
		id := identity.New(0, 0)
		called := false
		err := id.SetGroups([]uint32{5, 5}, func(identity.ID) error {
			called = true
			return nil
		})
		Expect(objerr.KindOf(err)).To(Equal(objerr.BadParam))
		Expect(called).To(BeFalse())
	})

	It("installs a valid privileged group list", func() {
		id := identity.New(0, 0)
		Expect(id.SetGroups([]uint32{5, 6, 7}, nil)).To(Succeed())
		Expect(id.Snapshot().Groups).To(Equal([]uint32{5, 6, 7}))
	})
})
