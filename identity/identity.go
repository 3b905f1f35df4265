/*
 * MIT License
 *
 * Copyright (c) 2026 nexuskernel contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package identity

import (
	"sync"

	"github.com/nexuskernel/userworld/objerr"
)

// MaxGroups is the supplementary-group cap (user/linuxIdent.c: ngids <= 32).
const MaxGroups = 32

// Unchanged is the ruid/euid/suid and rgid/egid/sgid sentinel meaning "leave
// this one alone", the same convention POSIX setresuid/setresgid use.
const Unchanged int32 = -1

// ProxyMirror performs the host-resource-proxy round trip for an identity
// mutation before it takes local effect. next carries the full would-be
// post-mutation ID so the proxy call can be self-contained; a non-nil error
// aborts the mutation with no local state change.
type ProxyMirror func(next ID) error

// ID is one cartel's POSIX credential set.
type ID struct {
	mu sync.RWMutex

	RUID, EUID, SUID uint32
	RGID, EGID, SGID uint32
	Groups           []uint32
}

// New returns an ID with every real/effective/saved id set to uid/gid and no
// supplementary groups.
func New(uid, gid uint32) *ID {
	return &ID{RUID: uid, EUID: uid, SUID: uid, RGID: gid, EGID: gid, SGID: gid}
}

// Snapshot returns a copy of the current credentials, safe to read without
// racing a concurrent mutator.
func (i *ID) Snapshot() ID {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return ID{
		RUID: i.RUID, EUID: i.EUID, SUID: i.SUID,
		RGID: i.RGID, EGID: i.EGID, SGID: i.SGID,
		Groups: append([]uint32(nil), i.Groups...),
	}
}

func pick(current uint32, want int32) uint32 {
	if want == Unchanged {
		return current
	}
	return uint32(want)
}

// isPrivileged reports whether the caller's current EUID permits an
// arbitrary uid/gid transition, per setresuid(2)/setresgid(2).
func isPrivileged(euid uint32) bool { return euid == 0 }

// allowedUnprivileged reports whether want is one of the three ids already
// held - the only transitions an unprivileged caller may make.
func allowedUnprivileged(want, ruid, euid, suid uint32) bool {
	return want == ruid || want == euid || want == suid
}

// SetUID applies a setresuid(2)-shaped transition: each of ruid/euid/suid
// may be Unchanged, any value if the caller is currently privileged
// (EUID == 0), or otherwise only one of the three ids already held. The
// transition is mirrored to the proxy before it takes local effect.
func (i *ID) SetUID(ruid, euid, suid int32, mirror ProxyMirror) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	next := ID{
		RUID: pick(i.RUID, ruid), EUID: pick(i.EUID, euid), SUID: pick(i.SUID, suid),
		RGID: i.RGID, EGID: i.EGID, SGID: i.SGID,
		Groups: i.Groups,
	}

	if !isPrivileged(i.EUID) {
		for _, want := range []uint32{next.RUID, next.EUID, next.SUID} {
			if !allowedUnprivileged(want, i.RUID, i.EUID, i.SUID) {
				return objerr.New(objerr.NoAccess)
			}
		}
	}

	if mirror != nil {
		if err := mirror(next); err != nil {
			return err
		}
	}

	i.RUID, i.EUID, i.SUID = next.RUID, next.EUID, next.SUID
	return nil
}

// SetGID applies a setresgid(2)-shaped transition with the same privilege
// rule as SetUID, keyed off the caller's current EUID (not EGID - changing
// group identity is still gated on user privilege).
func (i *ID) SetGID(rgid, egid, sgid int32, mirror ProxyMirror) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	next := ID{
		RUID: i.RUID, EUID: i.EUID, SUID: i.SUID,
		RGID: pick(i.RGID, rgid), EGID: pick(i.EGID, egid), SGID: pick(i.SGID, sgid),
		Groups: i.Groups,
	}

	if !isPrivileged(i.EUID) {
		for _, want := range []uint32{next.RGID, next.EGID, next.SGID} {
			if !allowedUnprivileged(want, i.RGID, i.EGID, i.SGID) {
				return objerr.New(objerr.NoAccess)
			}
		}
	}

	if mirror != nil {
		if err := mirror(next); err != nil {
			return err
		}
	}

	i.RGID, i.EGID, i.SGID = next.RGID, next.EGID, next.SGID
	return nil
}

// SetGroups replaces the supplementary group list, privileged-only
// (user/linuxIdent.c: only a privileged caller may call setgroups at all).
// Rejects more than MaxGroups entries and any duplicate gid before ever
// reaching the proxy mirror.
func (i *ID) SetGroups(gids []uint32, mirror ProxyMirror) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !isPrivileged(i.EUID) {
		return objerr.New(objerr.NoAccess)
	}
	if len(gids) > MaxGroups {
		return objerr.New(objerr.LimitExceeded)
	}

	seen := make(map[uint32]struct{}, len(gids))
	for _, g := range gids {
		if _, dup := seen[g]; dup {
			return objerr.New(objerr.BadParam)
		}
		seen[g] = struct{}{}
	}

	next := ID{
		RUID: i.RUID, EUID: i.EUID, SUID: i.SUID,
		RGID: i.RGID, EGID: i.EGID, SGID: i.SGID,
		Groups: append([]uint32(nil), gids...),
	}

	if mirror != nil {
		if err := mirror(next); err != nil {
			return err
		}
	}

	i.Groups = next.Groups
	return nil
}
