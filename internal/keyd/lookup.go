package keyd

import (
	"github.com/allnet-project/allnet/internal/keystore"
	"github.com/allnet-project/allnet/internal/wire"
)

// StoreLookup adapts a keystore.Store into a KeyLookup: every keyset
// with a known local address is a candidate own identity. This differs
// from keyd.c's get_own_keys (which serves a process-wide broadcast
// key pool, internal/keystore's own_bc_keys); here, key requests are
// answered with per-contact identity keys instead, since that is the
// only notion of "our own addressed public key" this Store tracks
// outside the broadcast-key system abc already owns.
type StoreLookup struct {
	Store *keystore.Store
}

func (l StoreLookup) Matching(destination wire.Address, dstBits int) []OwnIdentity {
	var out []OwnIdentity
	for _, contact := range l.Store.AllContacts() {
		for _, k := range l.Store.AllKeys(contact) {
			local, ok := l.Store.GetLocal(k)
			if !ok {
				continue
			}
			mbits := dstBits
			if local.Bits < mbits {
				mbits = local.Bits
			}
			if wire.Matches(local.Bytes[:], local.Bits, destination.Bytes[:], dstBits) < mbits {
				continue
			}
			priv, ok := l.Store.GetMyPrivkey(k)
			if !ok {
				continue
			}
			out = append(out, OwnIdentity{Address: local, Pub: &priv.PublicKey})
		}
	}
	return out
}
