// Package keyd implements the background key-request responder and
// spare-key pool maintainer (spec §4.7, §5): it answers incoming
// ALLNET_TYPE_KEY_REQ packets with whichever of our own keys match the
// requested address prefix, and keeps a pool of pre-generated RSA keys
// topped up so CreateContact never blocks on key generation.
//
// Grounded on original_source/src/mgmt/keyd.c. As with internal/trace
// and internal/xchat, the responder is a pure function over
// already-decoded wire types; it has no socket of its own.
package keyd

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"github.com/allnet-project/allnet/internal/wire"
)

// OwnIdentity is one of our own addressed public keys, as returned by
// a KeyLookup.
type OwnIdentity struct {
	Address wire.Address
	Pub     *rsa.PublicKey
}

// KeyLookup supplies the identities keyd may answer key requests with.
// internal/keystore.Store satisfies this via StoreLookup.
type KeyLookup interface {
	// Matching returns every own identity whose address shares at
	// least min(own address bits, dstBits) leading bits with
	// destination (keyd.c's matches check against
	// hp->destination/hp->dst_nbits).
	Matching(destination wire.Address, dstBits int) []OwnIdentity
}

func encodePublicKeyPEM(pub *rsa.PublicKey) []byte {
	block := &pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(pub)}
	return pem.EncodeToMemory(block)
}
