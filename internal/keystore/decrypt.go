package keystore

import "github.com/allnet-project/allnet/internal/cryptoenv"

// DecryptVerifyResult identifies which contact/keyset successfully
// decrypted an inbound packet.
type DecryptVerifyResult struct {
	Contact    string
	Keyset     int
	Plaintext  []byte
	Verified   bool // true if signed and the signature checked out
}

// DecryptVerify implements §4.7's decrypt_verify / cipher.c's
// decrypt_verify: for every known contact and every one of its keysets,
// if signature is non-nil it is checked against the contact's public
// key first (decryption is not attempted for a keyset whose signature
// check fails); the packet is then decrypted with that keyset's private
// key. The first keyset that decrypts successfully wins. All failures
// along the way are silent — the caller only learns whether any keyset
// matched.
func (s *Store) DecryptVerify(payload, signature []byte) (DecryptVerifyResult, bool) {
	for _, contact := range s.AllContacts() {
		for _, k := range s.AllKeys(contact) {
			if signature != nil {
				pub, ok := s.GetContactPubkey(k)
				if !ok || !cryptoenv.Verify(payload, signature, pub) {
					continue
				}
			}
			priv, ok := s.GetMyPrivkey(k)
			if !ok {
				continue
			}
			plaintext, err := cryptoenv.Decrypt(payload, priv)
			if err != nil {
				continue
			}
			return DecryptVerifyResult{
				Contact:   contact,
				Keyset:    k,
				Plaintext: plaintext,
				Verified:  signature != nil,
			}, true
		}
	}
	return DecryptVerifyResult{}, false
}
