package wire

// KeyReqBody is the body of a key-request packet: a nonce identifying
// this request (echoed in the KeyXchg reply so the requester can match
// it) and the broadcast address being requested (carried in the header's
// destination field; the body only needs the nonce). Per §9, the
// original source disables the encrypted-reply-pubkey code path
// (`#if 0`); this implementation treats encrypted key replies as out of
// scope and omits that field entirely.
type KeyReqBody struct {
	Nonce ID
}

func (k *KeyReqBody) Encode() []byte {
	buf := make([]byte, IDSize)
	copy(buf, k.Nonce[:])
	return buf
}

func DecodeKeyReqBody(buf []byte) (*KeyReqBody, error) {
	if len(buf) < IDSize {
		return nil, ErrMalformedPacket
	}
	k := &KeyReqBody{}
	copy(k.Nonce[:], buf[:IDSize])
	return k, nil
}

// KeyXchgBody carries a broadcast public key in response to a key
// request, echoing the requester's nonce.
type KeyXchgBody struct {
	Nonce   ID
	KeyPEM  []byte
}

func (k *KeyXchgBody) Encode() []byte {
	buf := make([]byte, IDSize+len(k.KeyPEM))
	copy(buf, k.Nonce[:])
	copy(buf[IDSize:], k.KeyPEM)
	return buf
}

func DecodeKeyXchgBody(buf []byte) (*KeyXchgBody, error) {
	if len(buf) < IDSize {
		return nil, ErrMalformedPacket
	}
	k := &KeyXchgBody{}
	copy(k.Nonce[:], buf[:IDSize])
	if len(buf) > IDSize {
		k.KeyPEM = append([]byte(nil), buf[IDSize:]...)
	}
	return k, nil
}
