package wire

import "fmt"

// SplitSignature splits a data-packet body that may carry a trailing
// signature region into (payload, signature). When sigAlgo is
// SigAlgoNone, the whole body is payload and signature is nil.
//
// Layout: payload || signature || sigLen(2, BE), where sigLen is the
// length of (signature || the 2-byte length field itself) minus 2 — i.e.
// the raw signature length. This mirrors decrypt_verify's
// `ssize = readb16(data[-2:]) + 2`.
func SplitSignature(body []byte, sigAlgo SigAlgo) (payload, signature []byte, err error) {
	if sigAlgo == SigAlgoNone {
		return body, nil, nil
	}
	if len(body) < 2 {
		return nil, nil, fmt.Errorf("wire: body too short for signature length: %w", ErrMalformedPacket)
	}
	sigLen := int(getUint16(body[len(body)-2:]))
	total := sigLen + 2
	if total > len(body) {
		return nil, nil, fmt.Errorf("wire: declared signature region %d exceeds body %d: %w",
			total, len(body), ErrMalformedPacket)
	}
	csize := len(body) - total
	return body[:csize], body[csize : csize+sigLen], nil
}

// AppendSignature appends signature || len(signature)(2,BE) to payload.
func AppendSignature(payload, signature []byte) []byte {
	out := make([]byte, len(payload)+len(signature)+2)
	copy(out, payload)
	copy(out[len(payload):], signature)
	putUint16(out[len(out)-2:], uint16(len(signature)))
	return out
}
