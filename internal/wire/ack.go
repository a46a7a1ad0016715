package wire

import "fmt"

// AckBody is the body of an ack packet: one or more 16-byte ack values.
// Each ack value's SHA-512 prefix (wire.AcksMessage) identifies the
// message or packet ID being acknowledged (§3).
type AckBody struct {
	Acks [][IDSize]byte
}

func (a *AckBody) Encode() []byte {
	buf := make([]byte, len(a.Acks)*IDSize)
	for i, ack := range a.Acks {
		copy(buf[i*IDSize:], ack[:])
	}
	return buf
}

func DecodeAckBody(buf []byte) (*AckBody, error) {
	if len(buf)%IDSize != 0 {
		return nil, fmt.Errorf("wire: ack body length %d not a multiple of %d: %w",
			len(buf), IDSize, ErrMalformedPacket)
	}
	n := len(buf) / IDSize
	a := &AckBody{Acks: make([][IDSize]byte, n)}
	for i := 0; i < n; i++ {
		copy(a.Acks[i][:], buf[i*IDSize:(i+1)*IDSize])
	}
	return a, nil
}
