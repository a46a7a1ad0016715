package wire

import (
	"crypto/sha512"

	"github.com/google/uuid"
)

// IDSize is the length of a message ID, trace ID, or nonce.
const IDSize = 16

// ID is a 16-byte opaque identifier: a message ID, a trace ID, or a nonce.
type ID [IDSize]byte

// NewID generates a fresh random 16-byte identifier from a version-4
// UUID, which is 16 bytes long, the same size AllNet uses for message
// IDs, trace IDs, and nonces. 122 of its 128 bits are random; the UUID
// version and variant bits are fixed.
func NewID() ID {
	var id ID
	copy(id[:], uuid.New()[:])
	return id
}

// DeriveMessageID computes a packet's message ID: SHA-512 of the payload,
// truncated to the first 16 bytes.
func DeriveMessageID(payload []byte) ID {
	sum := sha512.Sum512(payload)
	var id ID
	copy(id[:], sum[:IDSize])
	return id
}

// AcksMessage reports whether ackValue is a valid acknowledgment of
// messageID: the SHA-512 of ackValue, truncated to 16 bytes, must equal
// messageID.
func AcksMessage(ackValue [IDSize]byte, messageID ID) bool {
	sum := sha512.Sum512(ackValue[:])
	for i := 0; i < IDSize; i++ {
		if sum[i] != messageID[i] {
			return false
		}
	}
	return true
}
