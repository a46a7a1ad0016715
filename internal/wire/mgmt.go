package wire

import "fmt"

// MgmtType is the sub-header byte following the header on a management
// packet (message type TypeMgmt).
type MgmtType byte

const (
	MgmtBeacon      MgmtType = 1
	MgmtBeaconReply MgmtType = 2
	MgmtBeaconGrant MgmtType = 3
	MgmtTraceReq    MgmtType = 4
	MgmtTraceReply  MgmtType = 5
)

// NonceSize is the size of a beacon nonce.
const NonceSize = 32

// BeaconBody is the body of a beacon management packet: a fresh receiver
// nonce and the declared awake-time window, in nanoseconds.
type BeaconBody struct {
	ReceiverNonce [NonceSize]byte
	AwakeTimeNs   uint64
}

const beaconBodySize = NonceSize + 8

func (b *BeaconBody) Encode() []byte {
	buf := make([]byte, beaconBodySize)
	copy(buf[0:NonceSize], b.ReceiverNonce[:])
	putUint64(buf[NonceSize:], b.AwakeTimeNs)
	return buf
}

func DecodeBeaconBody(buf []byte) (*BeaconBody, error) {
	if len(buf) < beaconBodySize {
		return nil, fmt.Errorf("wire: beacon body needs %d bytes, got %d: %w",
			beaconBodySize, len(buf), ErrMalformedPacket)
	}
	b := &BeaconBody{AwakeTimeNs: getUint64(buf[NonceSize:])}
	copy(b.ReceiverNonce[:], buf[0:NonceSize])
	return b, nil
}

// BeaconReplyBody extends BeaconBody with the replier's own sender nonce.
type BeaconReplyBody struct {
	ReceiverNonce [NonceSize]byte
	AwakeTimeNs   uint64
	SenderNonce   [NonceSize]byte
}

const beaconReplyBodySize = beaconBodySize + NonceSize

func (b *BeaconReplyBody) Encode() []byte {
	buf := make([]byte, beaconReplyBodySize)
	copy(buf[0:NonceSize], b.ReceiverNonce[:])
	putUint64(buf[NonceSize:NonceSize+8], b.AwakeTimeNs)
	copy(buf[NonceSize+8:], b.SenderNonce[:])
	return buf
}

func DecodeBeaconReplyBody(buf []byte) (*BeaconReplyBody, error) {
	if len(buf) < beaconReplyBodySize {
		return nil, fmt.Errorf("wire: beacon-reply body needs %d bytes, got %d: %w",
			beaconReplyBodySize, len(buf), ErrMalformedPacket)
	}
	b := &BeaconReplyBody{AwakeTimeNs: getUint64(buf[NonceSize : NonceSize+8])}
	copy(b.ReceiverNonce[:], buf[0:NonceSize])
	copy(b.SenderNonce[:], buf[NonceSize+8:])
	return b, nil
}

// BeaconGrantBody extends BeaconReplyBody with the granted send-time
// window, in nanoseconds, bandwidth-limited per §4.8.
type BeaconGrantBody struct {
	ReceiverNonce [NonceSize]byte
	AwakeTimeNs   uint64
	SenderNonce   [NonceSize]byte
	SendTimeNs    uint64
}

const beaconGrantBodySize = beaconReplyBodySize + 8

func (b *BeaconGrantBody) Encode() []byte {
	buf := make([]byte, beaconGrantBodySize)
	copy(buf[0:NonceSize], b.ReceiverNonce[:])
	putUint64(buf[NonceSize:NonceSize+8], b.AwakeTimeNs)
	copy(buf[NonceSize+8:beaconReplyBodySize], b.SenderNonce[:])
	putUint64(buf[beaconReplyBodySize:], b.SendTimeNs)
	return buf
}

func DecodeBeaconGrantBody(buf []byte) (*BeaconGrantBody, error) {
	if len(buf) < beaconGrantBodySize {
		return nil, fmt.Errorf("wire: beacon-grant body needs %d bytes, got %d: %w",
			beaconGrantBodySize, len(buf), ErrMalformedPacket)
	}
	b := &BeaconGrantBody{
		AwakeTimeNs: getUint64(buf[NonceSize : NonceSize+8]),
		SendTimeNs:  getUint64(buf[beaconReplyBodySize:]),
	}
	copy(b.ReceiverNonce[:], buf[0:NonceSize])
	copy(b.SenderNonce[:], buf[NonceSize+8:beaconReplyBodySize])
	return b, nil
}
