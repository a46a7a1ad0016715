// Package wire provides byte-exact encode/decode for AllNet packet layouts:
// the fixed header, management sub-headers (beacon, trace), ack bodies, and
// key-request/key-exchange bodies. All multi-byte integers are big-endian.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Errors matching the §7 Malformed taxonomy: silently drop on the caller's
// side, never surfaced to a remote peer.
var (
	ErrMalformedPacket    = errors.New("wire: malformed packet")
	ErrUnsupportedVersion = errors.New("wire: unsupported protocol version")
	ErrMalformedAddress   = errors.New("wire: malformed address bit count")
)

// Version is the only protocol version this codec understands.
const Version = 3

// MessageType is the packet's top-level type (header offset 1).
type MessageType byte

const (
	TypeData    MessageType = 1
	TypeAck     MessageType = 2
	TypeKeyReq  MessageType = 3
	TypeKeyXchg MessageType = 4
	TypeClear   MessageType = 5
	TypeMgmt    MessageType = 6
)

// SigAlgo identifies the signature algorithm used on the trailing
// signature region, if any.
type SigAlgo byte

const (
	SigAlgoNone     SigAlgo = 0
	SigAlgoRSAPKCS1 SigAlgo = 1
)

// Transport is a bitfield of transport-level flags (header offset 7).
type Transport byte

const (
	TransportAckReq     Transport = 0x01
	TransportLarge      Transport = 0x02
	TransportExpiration Transport = 0x04
	TransportDoNotCache Transport = 0x08
)

// HasAckReq reports whether the ACK_REQ bit is set. §9 flags the source's
// precedence bug in evaluating this condition; this is the parenthesized,
// correct test: "if the ACK_REQ bit is set in transport, emit an ack".
func (t Transport) HasAckReq() bool { return t&TransportAckReq != 0 }

// HasDoNotCache reports whether the DO_NOT_CACHE bit is set.
func (t Transport) HasDoNotCache() bool { return t&TransportDoNotCache != 0 }

// HeaderSize is the fixed size of a no-transport-extension header.
const HeaderSize = 24

// Header is the fixed 24-byte prefix on every overlay datagram (§6).
type Header struct {
	Version     byte
	MessageType MessageType
	Hops        byte
	MaxHops     byte
	SrcNbits    byte
	DstNbits    byte
	SigAlgo     SigAlgo
	Transport   Transport
	Source      [8]byte
	Destination [8]byte
}

// Encode writes the header in its 24-byte wire form.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = h.Version
	buf[1] = byte(h.MessageType)
	buf[2] = h.Hops
	buf[3] = h.MaxHops
	buf[4] = h.SrcNbits
	buf[5] = h.DstNbits
	buf[6] = byte(h.SigAlgo)
	buf[7] = byte(h.Transport)
	copy(buf[8:16], h.Source[:])
	copy(buf[16:24], h.Destination[:])
	return buf
}

// DecodeHeader parses the fixed header prefix and returns the remaining
// (undecoded) bytes of buf.
func DecodeHeader(buf []byte) (*Header, []byte, error) {
	if len(buf) < HeaderSize {
		return nil, nil, fmt.Errorf("wire: header needs %d bytes, got %d: %w",
			HeaderSize, len(buf), ErrMalformedPacket)
	}
	h := &Header{
		Version:     buf[0],
		MessageType: MessageType(buf[1]),
		Hops:        buf[2],
		MaxHops:     buf[3],
		SrcNbits:    buf[4],
		DstNbits:    buf[5],
		SigAlgo:     SigAlgo(buf[6]),
		Transport:   Transport(buf[7]),
	}
	if h.Version != Version {
		return nil, nil, fmt.Errorf("wire: version %d: %w", h.Version, ErrUnsupportedVersion)
	}
	if h.SrcNbits > 64 || h.DstNbits > 64 {
		return nil, nil, fmt.Errorf("wire: src/dst bits %d/%d: %w",
			h.SrcNbits, h.DstNbits, ErrMalformedAddress)
	}
	copy(h.Source[:], buf[8:16])
	copy(h.Destination[:], buf[16:24])
	return h, buf[HeaderSize:], nil
}

// putUint16 / putUint64 are thin wrappers kept local so every wire file
// uses the same big-endian helpers without re-importing encoding/binary
// piecemeal.
func putUint16(buf []byte, v uint16) { binary.BigEndian.PutUint16(buf, v) }
func putUint64(buf []byte, v uint64) { binary.BigEndian.PutUint64(buf, v) }
func getUint16(buf []byte) uint16    { return binary.BigEndian.Uint16(buf) }
func getUint64(buf []byte) uint64    { return binary.BigEndian.Uint64(buf) }
