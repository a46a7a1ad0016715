package wire

import "fmt"

// TraceEntrySize is the fixed size of one trace path entry.
const TraceEntrySize = 1 + 3 + 8 + 8 + 1 + 1 + 2 + 8 // 32 bytes

// TraceEntry records one hop's timing and address along a trace path
// (§4.9, §6). Seconds/SecondsFraction are big-endian encoded timestamps
// since the Allnet epoch (Y2K Unix seconds); the interpretation of
// SecondsFraction depends on Precision:
//
//	precision <= 64:    fraction is binary 0.f
//	64 < precision <=70: fraction is f * 10^(70-precision) microseconds
//	precision > 70:     fraction is f / 10^(precision-70)
type TraceEntry struct {
	Precision  byte
	Seconds    uint64
	SecFrac    uint64
	Nbits      byte
	HopsSeen   byte
	Address    [8]byte
}

func (e *TraceEntry) Encode() []byte {
	buf := make([]byte, TraceEntrySize)
	buf[0] = e.Precision
	// bytes 1-3 reserved, zero
	putUint64(buf[4:12], e.Seconds)
	putUint64(buf[12:20], e.SecFrac)
	buf[20] = e.Nbits
	buf[21] = e.HopsSeen
	// bytes 22-23 reserved, zero
	copy(buf[24:32], e.Address[:])
	return buf
}

func DecodeTraceEntry(buf []byte) (*TraceEntry, error) {
	if len(buf) < TraceEntrySize {
		return nil, fmt.Errorf("wire: trace entry needs %d bytes, got %d: %w",
			TraceEntrySize, len(buf), ErrMalformedPacket)
	}
	e := &TraceEntry{
		Precision: buf[0],
		Seconds:   getUint64(buf[4:12]),
		SecFrac:   getUint64(buf[12:20]),
		Nbits:     buf[20],
		HopsSeen:  buf[21],
	}
	copy(e.Address[:], buf[24:32])
	return e, nil
}

// traceBodyFixedSize is everything in a trace request/reply body before
// the variable-length entries and key: intermediate_replies(1) +
// num_entries(1) + pubkey_size(2) + trace_id(16).
const traceBodyFixedSize = 1 + 1 + 2 + IDSize

// TraceBody is shared by trace requests and trace replies: both carry an
// intermediate-replies flag, a trace ID, an accumulated path, and an
// optional public key for encrypted replies (§4.9; per §9 the encrypted
// reply path is disabled upstream and out of scope here — Pubkey is
// always empty in this implementation but the wire shape still allows
// for it so byte layout matches spec).
type TraceBody struct {
	IntermediateReplies bool
	TraceID             ID
	Entries             []TraceEntry
	Pubkey              []byte
}

// Encode produces intermediate_replies(1) | num_entries(1) |
// pubkey_size(2,BE) | trace_id(16) | entries[] | pubkey[].
func (t *TraceBody) Encode() []byte {
	size := traceBodyFixedSize + len(t.Entries)*TraceEntrySize + len(t.Pubkey)
	buf := make([]byte, size)
	if t.IntermediateReplies {
		buf[0] = 1
	}
	buf[1] = byte(len(t.Entries))
	putUint16(buf[2:4], uint16(len(t.Pubkey)))
	copy(buf[4:4+IDSize], t.TraceID[:])
	off := traceBodyFixedSize
	for i := range t.Entries {
		copy(buf[off:off+TraceEntrySize], t.Entries[i].Encode())
		off += TraceEntrySize
	}
	copy(buf[off:], t.Pubkey)
	return buf
}

// DecodeTraceBody parses a trace request/reply body and rejects any
// buffer shorter than its declared layout (TRACE_REQ_SIZE(t,n,k) in
// §4.1 terms).
func DecodeTraceBody(buf []byte) (*TraceBody, error) {
	if len(buf) < traceBodyFixedSize {
		return nil, fmt.Errorf("wire: trace body needs %d bytes, got %d: %w",
			traceBodyFixedSize, len(buf), ErrMalformedPacket)
	}
	numEntries := int(buf[1])
	pubkeySize := int(getUint16(buf[2:4]))
	need := traceBodyFixedSize + numEntries*TraceEntrySize + pubkeySize
	if len(buf) < need {
		return nil, fmt.Errorf("wire: trace body declares %d bytes, got %d: %w",
			need, len(buf), ErrMalformedPacket)
	}
	t := &TraceBody{IntermediateReplies: buf[0] != 0}
	copy(t.TraceID[:], buf[4:4+IDSize])
	off := traceBodyFixedSize
	t.Entries = make([]TraceEntry, numEntries)
	for i := 0; i < numEntries; i++ {
		e, err := DecodeTraceEntry(buf[off : off+TraceEntrySize])
		if err != nil {
			return nil, err
		}
		t.Entries[i] = *e
		off += TraceEntrySize
	}
	if pubkeySize > 0 {
		t.Pubkey = append([]byte(nil), buf[off:off+pubkeySize]...)
	}
	return t, nil
}

// TraceReqSize computes TRACE_REQ_SIZE(t,n,k) for a management packet
// with t transport-flag bytes, n trace entries, and a k-byte public key.
func TraceReqSize(transportBytes, numEntries, pubkeySize int) int {
	return HeaderSize + transportBytes + 1 /* mgmt_type */ +
		traceBodyFixedSize + numEntries*TraceEntrySize + pubkeySize
}
