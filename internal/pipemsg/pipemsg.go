// Package pipemsg implements the length-prefixed, priority-tagged
// datagram framing used between AllNet daemons and applications over a
// byte-oriented pipe (a local TCP socket, or an OS pipe), and the
// multiplexed receive-any primitive that demultiplexes over many such
// pipes (plus, optionally, a raw packet socket) into one prioritized
// stream (§4.2, §6).
package pipemsg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/allnet-project/allnet/internal/wire"
)

// MagicByte leads every pipe-message header.
const MagicByte = 0xa1

// HeaderSize is the fixed framing header: magic(1) | length(4,BE) | priority(4,BE).
const HeaderSize = 1 + 4 + 4

// ErrBadMagic is returned when a frame header doesn't start with MagicByte.
var ErrBadMagic = errors.New("pipemsg: bad magic byte, pipe out of sync")

// Encode frames payload with its priority: the representation sent to
// and received from a pipe.
func Encode(payload []byte, priority wire.Priority) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = MagicByte
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	binary.BigEndian.PutUint32(buf[5:9], uint32(priority))
	copy(buf[HeaderSize:], payload)
	return buf
}

// Send writes one framed message to w. It returns false (the pipe is
// considered dead) on any write error, including a short write.
func Send(w io.Writer, payload []byte, priority wire.Priority) bool {
	frame := Encode(payload, priority)
	n, err := w.Write(frame)
	return err == nil && n == len(frame)
}

// Message is one message queued for a coalesced multi-message send.
type Message struct {
	Payload  []byte
	Priority wire.Priority
}

// SendMultiple coalesces a vector of messages into a single write, to
// avoid kernel small-send coalescing latency on the pipe. It returns
// false (pipe dead) on any error or short write.
func SendMultiple(w io.Writer, msgs []Message) bool {
	var total int
	for _, m := range msgs {
		total += HeaderSize + len(m.Payload)
	}
	buf := make([]byte, 0, total)
	for _, m := range msgs {
		buf = append(buf, Encode(m.Payload, m.Priority)...)
	}
	n, err := w.Write(buf)
	return err == nil && n == len(buf)
}

// readFrame reads exactly one framed message from r, blocking until the
// header and payload are fully read (io.ReadFull keeps reading across
// short reads, so a frame split over several reads is reassembled here).
func readFrame(r io.Reader) ([]byte, wire.Priority, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, 0, err
	}
	if header[0] != MagicByte {
		return nil, 0, ErrBadMagic
	}
	length := binary.BigEndian.Uint32(header[1:5])
	priority := wire.Priority(binary.BigEndian.Uint32(header[5:9]))
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, 0, fmt.Errorf("pipemsg: short read of %d-byte payload: %w", length, err)
	}
	return payload, priority, nil
}
