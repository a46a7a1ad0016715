// Package xchat implements the AllNet chat reliability layer (spec
// §4.10): per-message chat descriptors, pull-based gap-fill requests,
// push-based resends, and a resend dedup ring. Storage is abstracted
// behind the Store interface; this package has no socket or disk I/O
// of its own.
package xchat

import (
	"time"

	"github.com/allnet-project/allnet/internal/wire"
)

// Keyset identifies one of a contact's key exchanges, mirroring the
// source's int keyset handle.
type Keyset int

// MissingReport is the singles/ranges shape shared by get_missing and
// get_unacked: individual missing sequence numbers plus inclusive
// ranges, both sorted ascending.
type MissingReport struct {
	Singles []uint64
	Ranges  [][2]uint64
}

// Empty reports whether the report carries nothing to retransmit.
func (m MissingReport) Empty() bool {
	return len(m.Singles) == 0 && len(m.Ranges) == 0
}

// OutgoingMessage is one previously-sent message as recalled by the
// store, ready to resend (retransmit.c's get_outgoing).
type OutgoingMessage struct {
	Text      []byte
	Timestamp uint64
	Ack       wire.ID
}

// Store is the storage this package needs from a contact/keyset's
// message history. An in-memory implementation is provided by
// MemStore for tests and small deployments; a persistent implementation
// would back the same interface with on-disk state.
type Store interface {
	// LastReceived returns the highest sequence number received from
	// contact/keyset (gaps below it are reported by Missing), or 0 if
	// nothing has been received.
	LastReceived(contact string, k Keyset) uint64
	// Missing returns the gaps in what's been received from
	// contact/keyset below LastReceived.
	Missing(contact string, k Keyset) MissingReport
	// Counter returns the next outgoing sequence number to be used
	// for contact, or 0 if contact is unknown.
	Counter(contact string) uint64
	// Outgoing recalls a previously-sent message by sequence number.
	Outgoing(contact string, k Keyset, seq uint64) (OutgoingMessage, bool)
	// Unacked returns the sender's view of outbound messages not yet
	// acknowledged by contact/keyset.
	Unacked(contact string, k Keyset) MissingReport
}

// ResendInstruction is one message this side should resend: which
// sequence number, and at what priority.
type ResendInstruction struct {
	Seq      uint64
	Priority wire.Priority
}

func buildDescriptor(ack wire.ID, counter uint64, now time.Time, tzMinutes int16) wire.ChatDescriptor {
	return wire.ChatDescriptor{
		MessageAck: ack,
		Counter:    counter,
		Timestamp:  wire.MakeTimeTZ(uint64(now.Unix()), tzMinutes),
	}
}

// NewDescriptor builds the chat descriptor for a fresh outgoing
// message at the given sequence counter (cutil.c's
// new_chat_descriptor/update_chat_descriptor).
func NewDescriptor(ack wire.ID, counter uint64, now time.Time, tzMinutes int16) wire.ChatDescriptor {
	return buildDescriptor(ack, counter, now, tzMinutes)
}

// NewControlDescriptor builds the chat descriptor for a control
// message (counter carries CounterFlag rather than a sequence number).
func NewControlDescriptor(now time.Time, tzMinutes int16) wire.ChatDescriptor {
	return buildDescriptor(wire.ID{}, wire.CounterFlag, now, tzMinutes)
}
