// Package trace implements the AllNet trace protocol (spec §4.9): a
// request/response tree walk across the overlay with nonce-based loop
// suppression and three distinct reply shapes depending on where along
// the path a responder sits. There is no socket or pipe handling here —
// callers decode a packet with the wire package, hand the pieces to a
// Responder, and get back the messages to send.
package trace

import (
	"time"

	"github.com/allnet-project/allnet/internal/wire"
)

// y2kUnixSeconds is the AllNet epoch (2000-01-01T00:00:00Z) expressed as
// Unix seconds, matching the source's ALLNET_Y2K_SECONDS_IN_UNIX.
const y2kUnixSeconds = 946684800

// CacheSize is the number of recent trace_ids the responder remembers
// for loop suppression.
const CacheSize = 100

// newEntry builds one trace path entry (§4.9's
// precision/seconds/seconds_fraction/nbits/hops_seen/address tuple),
// mirroring trace.c's init_entry. hops==0 is the local-sender case and
// gets microsecond precision; every other hop count gets millisecond
// precision. A clock reading before the AllNet epoch is recorded as
// precision 0 (unknown), never a negative or wrapped timestamp.
func newEntry(hops byte, now time.Time, myAddress wire.Address) wire.TraceEntry {
	e := wire.TraceEntry{
		Nbits:    byte(myAddress.Bits),
		HopsSeen: hops,
		Address:  myAddress.Bytes,
	}
	unixSec := now.Unix()
	if unixSec < y2kUnixSeconds {
		return e
	}
	e.Seconds = uint64(unixSec - y2kUnixSeconds)
	if hops == 0 {
		e.Precision = 64 + 6
		e.SecFrac = uint64(now.Nanosecond() / 1000)
	} else {
		e.Precision = 64 + 3
		e.SecFrac = uint64(now.Nanosecond() / 1000 / 1000)
	}
	return e
}
