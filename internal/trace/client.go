package trace

import (
	"fmt"
	"time"

	"github.com/allnet-project/allnet/internal/wire"
)

// ClientAnonymityBits is the number of source-address bits a trace
// client reveals by default: enough for replies to route back, little
// enough that the client's own address stays ambiguous.
const ClientAnonymityBits = 5

// NewRequest builds a one-entry trace request addressed at destination,
// as sent by the trace command-line client (§4.9 "Client side"). The
// caller supplies a random per-trace source address (myAddress) and
// gets back the header/body pair plus the trace_id to correlate
// replies against.
func NewRequest(destination wire.Address, myAddress wire.Address, now time.Time) (*wire.Header, *wire.TraceBody) {
	hdr := &wire.Header{
		Version:     wire.Version,
		MessageType: wire.TypeMgmt,
		MaxHops:     10,
		SrcNbits:    byte(myAddress.Bits),
		DstNbits:    byte(destination.Bits),
		Source:      myAddress.Bytes,
		Destination: destination.Bytes,
	}
	body := &wire.TraceBody{
		IntermediateReplies: true,
		TraceID:             wire.NewID(),
		Entries:             []wire.TraceEntry{newEntry(0, now, myAddress)},
	}
	return hdr, body
}

// Observation is one hop's entry from a trace reply, with its
// timestamp resolved to an elapsed duration since the request was
// sent.
type Observation struct {
	HopsSeen byte
	Address  wire.Address
	Elapsed  time.Duration
	// FirstArrival is the elapsed time at which a reply touching this
	// HopsSeen index was first received by this client, used to
	// correlate repeated observations of the same hop across replies
	// (trace.c's intermediate_arrivals array).
	FirstArrival time.Duration
}

// Collector correlates trace replies against the trace_id of one
// outstanding request, tracking the first-arrival time per hop index
// the way trace.c's wait_for_responses does with intermediate_arrivals.
type Collector struct {
	traceID  wire.ID
	start    time.Time
	arrivals [256]*time.Duration
}

// NewCollector starts correlating replies to traceID, measuring
// elapsed time from start (the moment the request was sent).
func NewCollector(traceID wire.ID, start time.Time) *Collector {
	return &Collector{traceID: traceID, start: start}
}

// Accept processes one inbound trace reply. It returns (nil, false) if
// the reply's trace_id doesn't match what this collector is waiting
// for.
func (c *Collector) Accept(body *wire.TraceBody, receivedAt time.Time) ([]Observation, bool) {
	if body.TraceID != c.traceID {
		return nil, false
	}
	arrived := receivedAt.Sub(c.start)
	out := make([]Observation, len(body.Entries))
	for i, e := range body.Entries {
		idx := e.HopsSeen
		if c.arrivals[idx] == nil {
			d := arrived
			c.arrivals[idx] = &d
		}
		var elapsed time.Duration
		if t := entryTime(e); !t.IsZero() {
			elapsed = t.Sub(c.start)
		}
		out[i] = Observation{
			HopsSeen:     idx,
			Address:      wire.NewAddress(e.Address[:], int(e.Nbits)),
			Elapsed:      elapsed,
			FirstArrival: *c.arrivals[idx],
		}
	}
	return out, true
}

// entryTime reconstructs a trace entry's recorded timestamp as an
// absolute time, decoding seconds_fraction per the entry's precision
// byte (§4.9): precision <= 64 is a binary 0.f fraction of one second,
// 64 < precision <= 70 is f * 10^(70-precision) microseconds, and
// precision > 70 is f / 10^(precision-70). Precision 0 marks an entry
// whose clock was unusable at capture time; it has no meaningful
// timestamp and entryTime returns the zero time.
func entryTime(e wire.TraceEntry) time.Time {
	if e.Precision == 0 {
		return time.Time{}
	}
	var micros uint64
	switch {
	case e.Precision <= 64:
		micros = uint64((float64(e.SecFrac) / float64(^uint64(0))) * 1e6)
	case e.Precision <= 70:
		micros = e.SecFrac * pow10(70-int(e.Precision))
	default:
		div := pow10(int(e.Precision) - 70)
		if div == 0 {
			micros = 0
		} else {
			micros = e.SecFrac / div
		}
	}
	return time.Unix(int64(e.Seconds)+y2kUnixSeconds, int64(micros)*int64(time.Microsecond))
}

func pow10(n int) uint64 {
	if n < 1 {
		return 1
	}
	v := uint64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

// String formats an observation the way the trace client prints a
// line of output, minus the CLI framing (out of scope per spec's
// non-goals).
func (o Observation) String() string {
	return fmt.Sprintf("%3d %x/%d %v", o.HopsSeen, o.Address.Bytes[:], o.Address.Bits, o.Elapsed)
}
