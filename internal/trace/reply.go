package trace

import (
	"time"

	"github.com/allnet-project/allnet/internal/wire"
)

// Reply is a trace reply ready to send: a mgmt header plus a
// MgmtTraceReply body, addressed back toward the original requester.
type Reply struct {
	Header *wire.Header
	Body   *wire.TraceBody
}

// buildReply is the shared skeleton behind all three reply shapes
// (trace.c's make_trace_reply): a fresh header addressed back to the
// request's source, carrying the tail of the request's accumulated
// path plus one new entry for this hop.
func buildReply(req *wire.Header, myAddress wire.Address, reqBody *wire.TraceBody, now time.Time, intermediate bool, numEntries int) *Reply {
	hdr := &wire.Header{
		Version:     wire.Version,
		MessageType: wire.TypeMgmt,
		MaxHops:     req.Hops + 4,
		SrcNbits:    byte(myAddress.Bits),
		DstNbits:    req.SrcNbits,
		Source:      myAddress.Bytes,
		Destination: req.Source,
	}

	entries := make([]wire.TraceEntry, numEntries)
	// intrp.trace[i + intrp.num_entries - (num_entries-1)] for the
	// leading entries; the loop never runs when num_entries == 1.
	base := len(reqBody.Entries) - (numEntries - 1)
	for i := 0; i+1 < numEntries; i++ {
		entries[i] = reqBody.Entries[base+i]
	}
	entries[numEntries-1] = newEntry(req.Hops, now, myAddress)

	body := &wire.TraceBody{
		IntermediateReplies: intermediate,
		TraceID:             reqBody.TraceID,
		Entries:             entries,
	}
	return &Reply{Header: hdr, Body: body}
}

// buildExactMatchReply is used when this responder's address is (one
// of) the trace's destination: the reply carries the full accumulated
// path plus this hop's own entry, marked non-intermediate (§4.9).
func buildExactMatchReply(req *wire.Header, myAddress wire.Address, reqBody *wire.TraceBody, now time.Time) *Reply {
	return buildReply(req, myAddress, reqBody, now, false, len(reqBody.Entries)+1)
}

// buildTransitReply is used for a transit hop (not the destination,
// not the original sender): the reply carries only the previous
// entry and this hop's own entry, enough for the client to compute
// one leg's RTT.
func buildTransitReply(req *wire.Header, myAddress wire.Address, reqBody *wire.TraceBody, now time.Time) *Reply {
	return buildReply(req, myAddress, reqBody, now, true, 2)
}

// buildLocalSenderReply is used when the request arrived from a
// directly-connected local sender (inbound hops == 0): the reply
// carries only this hop's own entry.
func buildLocalSenderReply(req *wire.Header, myAddress wire.Address, reqBody *wire.TraceBody, now time.Time) *Reply {
	return buildReply(req, myAddress, reqBody, now, true, 1)
}
