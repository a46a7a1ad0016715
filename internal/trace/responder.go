package trace

import (
	"time"

	"github.com/allnet-project/allnet/internal/logging"
	"github.com/allnet-project/allnet/internal/wire"
)

// ForwardMessage is a trace request to re-send unmodified or with one
// more path entry appended, always at PriorityTraceFwd (§4.9).
type ForwardMessage struct {
	Header   *wire.Header
	Body     *wire.TraceBody
	Priority wire.Priority
}

// Responder answers and forwards trace requests for one AllNet address,
// mirroring trace.c's respond_to_trace plus its 100-entry loop-
// suppression cache. A Responder holds no socket; HandleRequest returns
// what to send and leaves delivery to the caller.
type Responder struct {
	myAddress   wire.Address
	matchOnly   bool
	forwardOnly bool
	cache       *idCache
	log         logging.Logger
}

// NewResponder builds a trace responder for myAddress. matchOnly
// restricts replying/extending the path to requests this address
// prefix-matches; forwardOnly disables both reply and path extension
// (pure relay).
func NewResponder(myAddress wire.Address, matchOnly, forwardOnly bool) *Responder {
	return &Responder{
		myAddress:   myAddress,
		matchOnly:   matchOnly,
		forwardOnly: forwardOnly,
		cache:       newIDCache(CacheSize),
		log:         logging.New("trace"),
	}
}

func appendOwnEntry(body *wire.TraceBody, hops byte, now time.Time, myAddress wire.Address) *wire.TraceBody {
	entries := make([]wire.TraceEntry, len(body.Entries)+1)
	copy(entries, body.Entries)
	entries[len(entries)-1] = newEntry(hops, now, myAddress)
	return &wire.TraceBody{
		IntermediateReplies: body.IntermediateReplies,
		TraceID:             body.TraceID,
		Entries:             entries,
		Pubkey:              body.Pubkey,
	}
}

// HandleRequest processes one inbound trace request (req/body already
// wire-decoded) and returns what to forward and, if owed, a reply. Both
// return values are nil when the request is a suppressed duplicate;
// forward is never nil for any other valid request, reply is nil
// whenever §4.9's conditions for withholding a reply apply.
func (r *Responder) HandleRequest(req *wire.Header, body *wire.TraceBody, now time.Time) (*ForwardMessage, *Reply) {
	if len(body.Entries) < 1 {
		return nil, nil
	}
	if r.cache.seen(body.TraceID) {
		r.log.Debug("dropping duplicate trace_id")
		return nil, nil
	}
	r.cache.add(body.TraceID)

	mbits := min(r.myAddress.Bits, int(req.DstNbits))
	nmatch := wire.Matches(r.myAddress.Bytes[:], r.myAddress.Bits, req.Destination[:], int(req.DstNbits))
	skipEntry := r.forwardOnly || (r.matchOnly && nmatch < mbits)

	var fwdBody *wire.TraceBody
	if skipEntry {
		fwdBody = body
	} else {
		fwdBody = appendOwnEntry(body, req.Hops, now, r.myAddress)
	}
	forward := &ForwardMessage{Header: req, Body: fwdBody, Priority: wire.PriorityTraceFwd}

	if skipEntry || !body.IntermediateReplies {
		return forward, nil
	}

	var reply *Reply
	switch {
	case nmatch >= mbits:
		reply = buildExactMatchReply(req, r.myAddress, body, now)
	case req.Hops > 0:
		reply = buildTransitReply(req, r.myAddress, body, now)
	default:
		reply = buildLocalSenderReply(req, r.myAddress, body, now)
	}
	return forward, reply
}
