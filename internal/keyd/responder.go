package keyd

import (
	"github.com/allnet-project/allnet/internal/logging"
	"github.com/allnet-project/allnet/internal/wire"
)

// Reply is one key-exchange packet keyd wants sent in response to a
// request, mirroring keyd.c's send_key: one packet per matching own
// identity.
type Reply struct {
	Header   *wire.Header
	Body     *wire.KeyXchgBody
	Priority wire.Priority
}

// Responder answers incoming key requests (spec §4.7's key exchange,
// keyd.c's handle_packet) over a KeyLookup.
type Responder struct {
	lookup KeyLookup
	log    logging.Logger
}

func NewResponder(lookup KeyLookup) *Responder {
	return &Responder{lookup: lookup, log: logging.New("keyd")}
}

// HandleRequest returns one Reply per own identity matching the
// request's destination prefix, each carrying that identity's public
// key PEM-encoded and the request's nonce echoed back so the requester
// can correlate it (keyd.c sends relatively low priority, §3's
// PriorityDefault).
func (r *Responder) HandleRequest(req *wire.Header, body *wire.KeyReqBody) []*Reply {
	matches := r.lookup.Matching(wire.NewAddress(req.Destination[:], int(req.DstNbits)), int(req.DstNbits))
	if len(matches) == 0 {
		r.log.Debug("no own key matches requested address")
		return nil
	}

	replies := make([]*Reply, 0, len(matches))
	for _, id := range matches {
		hdr := &wire.Header{
			Version:     wire.Version,
			MessageType: wire.TypeKeyXchg,
			MaxHops:     req.Hops + 4,
			SrcNbits:    byte(id.Address.Bits),
			DstNbits:    req.SrcNbits,
			Source:      id.Address.Bytes,
			Destination: req.Source,
		}
		replyBody := &wire.KeyXchgBody{Nonce: body.Nonce, KeyPEM: encodePublicKeyPEM(id.Pub)}
		replies = append(replies, &Reply{Header: hdr, Body: replyBody, Priority: wire.PriorityDefault})
	}
	return replies
}
