package xchat

import "github.com/allnet-project/allnet/internal/wire"

// BuildRetransmitRequest builds the gap-fill request this side should
// send to contact/keyset, mirroring retransmit.c's
// gather_missing_info + create_chat_control_request. ok is false when
// there is nothing to request: nothing has been received yet, or
// nothing is missing below LastReceived.
func BuildRetransmitRequest(store Store, contact string, k Keyset) (*wire.ChatControlRequest, bool) {
	lastReceived := store.LastReceived(contact, k)
	if lastReceived == 0 {
		return nil, false
	}
	missing := store.Missing(contact, k)
	if missing.Empty() {
		return nil, false
	}
	return &wire.ChatControlRequest{
		Type:         wire.ChatControlTypeRequest,
		LastReceived: lastReceived,
		Singles:      missing.Singles,
		Ranges:       missing.Ranges,
	}, true
}
