package xchat

import "github.com/allnet-project/allnet/internal/wire"

// ResendUnackedMax is the per-invocation cap on resend_unacked
// (retransmit.c hardcodes this to 8 regardless of any caller-supplied
// limit, so there is nothing to parameterize here).
const ResendUnackedMax = 8

// GetPrev returns the largest sequence number strictly less than last
// across both singles and ranges (retransmit.c's get_prev), or
// (0, false) if none qualifies.
func GetPrev(last uint64, singles []uint64, ranges [][2]uint64) (uint64, bool) {
	if last == 0 {
		return 0, false
	}
	var result uint64
	found := false
	for _, rg := range ranges {
		start, finish := rg[0], rg[1]
		if start > finish || start > last-1 {
			continue
		}
		candidate := last - 1
		if finish < candidate {
			candidate = finish
		}
		if !found || result < candidate {
			result = candidate
			found = true
		}
	}
	for _, s := range singles {
		if s < last && (!found || result < s) {
			result = s
			found = true
		}
	}
	return result, found
}

// ResendMessages walks the gaps implied by a retransmit request
// (retransmit.c's resend_messages): first the contiguous run from
// counter-1 (the last sequence number actually sent) down to
// req.LastReceived+1, newest first; then the explicit singles/ranges
// below LastReceived via repeated GetPrev, also newest first. Priority
// starts at topPriority and drops by PriorityEpsilon per message.
// Bounded to at most max instructions total.
func ResendMessages(req *wire.ChatControlRequest, counter uint64, topPriority wire.Priority, max int) []ResendInstruction {
	if counter == 0 {
		return nil
	}
	var out []ResendInstruction
	priority := topPriority
	last := req.LastReceived
	seq := counter - 1
	sendCount := 0

	for seq > last && sendCount < max {
		out = append(out, ResendInstruction{Seq: seq, Priority: priority})
		seq--
		sendCount++
		priority = priority.Sub(wire.PriorityEpsilon)
	}

	for {
		prev, ok := GetPrev(last, req.Singles, req.Ranges)
		if !ok || sendCount >= max {
			break
		}
		out = append(out, ResendInstruction{Seq: prev, Priority: priority})
		last = prev
		sendCount++
		priority = priority.Sub(wire.PriorityEpsilon)
	}
	return out
}

// ResendUnacked walks a sender's unacked outbound messages
// (retransmit.c's resend_unacked), at a single fixed priority, capped
// at ResendUnackedMax total.
func ResendUnacked(unacked MissingReport, priority wire.Priority) []ResendInstruction {
	var out []ResendInstruction
	for _, s := range unacked.Singles {
		if len(out) >= ResendUnackedMax {
			return out
		}
		out = append(out, ResendInstruction{Seq: s, Priority: priority})
	}
	for _, rg := range unacked.Ranges {
		for seq := rg[0]; seq <= rg[1]; seq++ {
			if len(out) >= ResendUnackedMax {
				return out
			}
			out = append(out, ResendInstruction{Seq: seq, Priority: priority})
		}
	}
	return out
}
