package abc

import (
	"github.com/allnet-project/allnet/internal/abcqueue"
	"github.com/allnet-project/allnet/internal/wire"
)

// doNotCache reports whether message's transport flags mark it
// single-shot (abc.c's ALLNET_TRANSPORT_DO_NOT_CACHE check). A message
// too short to carry a header is treated as cacheable (never dropped
// on this basis alone) — it will have already been rejected elsewhere
// as malformed.
func doNotCache(message []byte) bool {
	h, _, err := wire.DecodeHeader(message)
	if err != nil {
		return false
	}
	return h.Transport.HasDoNotCache()
}

// applyPostSendPolicy removes the just-sent entry (the one most
// recently returned by an active IterNext walk) if it is marked
// DO_NOT_CACHE, else increments its backoff exponent (dropping it
// outright at MaxBackoff). Shared by UnmanagedSendPending and
// SendFromQueue.
func applyPostSendPolicy(q interface {
	IterRemove()
	IterIncBackoff()
}, message []byte) {
	if doNotCache(message) {
		q.IterRemove()
	} else {
		q.IterIncBackoff()
	}
}

// UnmanagedSendPending implements unmanaged_send_pending: it scans the
// queue once and returns, in FIFO order, the messages eligible to send.
// If newOnly, only never-yet-sent (backoff == 0) messages are eligible;
// otherwise every message whose backoff exponent makes it due this
// cycle (abcqueue.Eligible) is eligible. Each returned message has its
// post-send policy (remove if DO_NOT_CACHE, else increment backoff)
// already applied to the queue. UnmanagedSendPending itself never
// advances the cycle counter (unmanaged_send_pending is also called
// mid-cycle with newOnly=true for an immediately-enqueued message, not
// only at the cycle boundary) — the driver must call
// AdvanceUnmanagedCycle once per basic cycle, typically right after
// an UnmanagedSendPending(false) call.
func (bc *BroadcastChannel) UnmanagedSendPending(newOnly bool) [][]byte {
	bc.mu.Lock()
	cycle := bc.cycle
	bc.mu.Unlock()

	var out [][]byte
	bc.queue.IterStart()
	for {
		e, ok := bc.queue.IterNext()
		if !ok {
			break
		}
		if newOnly && e.Backoff != 0 {
			continue
		}
		if !newOnly {
			if !abcqueue.Eligible(cycle, e.Backoff) {
				continue
			}
		}
		out = append(out, e.Message)
		applyPostSendPolicy(bc.queue, e.Message)
	}
	return out
}

// SendFromQueue implements send_pending's ABC_SEND_TYPE_QUEUE case: it
// walks the queue in FIFO order, sending every backoff-eligible entry
// that still fits under maxBytes (an entry that would push the
// cumulative size past maxBytes is skipped and the walk goes on),
// applying the same post-send policy as UnmanagedSendPending. It increments the cycle
// counter afterward (abc.c increments cycle only in cycles where data
// was actually granted and sent).
func (bc *BroadcastChannel) SendFromQueue(maxBytes uint64) [][]byte {
	bc.mu.Lock()
	cycle := bc.cycle
	bc.mu.Unlock()

	var out [][]byte
	var totalSent uint64
	bc.queue.IterStart()
	for {
		e, ok := bc.queue.IterNext()
		if !ok {
			break
		}
		if totalSent+uint64(len(e.Message)) > maxBytes {
			continue
		}
		if !abcqueue.Eligible(cycle, e.Backoff) {
			continue
		}
		out = append(out, e.Message)
		totalSent += uint64(len(e.Message))
		applyPostSendPolicy(bc.queue, e.Message)
	}

	bc.mu.Lock()
	bc.cycle++
	bc.mu.Unlock()
	return out
}

// AdvanceUnmanagedCycle increments the cycle counter, implementing
// unmanaged_one_cycle's unconditional "++cycle" at the end of every
// basic cycle. Unlike managed mode (whose cycle only advances on a
// beacon grant that actually sends data, in SendFromQueue), unmanaged
// mode has no grant to gate on, so the driver must call this once per
// basic cycle — typically right after UnmanagedSendPending(false) —
// or every backoff exponent is evaluated against a cycle stuck at 0
// and every queued entry is treated as eligible forever.
func (bc *BroadcastChannel) AdvanceUnmanagedCycle() {
	bc.mu.Lock()
	bc.cycle++
	bc.mu.Unlock()
}

// OnAck removes every queued entry that ackID (a content-derived
// message ID — see abcqueue.RemoveAcked) acknowledges.
func (bc *BroadcastChannel) OnAck(ackID wire.ID) {
	bc.queue.RemoveAcked(ackID)
}
