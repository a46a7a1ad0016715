package abc

import (
	"math/rand"
	"time"

	"github.com/allnet-project/allnet/internal/wire"
)

// randIntn returns a uniform random value in [0, n). n <= 0 returns 0.
// A dedicated type (rather than a raw func(int64) int64 parameter on
// every method) keeps BroadcastChannel's public surface small while
// still letting tests substitute a deterministic source.
type randIntn func(n int64) int64

// defaultRandIntn is backed by the top-level math/rand source: the
// beacon reply-delay policy only needs uniform jitter, not a CSPRNG.
func defaultRandIntn(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return rand.Int63n(n)
}

// QuietUntil returns the time before which the channel must not transmit.
func (bc *BroadcastChannel) QuietUntil() time.Time {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.quietEnd
}

// updateQuietLocked extends quietEnd by extension (capped at
// maxQuietExtension) from now, if that is later than the current
// quietEnd. Mirrors abc.c's update_quiet anti-monopoly cap.
func (bc *BroadcastChannel) updateQuietLocked(now time.Time, extension time.Duration) {
	if extension > maxQuietExtension {
		extension = maxQuietExtension
	}
	candidate := now.Add(extension)
	if candidate.After(bc.quietEnd) {
		bc.quietEnd = candidate
	}
}

// SendBeacon prepares our own beacon: a fresh receiver nonce and a
// declared awake-time window. Transitions beaconState to SENT is the
// caller's responsibility once the beacon is actually transmitted
// (call MarkBeaconSent after a successful send).
func (bc *BroadcastChannel) SendBeacon(awake time.Duration) *wire.BeaconBody {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.myRNonce = randomNonce()
	return &wire.BeaconBody{
		ReceiverNonce: bc.myRNonce,
		AwakeTimeNs:   uint64(awake.Nanoseconds()),
	}
}

// MarkBeaconSent records that our own beacon was just transmitted.
func (bc *BroadcastChannel) MarkBeaconSent() {
	bc.mu.Lock()
	bc.beaconState = beaconSent
	bc.mu.Unlock()
}

// OnBeacon handles an inbound peer beacon (handle_beacon's
// ALLNET_MGMT_BEACON case). It returns the reply to send, the time at
// which to send it, and ok=false if the beacon should be ignored
// (we've already replied this cycle, or have nothing queued to send).
// The reply is not marked as actually sent — the caller must send it
// at (or after) sendAt and then call MarkReplySent.
func (bc *BroadcastChannel) OnBeacon(beacon *wire.BeaconBody, now time.Time) (reply *wire.BeaconReplyBody, sendAt time.Time, ok bool) {
	return bc.onBeacon(beacon, now, defaultRandIntn)
}

func (bc *BroadcastChannel) onBeacon(beacon *wire.BeaconBody, now time.Time, rnd randIntn) (*wire.BeaconReplyBody, time.Time, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.beaconState == beaconReplySent {
		return nil, time.Time{}, false
	}
	if bc.queue.TotalBytes() == 0 {
		return nil, time.Time{}, false
	}

	awake := time.Duration(beacon.AwakeTimeNs)
	quietRemaining := bc.quietEnd.Sub(now) // may be negative
	var diff time.Duration
	switch {
	case awake != 0 && awake-quietRemaining <= 0:
		// reply instantly, violating the silence period
		diff = 0
		bc.quietEnd = now
	case awake != 0 && awake-quietRemaining < 100*time.Millisecond:
		diff = (awake - quietRemaining) / 2
	default:
		diff = 25*time.Millisecond + time.Duration(rnd(24*int64(time.Millisecond)))
	}
	if diff > 0 {
		bc.quietEnd = bc.quietEnd.Add(time.Duration(rnd(int64(diff))))
	}

	bc.otherRNonce = beacon.ReceiverNonce
	bc.otherSNonce = randomNonce()
	bc.pendingBeaconState = beaconReplySent
	deadline := now.Add(BeaconMaxCompletion)
	bc.beaconDeadline = &deadline

	reply := &wire.BeaconReplyBody{
		ReceiverNonce: bc.otherRNonce,
		SenderNonce:   bc.otherSNonce,
	}
	return reply, bc.quietEnd, true
}

// MarkReplySent commits the pending beacon-reply state transition
// after the reply prepared by OnBeacon has actually been sent.
func (bc *BroadcastChannel) MarkReplySent() {
	bc.mu.Lock()
	bc.beaconState = bc.pendingBeaconState
	bc.pendingBeaconState = beaconNone
	bc.mu.Unlock()
}

// OnBeaconReply handles an inbound beacon-reply to our own beacon
// (handle_beacon's ALLNET_MGMT_BEACON_REPLY case). ok is false if the
// reply doesn't match a beacon we're still waiting on (we've already
// granted, or the receiver_nonce doesn't match).
func (bc *BroadcastChannel) OnBeaconReply(reply *wire.BeaconReplyBody) (grant *wire.BeaconGrantBody, ok bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.beaconState >= beaconGrantSent {
		return nil, false
	}
	if reply.ReceiverNonce != bc.myRNonce {
		return nil, false
	}
	bc.mySNonce = reply.SenderNonce
	bc.beaconState = beaconGrantSent
	return &wire.BeaconGrantBody{
		ReceiverNonce: bc.myRNonce,
		SenderNonce:   bc.mySNonce,
		SendTimeNs:    uint64(BeaconWindow.Nanoseconds()),
	}, true
}

// GrantOutcome tells the caller what to do after OnBeaconGrant: send
// from the queue (granted to us), or simply fall quiet (granted to
// someone else).
type GrantOutcome int

const (
	GrantIgnored  GrantOutcome = iota // not a grant we're party to
	GrantToUs                         // send up to MaxSendBytes from the queue
	GrantToOthers                     // stay quiet; someone else is sending
)

// OnBeaconGrant handles an inbound beacon-grant (handle_beacon's
// ALLNET_MGMT_BEACON_GRANT case).
func (bc *BroadcastChannel) OnBeaconGrant(grant *wire.BeaconGrantBody, now time.Time) (outcome GrantOutcome, maxSendBytes uint64) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if grant.ReceiverNonce != bc.otherRNonce {
		return GrantIgnored, 0
	}
	bc.beaconDeadline = nil
	if grant.SenderNonce == bc.otherSNonce {
		bytesToSend := uint64(bc.queue.TotalBytes())
		maySend := bc.BitsPerSecond * grant.SendTimeNs / (8 * 1000 * 1000 * 1000)
		if bytesToSend > maySend {
			bytesToSend = maySend
		}
		clearNonces(nil, &bc.otherRNonce)
		clearNonces(nil, &bc.otherSNonce)
		return GrantToUs, bytesToSend
	}
	// granted to somebody else: keep quiet while they send, listen again
	bc.beaconState = beaconNone
	bc.updateQuietLocked(now, time.Duration(grant.SendTimeNs))
	clearNonces(nil, &bc.otherRNonce)
	clearNonces(nil, &bc.otherSNonce)
	return GrantToOthers, 0
}

// CheckBeaconDeadline returns the channel to NONE if a pending
// beacon-reply's grant deadline has passed without a grant arriving
// (REPLY_SENT → NONE timeout transition; the deadline is set only when
// OnBeacon prepares a reply, so a SENT beacon never times out here).
func (bc *BroadcastChannel) CheckBeaconDeadline(now time.Time) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.beaconDeadline == nil || now.Before(*bc.beaconDeadline) {
		return
	}
	bc.beaconState = beaconNone
	bc.beaconDeadline = nil
	clearNonces(nil, &bc.otherRNonce)
	clearNonces(nil, &bc.otherSNonce)
}
