package abc

import (
	"testing"
	"time"

	"github.com/allnet-project/allnet/internal/abcqueue"
	"github.com/allnet-project/allnet/internal/wire"
)

func newTestChannel(managed bool) *BroadcastChannel {
	return New(managed, 0, abcqueue.New(0))
}

func TestCheckPriorityModeHighOnFriendsLowQueueEntry(t *testing.T) {
	bc := newTestChannel(true)
	if bc.HighPriority() {
		t.Fatal("fresh channel should start in low-priority mode")
	}
	bc.Enqueue([]byte("msg"), wire.PriorityFriendsLow)
	bc.CheckPriorityMode()
	if !bc.HighPriority() {
		t.Error("queue entry >= FriendsLow should enter high-priority mode")
	}
}

func TestCheckPriorityModeHighOnReceivedHighPriority(t *testing.T) {
	bc := newTestChannel(true)
	bc.NoteHighPriorityReceived()
	bc.CheckPriorityMode()
	if !bc.HighPriority() {
		t.Error("NoteHighPriorityReceived should force high-priority mode")
	}
	bc.EndCycle()
	bc.CheckPriorityMode()
	if bc.HighPriority() {
		t.Error("high-priority mode should drop once the latch is cleared and queue is low")
	}
}

// Invariant 9: from NONE, no grant is emitted without first having
// sent a beacon and received a reply whose receiver_nonce == my_rnonce.
func TestBeaconFSMNoGrantWithoutMatchingReply(t *testing.T) {
	bc := newTestChannel(true)
	now := time.Now()

	// a reply with a random receiver_nonce, before we've sent any beacon
	_, ok := bc.OnBeaconReply(&wire.BeaconReplyBody{ReceiverNonce: randomNonce()})
	if ok {
		t.Fatal("OnBeaconReply granted before any beacon was sent")
	}

	beacon := bc.SendBeacon(BeaconWindow)
	bc.MarkBeaconSent()

	// a reply with the wrong receiver_nonce should still be ignored
	_, ok = bc.OnBeaconReply(&wire.BeaconReplyBody{ReceiverNonce: randomNonce()})
	if ok {
		t.Fatal("OnBeaconReply granted on a mismatched receiver_nonce")
	}

	grant, ok := bc.OnBeaconReply(&wire.BeaconReplyBody{
		ReceiverNonce: beacon.ReceiverNonce,
		SenderNonce:   randomNonce(),
	})
	if !ok {
		t.Fatal("OnBeaconReply did not grant on a matching receiver_nonce")
	}
	if grant.ReceiverNonce != beacon.ReceiverNonce {
		t.Errorf("grant.ReceiverNonce = %x, want %x", grant.ReceiverNonce, beacon.ReceiverNonce)
	}

	// a second reply, now that we've already sent a grant, must be ignored
	_, ok = bc.OnBeaconReply(&wire.BeaconReplyBody{ReceiverNonce: beacon.ReceiverNonce})
	if ok {
		t.Error("OnBeaconReply granted twice for the same beacon")
	}

	_ = now
}

func TestOnBeaconIgnoresEmptyQueue(t *testing.T) {
	bc := newTestChannel(true)
	_, _, ok := bc.OnBeacon(&wire.BeaconBody{AwakeTimeNs: uint64(BeaconWindow.Nanoseconds())}, time.Now())
	if ok {
		t.Error("OnBeacon replied despite an empty queue")
	}
}

func TestOnBeaconRepliesOnceThenIgnores(t *testing.T) {
	bc := newTestChannel(true)
	bc.Enqueue([]byte("queued"), 1)
	now := time.Now()

	reply, _, ok := bc.OnBeacon(&wire.BeaconBody{AwakeTimeNs: uint64(BeaconWindow.Nanoseconds())}, now)
	if !ok || reply == nil {
		t.Fatal("OnBeacon did not reply to a fresh beacon with queued data")
	}
	bc.MarkReplySent()

	_, _, ok = bc.OnBeacon(&wire.BeaconBody{AwakeTimeNs: uint64(BeaconWindow.Nanoseconds())}, now)
	if ok {
		t.Error("OnBeacon replied a second time in the same cycle (beaconState already REPLY_SENT)")
	}
}

func TestOnBeaconGrantToUsBandwidthLimits(t *testing.T) {
	// 8 Mb/s = 1 MB/s, far less than the 10,000,000 bytes we'll queue.
	bc := New(true, 8*1000*1000, abcqueue.New(16*1024*1024))
	bc.Enqueue(make([]byte, 10_000_000), 1)

	// we are the reply-sender: receiving a peer's beacon sets our
	// other_rnonce/other_snonce and produces a reply.
	inbound := &wire.BeaconBody{AwakeTimeNs: uint64(BeaconWindow.Nanoseconds())}
	reply, _, ok := bc.OnBeacon(inbound, time.Now())
	if !ok {
		t.Fatal("expected a reply to the inbound beacon")
	}
	bc.MarkReplySent()

	// the beacon originator grants exactly the nonce pair we put in our reply.
	grant := &wire.BeaconGrantBody{
		ReceiverNonce: reply.ReceiverNonce,
		SenderNonce:   reply.SenderNonce,
		SendTimeNs:    uint64(time.Second.Nanoseconds()),
	}
	outcome, maxBytes := bc.OnBeaconGrant(grant, time.Now())
	if outcome != GrantToUs {
		t.Fatalf("outcome = %v, want GrantToUs", outcome)
	}
	// 1 second of send_time at 1 MB/s => ~1,000,000 bytes, well under
	// the 10,000,000 bytes queued.
	if maxBytes == 0 || maxBytes >= 10_000_000 {
		t.Errorf("maxBytes = %d, want a bandwidth-limited value well under 10,000,000", maxBytes)
	}
}

func TestOnBeaconGrantToOthersExtendsQuietCapped(t *testing.T) {
	bc := newTestChannel(true)
	now := time.Now()
	bc.mu.Lock()
	bc.otherRNonce = [wire.NonceSize]byte{1}
	bc.otherSNonce = [wire.NonceSize]byte{2}
	bc.mu.Unlock()

	grant := &wire.BeaconGrantBody{
		ReceiverNonce: [wire.NonceSize]byte{1},
		SenderNonce:   [wire.NonceSize]byte{0xff}, // not ours
		SendTimeNs:    uint64(500 * time.Millisecond),
	}
	outcome, _ := bc.OnBeaconGrant(grant, now)
	if outcome != GrantToOthers {
		t.Fatalf("outcome = %v, want GrantToOthers", outcome)
	}
	quiet := bc.QuietUntil()
	if quiet.Sub(now) > maxQuietExtension {
		t.Errorf("quiet extension = %v, want capped at %v", quiet.Sub(now), maxQuietExtension)
	}
}

func TestCheckBeaconDeadlineResetsOnTimeout(t *testing.T) {
	bc := newTestChannel(true)
	bc.Enqueue([]byte("data"), 1)
	now := time.Now()
	_, _, ok := bc.OnBeacon(&wire.BeaconBody{}, now)
	if !ok {
		t.Fatal("expected a reply")
	}
	bc.MarkReplySent()

	bc.CheckBeaconDeadline(now.Add(BeaconMaxCompletion + time.Millisecond))

	// after the timeout, a fresh beacon should be accepted again
	_, _, ok = bc.OnBeacon(&wire.BeaconBody{}, now.Add(BeaconMaxCompletion+time.Millisecond))
	if !ok {
		t.Error("OnBeacon should accept a new beacon once the grant deadline has passed")
	}
}

func TestBootDebtCyclesSkipsPowerUp(t *testing.T) {
	bc := newTestChannel(true)
	if !bc.CycleStart() {
		t.Fatal("first cycle should request a power-up")
	}
	bc.RecordPowerUpDuration(2) // power-up took long enough to skip 2 more cycles

	if bc.CycleStart() {
		t.Error("second cycle should be skipped (debt not yet paid)")
	}
	if bc.CycleStart() {
		t.Error("third cycle should be skipped (debt not yet paid)")
	}
	if !bc.CycleStart() {
		t.Error("fourth cycle should power up again (debt paid)")
	}
}

func TestBeaconIntervalWithinBounds(t *testing.T) {
	start := time.Now()
	finish := start.Add(BasicCycle)
	bstart, bfinish := BeaconInterval(start, finish, BeaconWindow, func(n int64) int64 { return n / 2 })
	if bstart.Before(start) || bfinish.After(finish) {
		t.Errorf("beacon interval [%v, %v] escapes cycle [%v, %v]", bstart, bfinish, start, finish)
	}
	if bfinish.Sub(bstart) != BeaconWindow {
		t.Errorf("beacon interval length = %v, want %v", bfinish.Sub(bstart), BeaconWindow)
	}
}
