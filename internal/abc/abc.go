// Package abc implements the broadcast-channel medium-access state
// machine: the beacon/reply/grant handshake that time-slices a shared
// wireless interface, the high/low priority duty-cycle decision, and
// the exponential-backoff send policy over an internal/abcqueue.Queue.
//
// Grounded on abc.c, whose file-scope statics (beacon_state, the four
// nonce buffers, cycle, high_priority) are exactly the "Global statics
// in the beacon FSM" design note: bundled here into a BroadcastChannel
// struct so the FSM is testable without sockets, timers, or an actual
// network interface. Power-management and socket I/O (out of scope per
// spec Non-goals — "OS Wi-Fi driver glue") are represented as explicit
// decisions the caller acts on (CycleStart's needsPowerUp return,
// OnBeacon's reply payload) rather than side effects on a real iface.
package abc

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/allnet-project/allnet/internal/abcqueue"
	"github.com/allnet-project/allnet/internal/logging"
	"github.com/allnet-project/allnet/internal/wire"
)

// BasicCycle is the 5-second duty cycle abc.c calls BASIC_CYCLE_SEC.
const BasicCycle = 5 * time.Second

// BeaconWindow is 1/100th of a basic cycle (BEACON_MS).
const BeaconWindow = BasicCycle / 100

// BeaconMaxCompletion is how long we wait for a beacon-grant after
// sending a beacon-reply before giving up and returning to NONE.
const BeaconMaxCompletion = 250 * time.Millisecond

// maxQuietExtension is the anti-monopoly cap on quiet-until extensions
// from overhearing a grant addressed to someone else.
const maxQuietExtension = 50 * time.Millisecond

// beaconState is the per-cycle beacon finite state, from {NONE, SENT,
// REPLY_SENT, GRANT_SENT} in abc.c.
type beaconState int

const (
	beaconNone beaconState = iota
	beaconSent
	beaconReplySent
	beaconGrantSent
)

// BroadcastChannel is one managed-or-unmanaged broadcast interface's
// medium-access state: the beacon FSM, priority mode, boot-power debt,
// and the transmit queue it serves from.
type BroadcastChannel struct {
	mu sync.Mutex

	queue   *abcqueue.Queue
	managed bool
	// BitsPerSecond bandwidth-limits a beacon grant's permitted send size.
	BitsPerSecond uint64

	log logging.Logger

	cycle                uint64
	highPriority         bool
	receivedHighPriority bool

	beaconState        beaconState
	pendingBeaconState beaconState
	myRNonce           [wire.NonceSize]byte
	mySNonce           [wire.NonceSize]byte
	otherRNonce        [wire.NonceSize]byte
	otherSNonce        [wire.NonceSize]byte

	quietEnd       time.Time
	beaconDeadline *time.Time

	bootDebtCycles int
}

// New returns a BroadcastChannel serving q, in managed mode (shared
// wireless medium, beacon handshake) or unmanaged mode (point-to-point
// / IP broadcast, no handshake). bitsPerSecond bandwidth-limits
// beacon-grant send sizes; 0 selects abc.c's 1 Mb/s default.
func New(managed bool, bitsPerSecond uint64, q *abcqueue.Queue) *BroadcastChannel {
	if bitsPerSecond == 0 {
		bitsPerSecond = 1000 * 1000
	}
	return &BroadcastChannel{
		queue:         q,
		managed:       managed,
		BitsPerSecond: bitsPerSecond,
		log:           logging.New("abc"),
	}
}

// Managed reports whether this channel runs the beacon handshake.
func (bc *BroadcastChannel) Managed() bool { return bc.managed }

// Cycle returns the current cycle counter.
func (bc *BroadcastChannel) Cycle() uint64 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.cycle
}

// HighPriority reports whether the channel is currently in
// high-priority mode (interface stays on across cycles).
func (bc *BroadcastChannel) HighPriority() bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.highPriority
}

// Enqueue adds message to the transmit queue. It returns false (a
// Resource-class failure, §7) if the queue's byte cap would be
// exceeded.
func (bc *BroadcastChannel) Enqueue(message []byte, priority wire.Priority) bool {
	return bc.queue.Add(message, priority)
}

// NoteHighPriorityReceived records that a high-priority packet arrived
// this cycle, per check_priority_mode's received_high_priority latch.
func (bc *BroadcastChannel) NoteHighPriorityReceived() {
	bc.mu.Lock()
	bc.receivedHighPriority = true
	bc.mu.Unlock()
}

// checkPriorityModeLocked updates highPriority: high while a
// high-priority packet has been received this cycle or the queue holds
// an entry at or above FriendsLow, low otherwise.
func (bc *BroadcastChannel) checkPriorityModeLocked() {
	bc.highPriority = bc.receivedHighPriority ||
		bc.queue.MaxPriority() >= wire.PriorityFriendsLow
}

// CheckPriorityMode recomputes HighPriority from the current queue
// contents and the sticky received-high-priority flag.
func (bc *BroadcastChannel) CheckPriorityMode() {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.checkPriorityModeLocked()
}

// EndCycle clears the per-cycle received-high-priority latch. Call once
// per basic cycle, after CheckPriorityMode has been evaluated for the
// cycle that just ended.
func (bc *BroadcastChannel) EndCycle() {
	bc.mu.Lock()
	bc.receivedHighPriority = false
	bc.mu.Unlock()
}

func clearNonces(mine, other *[wire.NonceSize]byte) {
	if mine != nil {
		*mine = [wire.NonceSize]byte{}
	}
	if other != nil {
		*other = [wire.NonceSize]byte{}
	}
}

// StartCycle resets the beacon FSM to NONE and clears both nonce pairs,
// per one_cycle's "start a new cycle" reset.
func (bc *BroadcastChannel) StartCycle() {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.beaconState = beaconNone
	clearNonces(&bc.myRNonce, &bc.mySNonce)
	clearNonces(&bc.otherRNonce, &bc.otherSNonce)
}

func randomNonce() [wire.NonceSize]byte {
	var n [wire.NonceSize]byte
	_, _ = rand.Read(n[:])
	return n
}

// BeaconInterval picks a random sub-interval of length beaconDur within
// [start, finish], per abc.c's beacon_interval: the sub-interval starts
// uniformly at random in [start, finish-beaconDur] (or at start itself
// if the cycle is too short to leave room), and ends beaconDur later.
func BeaconInterval(start, finish time.Time, beaconDur time.Duration, randInt63n func(int64) int64) (bstart, bfinish time.Time) {
	interval := finish.Sub(start)
	bstart = start
	if interval > beaconDur {
		offset := randInt63n(int64(interval - beaconDur))
		bstart = start.Add(time.Duration(offset))
	}
	bfinish = bstart.Add(beaconDur)
	return bstart, bfinish
}
