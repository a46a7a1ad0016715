package xchat

import (
	"sync"
	"testing"
	"time"

	"github.com/allnet-project/allnet/internal/wire"
)

func TestDescriptorRoundTripAndControlFlag(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ack := wire.NewID()
	d := NewDescriptor(ack, 5, now, -420)
	if d.IsControl() {
		t.Error("plain sequence descriptor should not be a control message")
	}
	if d.MessageAck != ack || d.Counter != 5 {
		t.Errorf("got %+v", d)
	}

	c := NewControlDescriptor(now, -420)
	if !c.IsControl() {
		t.Error("control descriptor should report IsControl")
	}
}

func TestGetPrevRangesAndSingles(t *testing.T) {
	singles := []uint64{4}
	ranges := [][2]uint64{{6, 6}}

	got, ok := GetPrev(8, singles, ranges)
	if !ok || got != 6 {
		t.Fatalf("GetPrev(8, ...) = (%d, %v), want (6, true)", got, ok)
	}
	got, ok = GetPrev(6, singles, ranges)
	if !ok || got != 4 {
		t.Fatalf("GetPrev(6, ...) = (%d, %v), want (4, true)", got, ok)
	}
	_, ok = GetPrev(4, singles, ranges)
	if ok {
		t.Fatal("GetPrev(4, ...) should report nothing left below 4")
	}
	_, ok = GetPrev(0, singles, ranges)
	if ok {
		t.Fatal("GetPrev(0, ...) should always report false")
	}
}

// Scenario: receiver has seen {1,2,3,5,7,8}; its gap-fill request
// reports singles=[4], ranges=[[6,6]], last_received=8. Sender's
// counter is 12, so its highest sent sequence is 11. The contiguous
// walk covers 11,10,9 newest-first, then 6, then 4 via GetPrev.
func TestResendMessagesContiguousThenGaps(t *testing.T) {
	req := &wire.ChatControlRequest{
		Type:         wire.ChatControlTypeRequest,
		LastReceived: 8,
		Singles:      []uint64{4},
		Ranges:       [][2]uint64{{6, 6}},
	}
	got := ResendMessages(req, 12, wire.PriorityDefault, 100)

	wantSeqs := []uint64{11, 10, 9, 6, 4}
	if len(got) != len(wantSeqs) {
		t.Fatalf("got %d instructions, want %d: %+v", len(got), len(wantSeqs), got)
	}
	for i, want := range wantSeqs {
		if got[i].Seq != want {
			t.Errorf("instruction %d: seq = %d, want %d", i, got[i].Seq, want)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Priority >= got[i-1].Priority {
			t.Errorf("priority did not decrease at step %d: %d >= %d", i, got[i].Priority, got[i-1].Priority)
		}
	}
}

func TestResendMessagesRespectsMaxCap(t *testing.T) {
	req := &wire.ChatControlRequest{LastReceived: 8, Singles: []uint64{4}, Ranges: [][2]uint64{{6, 6}}}
	got := ResendMessages(req, 12, wire.PriorityDefault, 3)
	if len(got) != 3 {
		t.Fatalf("got %d instructions, want 3", len(got))
	}
	wantSeqs := []uint64{11, 10, 9}
	for i, want := range wantSeqs {
		if got[i].Seq != want {
			t.Errorf("instruction %d: seq = %d, want %d", i, got[i].Seq, want)
		}
	}
}

func TestResendMessagesZeroCounter(t *testing.T) {
	req := &wire.ChatControlRequest{LastReceived: 0}
	got := ResendMessages(req, 0, wire.PriorityDefault, 100)
	if got != nil {
		t.Errorf("got %+v, want nil for zero counter", got)
	}
}

func TestResendUnackedCapsAtEight(t *testing.T) {
	unacked := MissingReport{
		Singles: []uint64{1, 2, 3},
		Ranges:  [][2]uint64{{10, 20}},
	}
	got := ResendUnacked(unacked, wire.PriorityDefaultLow)
	if len(got) != ResendUnackedMax {
		t.Fatalf("got %d instructions, want %d", len(got), ResendUnackedMax)
	}
	want := []uint64{1, 2, 3, 10, 11, 12, 13, 14}
	for i, w := range want {
		if got[i].Seq != w {
			t.Errorf("instruction %d: seq = %d, want %d", i, got[i].Seq, w)
		}
	}
}

func TestResendUnackedUnderCap(t *testing.T) {
	unacked := MissingReport{Singles: []uint64{7}}
	got := ResendUnacked(unacked, wire.PriorityDefaultLow)
	if len(got) != 1 || got[0].Seq != 7 {
		t.Errorf("got %+v, want single instruction for seq 7", got)
	}
}

func TestBuildRetransmitRequestNothingReceivedYet(t *testing.T) {
	store := NewMemStore()
	_, ok := BuildRetransmitRequest(store, "alice", 0)
	if ok {
		t.Error("expected no request when nothing has been received")
	}
}

func TestBuildRetransmitRequestNothingMissing(t *testing.T) {
	store := NewMemStore()
	store.RecordReceived("alice", 1)
	store.RecordReceived("alice", 2)
	_, ok := BuildRetransmitRequest(store, "alice", 0)
	if ok {
		t.Error("expected no request when the contiguous run has no gaps")
	}
}

func TestBuildRetransmitRequestReportsGaps(t *testing.T) {
	store := NewMemStore()
	for _, seq := range []uint64{1, 2, 3, 5, 7, 8} {
		store.RecordReceived("alice", seq)
	}
	req, ok := BuildRetransmitRequest(store, "alice", 0)
	if !ok {
		t.Fatal("expected a retransmit request")
	}
	if req.LastReceived != 8 {
		t.Errorf("LastReceived = %d, want 8 (highest sequence seen)", req.LastReceived)
	}
	if len(req.Singles) != 1 || req.Singles[0] != 4 {
		t.Errorf("Singles = %v, want [4]", req.Singles)
	}
	if len(req.Ranges) != 1 || req.Ranges[0] != [2]uint64{6, 6} {
		t.Errorf("Ranges = %v, want [[6 6]]", req.Ranges)
	}
}

func TestMemStoreUnackedCoalescesRanges(t *testing.T) {
	store := NewMemStore()
	for seq := uint64(1); seq <= 3; seq++ {
		store.RecordOutgoing("bob", seq, OutgoingMessage{Text: []byte("hi")})
	}
	store.RecordOutgoing("bob", 5, OutgoingMessage{Text: []byte("hi")})
	store.RecordAck("bob", 2)

	got := store.Unacked("bob", 0)
	if len(got.Singles) != 3 {
		t.Errorf("Singles = %v, want three singles (1, 3 and 5)", got.Singles)
	}
	if len(got.Ranges) != 0 {
		t.Errorf("Ranges = %v, want none (no contiguous unacked run)", got.Ranges)
	}
}

func TestResendDedupSuppressesWithinWindow(t *testing.T) {
	d := NewResendDedup()
	now := time.Unix(1700000000, 0)

	if !d.Allow(4, "alice", 0, now) {
		t.Fatal("first resend of (4, alice, 0) should be allowed")
	}
	if d.Allow(4, "alice", 0, now.Add(10*time.Second)) {
		t.Error("second resend within the window should be suppressed")
	}
	if !d.Allow(4, "bob", 0, now.Add(10*time.Second)) {
		t.Error("same sequence for a different contact should not be suppressed")
	}
	if !d.Allow(4, "alice", 0, now.Add(601*time.Second)) {
		t.Error("resend after the window elapses should be allowed again")
	}
}

func TestResendDedupRingEviction(t *testing.T) {
	d := NewResendDedup()
	now := time.Unix(1700000000, 0)
	// resendRingSize+1 resends: the last one overwrites seq 0's slot.
	for seq := uint64(0); seq <= resendRingSize; seq++ {
		d.Allow(seq, "alice", 0, now)
	}
	if !d.Allow(0, "alice", 0, now.Add(time.Second)) {
		t.Error("seq 0 should have been evicted from the ring by now, allowing a resend")
	}
}

// TestMemStoreConcurrentFirstAccessDoesNotRace exercises every read
// path (LastReceived, Missing, Counter, Outgoing, Unacked) against a
// contact no write has ever touched, concurrently from many
// goroutines. Run with -race: a version of state() that inserts into
// the map from under an RLock panics or is flagged as a concurrent
// map write here.
func TestMemStoreConcurrentFirstAccessDoesNotRace(t *testing.T) {
	s := NewMemStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(5)
		go func() { defer wg.Done(); s.LastReceived("new-contact", 0) }()
		go func() { defer wg.Done(); s.Missing("new-contact", 0) }()
		go func() { defer wg.Done(); s.Counter("new-contact") }()
		go func() { defer wg.Done(); s.Outgoing("new-contact", 0, 1) }()
		go func() { defer wg.Done(); s.Unacked("new-contact", 0) }()
	}
	wg.Wait()

	if got := s.LastReceived("new-contact", 0); got != 0 {
		t.Errorf("LastReceived on an untouched contact = %d, want 0", got)
	}
	if report := s.Missing("new-contact", 0); len(report.Singles) != 0 || len(report.Ranges) != 0 {
		t.Errorf("Missing on an untouched contact = %+v, want empty", report)
	}
	if _, ok := s.lookupState("new-contact"); ok {
		t.Error("read-only paths inserted a contactState for a contact never written to")
	}
}
