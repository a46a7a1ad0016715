package dedup

import (
	"encoding/binary"
	"testing"
)

func TestRecordPacketTimeFirstThenSecond(t *testing.T) {
	tbl := New()
	var tick int64 = 100
	tbl.now = func() int64 { tick++; return tick }

	p := make([]byte, 256)
	for i := range p {
		p[i] = byte(i)
	}

	if got := tbl.RecordPacketTime(p, 0); got != 0 {
		t.Fatalf("first RecordPacketTime = %d, want 0", got)
	}
	if got := tbl.RecordPacketTime(p, 0); got < 1 {
		t.Fatalf("second RecordPacketTime = %d, want >= 1", got)
	}
}

func TestTableCapacityEvictsOldEntries(t *testing.T) {
	tbl := New()
	var tick int64 = 0
	tbl.now = func() int64 { tick++; return tick }

	original := []byte("the original packet bytes")
	if got := tbl.RecordPacketTime(original, 0); got != 0 {
		t.Fatalf("first insert not new: %d", got)
	}

	// Flood with 2,049 distinct packets (§8 scenario A) whose leading
	// word is spread by a multiplicative constant, so their hashes land
	// across both tables rather than in a few slots.
	for i := 0; i < 2049; i++ {
		pkt := make([]byte, 32)
		binary.LittleEndian.PutUint32(pkt, uint32(i)*2654435761)
		tbl.RecordPacketTime(pkt, 0)
	}

	if got := tbl.RecordPacketTime(original, 0); got != 0 {
		t.Errorf("original packet still resident after flood: delta=%d, want 0 (evicted)", got)
	}
}

func TestClearConnection(t *testing.T) {
	tbl := New()
	pkt := []byte("packet on connection 7")
	tbl.RecordPacketTime(pkt, 7)
	tbl.ClearConnection(7)
	if got := tbl.RecordPacketTime(pkt, 7); got != 0 {
		t.Errorf("after ClearConnection, packet should read as new; got delta=%d", got)
	}
}

func TestHash32Deterministic(t *testing.T) {
	a := []byte("deterministic input bytes")
	if hash32(a) != hash32(a) {
		t.Error("hash32 not deterministic for identical input")
	}
	b := []byte("different input entirely!")
	if hash32(a) == hash32(b) {
		t.Skip("hash collision between test vectors (rare, not a bug)")
	}
}
