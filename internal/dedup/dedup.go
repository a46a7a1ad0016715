// Package dedup implements the recently-seen-packet filter: two
// fixed-size hash tables that trade correctness under hash collisions
// for bounded memory (§4.3, §9). A packet survives in whichever table a
// later collision does not evict it from.
package dedup

import (
	"encoding/binary"
	"time"
)

// EntriesPerTable is the size of each of the two hash tables.
const EntriesPerTable = 1024

type entry struct {
	hash       uint32
	lastSeen   int64 // unix seconds; 0 means empty (§3 invariant)
	connection int
}

// Table is the two-table rotating-hash duplicate-packet detector. The
// zero value is ready to use. Table is not safe for concurrent use from
// multiple goroutines without external locking — it is meant to be
// owned by a single daemon's receive loop (§5).
type Table struct {
	hash1 [EntriesPerTable]entry
	hash2 [EntriesPerTable]entry
	now   func() int64 // overridable for tests
}

// New returns an initialized dedup table.
func New() *Table {
	return &Table{now: func() int64 { return time.Now().Unix() }}
}

// hash32 computes a 32-bit hash over data, mirroring the original
// my_hash_fn: rotate-and-xor over 32-bit words, folded in with the
// packet's bit length so same-prefix packets of different lengths hash
// differently.
func hash32(data []byte) uint32 {
	bits := uint32(len(data) * 8)
	nwords := len(data) / 4
	result := bits
	for i := 0; i < nwords; i++ {
		word := binary.LittleEndian.Uint32(data[i*4:])
		result = (result << 1) | (result >> 31) // rotate left 1
		result ^= word
	}
	// any trailing < 4 bytes are folded in as the low bits of one more
	// word, zero-extended.
	if rem := len(data) - nwords*4; rem > 0 {
		var tail [4]byte
		copy(tail[:], data[nwords*4:])
		word := binary.LittleEndian.Uint32(tail[:])
		result = (result << 1) | (result >> 31)
		result ^= word
	}
	return result
}

func lrIndex(hash uint32) (left, right int) {
	leftHash := ((hash >> 16) & 0xff00) | ((hash >> 8) & 0xff)
	rightHash := ((hash >> 8) & 0xff00) | (hash & 0xff)
	return int(leftHash) % EntriesPerTable, int(rightHash) % EntriesPerTable
}

func hashTime(e *entry, hash uint32, now int64) int64 {
	if e.hash != hash || e.lastSeen == 0 {
		return 0
	}
	delta := now - e.lastSeen
	if delta == 0 {
		delta = 1
	}
	return delta
}

// RecordPacketTime records data as seen on connection conn and returns 0
// if this is a new packet, or the number of seconds (at least 1) since
// it was last seen on either table otherwise (§8 invariant 4).
func (t *Table) RecordPacketTime(data []byte, conn int) int64 {
	hash := hash32(data)
	left, right := lrIndex(hash)
	now := t.now()

	leftTime := hashTime(&t.hash1[left], hash, now)
	rightTime := hashTime(&t.hash2[right], hash, now)

	t.hash1[left] = entry{hash: hash, lastSeen: now, connection: conn}
	t.hash2[right] = entry{hash: hash, lastSeen: now, connection: conn}

	if leftTime == 0 {
		return rightTime
	}
	if rightTime == 0 {
		return leftTime
	}
	if leftTime > rightTime {
		return rightTime
	}
	return leftTime
}

// ClearConnection zeros every slot tagged with conn. Per §9, the real
// insertion path never sets a meaningful connection tag in the upstream
// source, so this is a no-op in practice there; this implementation
// tracks the tag correctly and this method works as documented whenever
// callers do pass a real connection id.
func (t *Table) ClearConnection(conn int) {
	for i := range t.hash1 {
		if t.hash1[i].connection == conn {
			t.hash1[i] = entry{}
		}
	}
	for i := range t.hash2 {
		if t.hash2[i].connection == conn {
			t.hash2[i] = entry{}
		}
	}
}
