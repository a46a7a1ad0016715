// Package ratetrack implements the per-source bandwidth fingerprint used
// to bias priority computation: a 128-slot ring of recently seen
// (source address, size) pairs (§4.4).
package ratetrack

import "github.com/allnet-project/allnet/internal/wire"

// RingSize is the number of tracked (source, size) records.
const RingSize = 128

// PriorityMax is the ceiling used to scale the returned rate estimate,
// matching wire.PriorityMax.
const PriorityMax = uint64(wire.PriorityMax)

type record struct {
	source [8]byte
	nbits  int
	size   uint64
	valid  bool
}

// Tracker is the rate-tracker ring. The zero value is ready to use.
// Not safe for concurrent use without external locking (§5: one
// receive loop per daemon owns it).
type Tracker struct {
	ring [RingSize]record
	next int
}

// New returns an empty rate tracker.
func New() *Tracker { return &Tracker{} }

// Record folds in one packet from source (nbits significant bits) of
// size bytes and returns floor(sum_of_matching / sum_of_total *
// PriorityMax), where "matching" sums the sizes of every ring entry
// whose stored address prefix-matches source, computed *before* this
// packet overwrites the ring slot at next (§4.4).
func (t *Tracker) Record(source [8]byte, nbits int, size uint64) uint64 {
	var matching, total uint64
	for _, r := range t.ring {
		if !r.valid {
			continue
		}
		total += r.size
		if wire.Matches(r.source[:], r.nbits, source[:], nbits) == min(r.nbits, nbits) {
			matching += r.size
		}
	}

	t.ring[t.next] = record{source: source, nbits: nbits, size: size, valid: true}
	t.next = (t.next + 1) % RingSize

	if total == 0 {
		return 0
	}
	return matching * PriorityMax / total
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
