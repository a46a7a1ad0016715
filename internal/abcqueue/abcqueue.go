// Package abcqueue implements the bounded transmit queue used by
// internal/abc: a byte-capped FIFO of (message, priority, backoff
// exponent) entries with ack-driven and backoff-driven eviction.
//
// Grounded on the queue_add/queue_iter_{start,next,remove,inc_backoff}
// shape described in abc.c, generalized into an explicit handle (no
// process-global queue) per the same no-globals design note that
// shaped internal/keystore.
package abcqueue

import (
	"sync"

	"github.com/allnet-project/allnet/internal/wire"
)

// MaxBackoff is the exponent at which an entry is dropped outright:
// it has been retried 2^8 = 256 cycles without being acked.
const MaxBackoff = 8

// DefaultMaxBytes is the 16 MiB cap abc.c applies to its queue.
const DefaultMaxBytes = 16 * 1024 * 1024

// Entry is one queued outbound message.
type Entry struct {
	Message  []byte
	Priority wire.Priority
	Backoff  int
}

// Queue is a bounded-byte FIFO of Entry, safe for concurrent use.
type Queue struct {
	mu         sync.Mutex
	entries    []*Entry
	totalBytes int
	maxBytes   int
	iterPos    int
	iterLocked bool
}

// New returns an empty Queue capped at maxBytes total message bytes.
// maxBytes <= 0 selects DefaultMaxBytes.
func New(maxBytes int) *Queue {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Queue{maxBytes: maxBytes}
}

// Add enqueues message at the given priority with backoff 0. It
// returns false (without modifying the queue) if doing so would exceed
// the byte cap — callers treat this as a Resource-class failure (§7):
// the message is the caller's responsibility, not retried internally.
func (q *Queue) Add(message []byte, priority wire.Priority) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.totalBytes+len(message) > q.maxBytes {
		return false
	}
	q.entries = append(q.entries, &Entry{
		Message:  append([]byte(nil), message...),
		Priority: priority,
	})
	q.totalBytes += len(message)
	return true
}

// TotalBytes returns the sum of all queued message lengths.
func (q *Queue) TotalBytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalBytes
}

// MaxPriority returns the highest priority among queued entries, or 0
// if the queue is empty. abc's check_priority_mode uses this to decide
// whether to enter high-priority mode.
func (q *Queue) MaxPriority() wire.Priority {
	q.mu.Lock()
	defer q.mu.Unlock()
	var max wire.Priority
	for _, e := range q.entries {
		if e.Priority > max {
			max = e.Priority
		}
	}
	return max
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Eligible reports whether an entry with the given backoff exponent is
// eligible for transmission in cycle c: eligible every 2^backoff'th
// cycle.
func Eligible(cycle uint64, backoff int) bool {
	return cycle%(uint64(1)<<uint(backoff)) == 0
}

// IterStart begins a walk of the queue in FIFO order. It holds the
// Queue's lock for the duration of the walk: callers must exhaust the
// walk (keep calling IterNext until it returns false) or call IterStop
// before using any other Queue method from the same goroutine.
func (q *Queue) IterStart() {
	q.mu.Lock()
	q.iterLocked = true
	q.iterPos = 0
}

// IterNext advances to the next entry, returning it and true, or nil
// and false when the walk is exhausted (releasing the lock taken by
// IterStart).
func (q *Queue) IterNext() (*Entry, bool) {
	if q.iterPos >= len(q.entries) {
		q.iterLocked = false
		q.mu.Unlock()
		return nil, false
	}
	e := q.entries[q.iterPos]
	q.iterPos++
	return e, true
}

// IterStop releases the lock taken by IterStart if the walk was broken
// off early. Safe to call after IterNext has already returned false.
func (q *Queue) IterStop() {
	if q.iterLocked {
		q.iterLocked = false
		q.mu.Unlock()
	}
}

// IterRemove removes the entry most recently returned by IterNext.
// Must be called between an IterNext call and the next IterNext/IterStop.
func (q *Queue) IterRemove() {
	i := q.iterPos - 1
	if i < 0 || i >= len(q.entries) {
		return
	}
	q.totalBytes -= len(q.entries[i].Message)
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	q.iterPos--
}

// IterIncBackoff increments the backoff exponent of the entry most
// recently returned by IterNext, dropping it outright if the exponent
// reaches MaxBackoff.
func (q *Queue) IterIncBackoff() {
	i := q.iterPos - 1
	if i < 0 || i >= len(q.entries) {
		return
	}
	q.entries[i].Backoff++
	if q.entries[i].Backoff >= MaxBackoff {
		q.IterRemove()
	}
}

// RemoveAcked removes every queued entry whose content-derived ID
// (wire.DeriveMessageID over the full queued message, standing in for
// the header's message_id/packet_id pair) equals ackID. Acked entries
// are dropped unconditionally, independent of their backoff exponent.
func (q *Queue) RemoveAcked(ackID wire.ID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.entries[:0]
	for _, e := range q.entries {
		if wire.DeriveMessageID(e.Message) == ackID {
			q.totalBytes -= len(e.Message)
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
}
