package pipemsg

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/allnet-project/allnet/internal/wire"
)

// Message received from a registered source, tagged with the source that
// produced it so callers can correlate replies (the abc daemon, for
// instance, must know which fd an inbound beacon arrived on).
type Received struct {
	Payload  []byte
	Priority wire.Priority
	SourceID string
}

// deadSignal marks a source as closed; ReceiveAny surfaces it as an
// error.
type deadSignal struct {
	SourceID string
	Err      error
}

// Receiver multiplexes blocking reads over any number of registered pipes
// (framed per Encode/readFrame) plus, optionally, a raw packet socket.
// Ordering is strictly first-ready-first-returned: no priority
// reordering happens here (§4.2, §5) — within one source's stream,
// delivery is FIFO; across sources there is no fairness guarantee beyond
// "whichever goroutine wins the race to send on msgCh first".
type Receiver struct {
	mu      sync.Mutex
	closers map[string]io.Closer

	msgCh  chan Received
	deadCh chan deadSignal
}

// NewReceiver creates an empty multiplexed receiver.
func NewReceiver() *Receiver {
	return &Receiver{
		closers: make(map[string]io.Closer),
		msgCh:   make(chan Received, 16),
		deadCh:  make(chan deadSignal, 16),
	}
}

// Register adds a framed pipe (a TCP socket or OS pipe) to the
// multiplexed receive set under id, and starts a goroutine reading
// complete frames from it until it errors or is closed.
func (r *Receiver) Register(id string, conn io.ReadCloser) {
	r.mu.Lock()
	r.closers[id] = conn
	r.mu.Unlock()

	go func() {
		for {
			payload, priority, err := readFrame(conn)
			if err != nil {
				r.deadCh <- deadSignal{SourceID: id, Err: err}
				return
			}
			r.msgCh <- Received{Payload: payload, Priority: priority, SourceID: id}
		}
	}()
}

// RegisterPacketConn adds a raw network/packet socket (UDP, AF_PACKET,
// ...) to the receive set. Each datagram read is surfaced whole, as its
// own message; raw sockets carry no pipe-framing priority tag, so the
// caller (typically abc, which computes priority itself via the rate
// tracker) receives priority 0 and must assign its own.
func (r *Receiver) RegisterPacketConn(id string, conn net.PacketConn) {
	r.mu.Lock()
	r.closers[id] = conn
	r.mu.Unlock()

	go func() {
		buf := make([]byte, 65536)
		for {
			n, _, err := conn.ReadFrom(buf)
			if err != nil {
				r.deadCh <- deadSignal{SourceID: id, Err: err}
				return
			}
			payload := make([]byte, n)
			copy(payload, buf[:n])
			r.msgCh <- Received{Payload: payload, SourceID: id}
		}
	}()
}

// Remove closes and forgets a registered source; its reader goroutine
// observes the close as a read error and reports a dead signal.
func (r *Receiver) Remove(id string) {
	r.mu.Lock()
	c, ok := r.closers[id]
	delete(r.closers, id)
	r.mu.Unlock()
	if ok {
		c.Close()
	}
}

// ReceiveAny blocks until a message is ready on any registered source,
// a source dies, or timeout elapses — whichever comes first. It returns
// (message, true, nil) on success, (zero, false, nil) on timeout, and
// (zero, false, err) if a source died (err names which one and wraps
// its read error; ReceiveAny has already removed that source).
func (r *Receiver) ReceiveAny(timeout time.Duration) (Received, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-r.msgCh:
		return msg, true, nil
	case dead := <-r.deadCh:
		r.Remove(dead.SourceID)
		return Received{}, false, fmt.Errorf("pipemsg: source %q died: %w", dead.SourceID, dead.Err)
	case <-timer.C:
		return Received{}, false, nil
	}
}
